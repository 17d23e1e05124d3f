// Package memstore is an in-memory NETCONF datastore backend holding the
// running, candidate and startup configuration datastores.
//
// Configuration is held as xmlquery trees. List entries are identified by
// their "name" child element. Edits are applied to a copy of the target,
// so a failed edit-config leaves the datastore unchanged unless the
// continue-on-error option was requested.
package memstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/antchfx/xmlquery"
	"github.com/golang/glog"
	"github.com/google/uuid"
)

// DefaultConfirmTimeout is the confirmed commit timeout used when the
// commit gives none (RFC6241 s8.4.5.1).
const DefaultConfirmTimeout = 600 * time.Second

// CommitInfo records a commit of the candidate to running.
type CommitInfo struct {
	ID        string
	SessionID uint32
	Time      time.Time
	Confirmed bool
	// Diff is the change to running, as returned by Diff.
	Diff string
}

// Option configures a Store.
type Option func(*Store)

// WithConfirmTimeout sets the default confirmed commit timeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Store) { s.confirmTimeout = d }
}

// WithState sets a function returning state data, appended to running
// configuration in get replies.
func WithState(fn func() []byte) Option {
	return func(s *Store) { s.state = fn }
}

// WithClock sets the clock used to time commits.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type confirm struct {
	sessionID uint32
	persist   string
	backup    *xmlquery.Node
	timer     *time.Timer
}

// Store is an in-memory datastore backend. It is safe for concurrent use.
type Store struct {
	confirmTimeout time.Duration
	state          func() []byte
	now            func() time.Time

	mu      sync.Mutex
	trees   map[ops.Datastore]*xmlquery.Node
	dirty   bool
	locks   map[ops.Datastore]uint32
	commits []CommitInfo
	pending *confirm
}

// New returns a Store with empty datastores.
func New(opts ...Option) *Store {
	s := &Store{
		confirmTimeout: DefaultConfirmTimeout,
		now:            time.Now,
		trees: map[ops.Datastore]*xmlquery.Node{
			ops.Running:   newTree(),
			ops.Candidate: newTree(),
			ops.Startup:   newTree(),
		},
		locks: map[ops.Datastore]uint32{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the content of ds with config. Loading running also
// resets the candidate.
func (s *Store) Load(ds ops.Datastore, config []byte, ns xmlutil.PrefixMap) error {
	t, err := parseTree(config, ns)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trees[ds]; !ok {
		return unknownDatastore(ds)
	}
	s.trees[ds] = t
	if ds == ops.Running {
		s.trees[ops.Candidate] = copyNode(t)
		s.dirty = false
	}
	return nil
}

// Config returns the content of ds, indented when indent is non-empty.
func (s *Store) Config(ds ops.Datastore, indent string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[ds]
	if !ok {
		return nil
	}
	return render(t, indent)
}

// Commits returns the commit history, oldest first.
func (s *Store) Commits() []CommitInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CommitInfo(nil), s.commits...)
}

// LockedBy returns the id of the session holding the lock on ds, or 0.
func (s *Store) LockedBy(ds ops.Datastore) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[ds]
}

func unknownDatastore(ds ops.Datastore) *ncerr.Error {
	return ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("unknown datastore "+string(ds)))
}

func urlUnsupported() *ncerr.Error {
	return ncerr.OperationNotSupported(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("url targets are not supported"))
}

func sid(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

// tree returns the tree of ds. Call with s.mu held.
func (s *Store) tree(ds ops.Datastore) (*xmlquery.Node, *ncerr.Error) {
	t, ok := s.trees[ds]
	if !ok {
		return nil, unknownDatastore(ds)
	}
	return t, nil
}

// writable checks session id may modify ds. Call with s.mu held.
func (s *Store) writable(id uint32, ds ops.Datastore) *ncerr.Error {
	if holder := s.locks[ds]; holder != 0 && holder != id {
		return ncerr.InUse(ncerr.WithType(ncerr.TypeProtocol),
			ncerr.WithMessage(string(ds)+" is locked by session "+sid(holder)))
	}
	return nil
}

// Get returns running configuration and state data selected by f.
func (s *Store) Get(ctx context.Context, id uint32, f *ops.Filter) ([]byte, error) {
	var state []byte
	if s.state != nil {
		state = s.state()
	}
	s.mu.Lock()
	t := copyNode(s.trees[ops.Running])
	s.mu.Unlock()
	if len(state) > 0 {
		st, err := parseTree(state, nil)
		if err != nil {
			return nil, ncerr.OperationFailed(ncerr.WithMessage("state data: " + err.Error()))
		}
		for _, c := range elements(st) {
			xmlquery.RemoveFromTree(c)
			xmlquery.AddChild(t, c)
		}
	}
	sel, err := applyFilter(t, f)
	if err != nil {
		return nil, err
	}
	return render(sel, ""), nil
}

// GetConfig returns the configuration of ds selected by f.
func (s *Store) GetConfig(ctx context.Context, id uint32, ds ops.Datastore, f *ops.Filter) ([]byte, error) {
	s.mu.Lock()
	t, err := s.tree(ds)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	t = copyNode(t)
	s.mu.Unlock()
	sel, ferr := applyFilter(t, f)
	if ferr != nil {
		return nil, ferr
	}
	return render(sel, ""), nil
}

// EditConfig applies an edit-config operation for session id.
func (s *Store) EditConfig(ctx context.Context, id uint32, op ops.EditConfig) error {
	cfg, perr := parseTree(op.Config, op.Namespaces)
	if perr != nil {
		return perr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(op.Target)
	if err != nil {
		return err
	}
	if err := s.writable(id, op.Target); err != nil {
		return err
	}
	out, errs := edit(t, cfg, op.DefaultOperation, op.ErrorOption)
	if out == nil {
		return errs
	}
	if op.TestOption == ops.TestOnly {
		return nilIfEmpty(errs)
	}
	s.trees[op.Target] = out
	if op.Target == ops.Candidate {
		s.dirty = true
	}
	if op.Target == ops.Running {
		glog.V(2).Infof("session %d edited running:\n%s", id, Diff(string(render(t, "  ")), string(render(out, "  "))))
	}
	return nilIfEmpty(errs)
}

func nilIfEmpty(l ncerr.List) error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// CopyConfig replaces the target datastore with the source datastore or
// inline configuration.
func (s *Store) CopyConfig(ctx context.Context, id uint32, op ops.CopyConfig) error {
	if op.Target.URL != "" || op.Source.URL != "" {
		return urlUnsupported()
	}
	var src *xmlquery.Node
	if op.Source == (ops.Ref{}) {
		t, err := parseTree(op.Config, op.Namespaces)
		if err != nil {
			return err
		}
		src = t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == nil {
		if op.Source.Datastore == op.Target.Datastore {
			return ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("source and target are the same datastore"))
		}
		t, err := s.tree(op.Source.Datastore)
		if err != nil {
			return err
		}
		src = copyNode(t)
	}
	if _, err := s.tree(op.Target.Datastore); err != nil {
		return err
	}
	if err := s.writable(id, op.Target.Datastore); err != nil {
		return err
	}
	s.trees[op.Target.Datastore] = src
	if op.Target.Datastore == ops.Candidate {
		s.dirty = true
	}
	return nil
}

// DeleteConfig empties the target datastore. Running cannot be deleted.
func (s *Store) DeleteConfig(ctx context.Context, id uint32, target ops.Ref) error {
	if target.URL != "" {
		return urlUnsupported()
	}
	if target.Datastore == ops.Running {
		return ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("the running datastore cannot be deleted"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.tree(target.Datastore); err != nil {
		return err
	}
	if err := s.writable(id, target.Datastore); err != nil {
		return err
	}
	s.trees[target.Datastore] = newTree()
	if target.Datastore == ops.Candidate {
		s.dirty = true
	}
	return nil
}

// Lock locks ds for session id. A candidate with uncommitted changes
// cannot be locked.
func (s *Store) Lock(ctx context.Context, id uint32, ds ops.Datastore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.tree(ds); err != nil {
		return err
	}
	if holder := s.locks[ds]; holder != 0 {
		return ncerr.LockDenied(sid(holder), ncerr.WithMessage(string(ds)+" is already locked"))
	}
	if ds == ops.Candidate && s.dirty {
		return ncerr.LockDenied("0", ncerr.WithMessage("candidate has uncommitted changes"))
	}
	s.locks[ds] = id
	glog.V(1).Infof("session %d locked %s", id, ds)
	return nil
}

// Unlock releases the lock on ds held by session id.
func (s *Store) Unlock(ctx context.Context, id uint32, ds ops.Datastore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.tree(ds); err != nil {
		return err
	}
	if holder := s.locks[ds]; holder != id {
		msg := string(ds) + " is not locked"
		if holder != 0 {
			msg = string(ds) + " is locked by session " + sid(holder)
		}
		return ncerr.OperationFailed(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage(msg))
	}
	delete(s.locks, ds)
	glog.V(1).Infof("session %d unlocked %s", id, ds)
	return nil
}

// Commit copies the candidate to running. A confirmed commit reverts
// running unless confirmed before its timeout.
func (s *Store) Commit(ctx context.Context, id uint32, op ops.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(id, ops.Running); err != nil {
		return err
	}
	if err := s.writable(id, ops.Candidate); err != nil {
		return err
	}

	p := s.pending
	if op.PersistID != "" && (p == nil || p.persist != op.PersistID) {
		return ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("no confirmed commit with persist-id "+op.PersistID))
	}
	if p != nil && op.PersistID == "" {
		if p.persist != "" {
			return ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("confirmed commit requires persist-id"))
		}
		if p.sessionID != id {
			return ncerr.InUse(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("confirmed commit pending for session "+sid(p.sessionID)))
		}
	}

	old := s.trees[ops.Running]
	s.trees[ops.Running] = copyNode(s.trees[ops.Candidate])
	s.dirty = false
	info := CommitInfo{
		ID:        uuid.New().String(),
		SessionID: id,
		Time:      s.now(),
		Confirmed: op.Confirmed,
		Diff:      Diff(string(render(old, "  ")), string(render(s.trees[ops.Running], "  "))),
	}
	s.commits = append(s.commits, info)
	glog.Infof("session %d commit %s", id, info.ID)
	glog.V(2).Infof("commit %s:\n%s", info.ID, info.Diff)

	if !op.Confirmed {
		if p != nil {
			p.timer.Stop()
			s.pending = nil
			glog.Infof("session %d confirmed commit", id)
		}
		return nil
	}

	timeout := s.confirmTimeout
	if op.ConfirmTimeout != 0 {
		timeout = time.Duration(op.ConfirmTimeout) * time.Second
	}
	if p == nil {
		p = &confirm{backup: old}
		s.pending = p
	} else {
		p.timer.Stop()
	}
	p.sessionID, p.persist = id, op.Persist
	p.timer = time.AfterFunc(timeout, func() { s.expireConfirm(p) })
	return nil
}

func (s *Store) expireConfirm(p *confirm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != p {
		return
	}
	glog.Warningf("confirmed commit by session %d timed out, reverting running", p.sessionID)
	s.revert()
}

// revert restores running from the pending confirmed commit's backup.
// Call with s.mu held.
func (s *Store) revert() {
	p := s.pending
	p.timer.Stop()
	s.pending = nil
	s.trees[ops.Running] = p.backup
	s.trees[ops.Candidate] = copyNode(p.backup)
	s.dirty = false
}

// DiscardChanges reverts the candidate to running.
func (s *Store) DiscardChanges(ctx context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(id, ops.Candidate); err != nil {
		return err
	}
	s.trees[ops.Candidate] = copyNode(s.trees[ops.Running])
	s.dirty = false
	return nil
}

// Validate checks the source is well formed configuration.
func (s *Store) Validate(ctx context.Context, id uint32, op ops.Validate) error {
	if op.Source.URL != "" {
		return urlUnsupported()
	}
	if op.Source == (ops.Ref{}) {
		_, err := parseTree(op.Config, op.Namespaces)
		if err != nil {
			return err
		}
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.tree(op.Source.Datastore)
	if err != nil {
		return err
	}
	return nil
}

// ReleaseLocks releases the locks held by session id when it ends. An
// uncommitted candidate locked by the session is discarded, as is a
// confirmed commit it made without persist.
func (s *Store) ReleaseLocks(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ds, holder := range s.locks {
		if holder != id {
			continue
		}
		delete(s.locks, ds)
		glog.V(1).Infof("released session %d lock on %s", id, ds)
		if ds == ops.Candidate && s.dirty {
			s.trees[ops.Candidate] = copyNode(s.trees[ops.Running])
			s.dirty = false
		}
	}
	if p := s.pending; p != nil && p.persist == "" && p.sessionID == id {
		glog.Warningf("session %d ended before confirming commit, reverting running", id)
		s.revert()
	}
}

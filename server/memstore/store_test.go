package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/ops"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eth0 = `<interface><name>eth0</name><mtu>1500</mtu></interface>`
	eth1 = `<interface><name>eth1</name><mtu>9000</mtu></interface>`
	ifs  = `<interfaces xmlns="urn:x">` + eth0 + eth1 + `</interfaces>`
	sys  = `<system xmlns="urn:y"><hostname>r1</hostname></system>`
)

var ncPrefix = xmlutil.PrefixMap{"nc": message.NSBase}

func newStore(t *testing.T, running string) *Store {
	s := New()
	require.NoError(t, s.Load(ops.Running, []byte(running), nil))
	return s
}

func tag(err error) string {
	var e *ncerr.Error
	if errors.As(err, &e) {
		return e.Tag
	}
	var l ncerr.List
	if errors.As(err, &l) && len(l) > 0 {
		return l[0].Tag
	}
	return ""
}

func TestLoadRender(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t, "\n  "+ifs+"\n  "+sys+"\n")
	assert.Equal(ifs+sys, string(s.Config(ops.Running, "")))
	assert.Equal(ifs+sys, string(s.Config(ops.Candidate, "")))
	assert.Equal("", string(s.Config(ops.Startup, "")))
	assert.Equal("<interfaces xmlns=\"urn:x\">\n  <interface>\n    <name>eth0</name>\n    <mtu>1500</mtu>\n  </interface>\n"+
		"  <interface>\n    <name>eth1</name>\n    <mtu>9000</mtu>\n  </interface>\n</interfaces>\n"+
		"<system xmlns=\"urn:y\">\n  <hostname>r1</hostname>\n</system>\n", string(s.Config(ops.Running, "  ")))
	assert.Error(s.Load("bogus", []byte(sys), nil))
}

func TestEditConfig(t *testing.T) {
	for _, tc := range []struct {
		name   string
		defop  string
		errop  string
		config string
		want   string
		tag    string
	}{
		{
			name:   "merge leaf",
			config: `<interfaces xmlns="urn:x"><interface><name>eth0</name><mtu>1400</mtu></interface></interfaces>`,
			want:   `<interfaces xmlns="urn:x"><interface><name>eth0</name><mtu>1400</mtu></interface>` + eth1 + `</interfaces>` + sys,
		},
		{
			name:   "merge new list entry",
			config: `<interfaces xmlns="urn:x"><interface><name>eth2</name></interface></interfaces>`,
			want:   `<interfaces xmlns="urn:x">` + eth0 + eth1 + `<interface><name>eth2</name></interface></interfaces>` + sys,
		},
		{
			name:   "merge new top-level element",
			config: `<ntp xmlns="urn:z"><server>10.0.0.1</server></ntp>`,
			want:   ifs + sys + `<ntp xmlns="urn:z"><server>10.0.0.1</server></ntp>`,
		},
		{
			name:   "delete",
			config: `<interfaces xmlns="urn:x"><interface nc:operation="delete"><name>eth0</name></interface></interfaces>`,
			want:   `<interfaces xmlns="urn:x">` + eth1 + `</interfaces>` + sys,
		},
		{
			name:   "delete missing",
			config: `<interfaces xmlns="urn:x"><interface nc:operation="delete"><name>eth9</name></interface></interfaces>`,
			tag:    "data-missing",
		},
		{
			name:   "remove missing",
			config: `<interfaces xmlns="urn:x"><interface nc:operation="remove"><name>eth9</name></interface></interfaces>`,
			want:   ifs + sys,
		},
		{
			name:   "create existing",
			config: `<system xmlns="urn:y" nc:operation="create"><hostname>r2</hostname></system>`,
			tag:    "data-exists",
		},
		{
			name:   "create",
			config: `<interfaces xmlns="urn:x"><interface nc:operation="create"><name>eth2</name></interface></interfaces>`,
			want:   `<interfaces xmlns="urn:x">` + eth0 + eth1 + `<interface><name>eth2</name></interface></interfaces>` + sys,
		},
		{
			name:   "replace entry",
			config: `<interfaces xmlns="urn:x"><interface nc:operation="replace"><name>eth0</name></interface></interfaces>`,
			want:   `<interfaces xmlns="urn:x"><interface><name>eth0</name></interface>` + eth1 + `</interfaces>` + sys,
		},
		{
			name:   "default replace",
			defop:  ops.OperationReplace,
			config: `<system xmlns="urn:y"><hostname>r2</hostname></system>`,
			want:   `<system xmlns="urn:y"><hostname>r2</hostname></system>`,
		},
		{
			name:   "default none",
			defop:  ops.OperationNone,
			config: `<system xmlns="urn:y"><location nc:operation="merge">lab</location></system>`,
			want:   ifs + `<system xmlns="urn:y"><hostname>r1</hostname><location>lab</location></system>`,
		},
		{
			name:   "default none missing",
			defop:  ops.OperationNone,
			config: `<ntp xmlns="urn:z"><server nc:operation="merge">10.0.0.1</server></ntp>`,
			tag:    "data-missing",
		},
		{
			name:   "bad operation",
			config: `<system xmlns="urn:y" nc:operation="frobnicate"/>`,
			tag:    "bad-attribute",
		},
		{
			name:   "stop on error is atomic",
			config: `<ntp xmlns="urn:z"><server>10.0.0.1</server></ntp><system xmlns="urn:y" nc:operation="create"/>`,
			tag:    "data-exists",
		},
		{
			name:   "continue on error",
			errop:  ops.ErrorContinueOnError,
			config: `<system xmlns="urn:y" nc:operation="create"/><ntp xmlns="urn:z"><server>10.0.0.1</server></ntp>`,
			want:   ifs + sys + `<ntp xmlns="urn:z"><server>10.0.0.1</server></ntp>`,
			tag:    "data-exists",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			s := newStore(t, ifs+sys)
			err := s.EditConfig(context.Background(), 1, ops.EditConfig{
				Target:           ops.Running,
				DefaultOperation: tc.defop,
				ErrorOption:      tc.errop,
				Config:           []byte(tc.config),
				Namespaces:       ncPrefix,
			})
			if tc.tag != "" {
				assert.Equal(tc.tag, tag(err))
			} else {
				assert.NoError(err)
			}
			if tc.want != "" {
				assert.Equal(tc.want, string(s.Config(ops.Running, "")))
			} else {
				assert.Equal(ifs+sys, string(s.Config(ops.Running, "")), "datastore changed by failed edit")
			}
		})
	}
}

func TestEditConfigTestOnly(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t, sys)
	ctx := context.Background()
	assert.NoError(s.EditConfig(ctx, 1, ops.EditConfig{Target: ops.Candidate, TestOption: ops.TestOnly, Config: []byte(ifs)}))
	assert.Equal(sys, string(s.Config(ops.Candidate, "")))
	assert.Equal("data-exists", tag(s.EditConfig(ctx, 1, ops.EditConfig{
		Target: ops.Candidate, TestOption: ops.TestOnly, Namespaces: ncPrefix,
		Config: []byte(`<system xmlns="urn:y" nc:operation="create"/>`),
	})))
}

func TestFilters(t *testing.T) {
	for _, tc := range []struct {
		name   string
		filter *ops.Filter
		want   string
		tag    string
	}{
		{name: "nil filter", want: ifs + sys},
		{
			name:   "empty subtree",
			filter: &ops.Filter{Type: ops.FilterSubtree},
			want:   "",
		},
		{
			name:   "selection",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<system xmlns="urn:y"/>`)},
			want:   sys,
		},
		{
			name:   "namespace mismatch",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<system xmlns="urn:x"/>`)},
			want:   "",
		},
		{
			name:   "no namespace matches any",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<system/>`)},
			want:   sys,
		},
		{
			name:   "content match",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<interfaces xmlns="urn:x"><interface><name>eth1</name></interface></interfaces>`)},
			want:   `<interfaces xmlns="urn:x">` + eth1 + `</interfaces>`,
		},
		{
			name:   "content match and selection",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<interfaces xmlns="urn:x"><interface><name>eth0</name><mtu/></interface></interfaces>`)},
			want:   `<interfaces xmlns="urn:x">` + eth0 + `</interfaces>`,
		},
		{
			name:   "containment",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<interfaces xmlns="urn:x"><interface><mtu/></interface></interfaces>`)},
			want:   `<interfaces xmlns="urn:x"><interface><mtu>1500</mtu></interface><interface><mtu>9000</mtu></interface></interfaces>`,
		},
		{
			name:   "content match fails",
			filter: &ops.Filter{Type: ops.FilterSubtree, Content: []byte(`<interfaces xmlns="urn:x"><interface><name>eth9</name></interface></interfaces>`)},
			want:   "",
		},
		{
			name: "xpath",
			filter: &ops.Filter{
				Type: ops.FilterXPath, Select: "/x:interfaces/x:interface[x:name='eth1']/x:mtu",
				Namespaces: xmlutil.PrefixMap{"x": "urn:x"},
			},
			want: `<interfaces xmlns="urn:x"><interface><name>eth1</name><mtu>9000</mtu></interface></interfaces>`,
		},
		{
			name: "xpath whole entry",
			filter: &ops.Filter{
				Type: ops.FilterXPath, Select: "/x:interfaces/x:interface[x:mtu > 2000]",
				Namespaces: xmlutil.PrefixMap{"x": "urn:x"},
			},
			want: `<interfaces xmlns="urn:x">` + eth1 + `</interfaces>`,
		},
		{
			name: "xpath union",
			filter: &ops.Filter{
				Type: ops.FilterXPath, Select: "/x:interfaces/x:interface/x:name | /y:system",
				Namespaces: xmlutil.PrefixMap{"x": "urn:x", "y": "urn:y"},
			},
			want: `<interfaces xmlns="urn:x"><interface><name>eth0</name></interface><interface><name>eth1</name></interface></interfaces>` + sys,
		},
		{
			name:   "xpath not a node-set",
			filter: &ops.Filter{Type: ops.FilterXPath, Select: "count(/*)"},
			tag:    "invalid-value",
		},
		{
			name:   "xpath syntax",
			filter: &ops.Filter{Type: ops.FilterXPath, Select: "/interfaces["},
			tag:    "invalid-value",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			s := newStore(t, ifs+sys)
			got, err := s.GetConfig(context.Background(), 1, ops.Running, tc.filter)
			if tc.tag != "" {
				assert.Equal(tc.tag, tag(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(tc.want, string(got))
		})
	}
}

func TestGetState(t *testing.T) {
	assert := assert.New(t)
	s := New(WithState(func() []byte { return []byte(`<uptime xmlns="urn:s">42</uptime>`) }))
	require.NoError(t, s.Load(ops.Running, []byte(sys), nil))
	got, err := s.Get(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(sys+`<uptime xmlns="urn:s">42</uptime>`, string(got))
	got, err = s.GetConfig(context.Background(), 1, ops.Running, nil)
	require.NoError(t, err)
	assert.Equal(sys, string(got))
}

func TestLocks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newStore(t, sys)

	assert.NoError(s.Lock(ctx, 1, ops.Running))
	assert.Equal(uint32(1), s.LockedBy(ops.Running))
	err := s.Lock(ctx, 2, ops.Running)
	assert.Equal("lock-denied", tag(err))
	var e *ncerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal("1", e.Info.SessionID)
	assert.Equal("lock-denied", tag(s.Lock(ctx, 1, ops.Running)))

	edit := ops.EditConfig{Target: ops.Running, Config: []byte(ifs)}
	assert.Equal("in-use", tag(s.EditConfig(ctx, 2, edit)))
	assert.Equal("operation-failed", tag(s.Unlock(ctx, 2, ops.Running)))
	assert.NoError(s.EditConfig(ctx, 1, edit))
	assert.NoError(s.Unlock(ctx, 1, ops.Running))
	assert.Equal("operation-failed", tag(s.Unlock(ctx, 1, ops.Running)))
	assert.NoError(s.EditConfig(ctx, 2, edit))

	// a modified candidate cannot be locked
	assert.NoError(s.EditConfig(ctx, 2, ops.EditConfig{Target: ops.Candidate, Config: []byte(ifs)}))
	assert.Equal("lock-denied", tag(s.Lock(ctx, 1, ops.Candidate)))
	assert.NoError(s.DiscardChanges(ctx, 2))
	assert.NoError(s.Lock(ctx, 1, ops.Candidate))
	assert.Equal("in-use", tag(s.Commit(ctx, 2, ops.Commit{})))
	assert.Equal("in-use", tag(s.DiscardChanges(ctx, 2)))
}

func TestReleaseLocks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newStore(t, sys)
	require.NoError(t, s.Lock(ctx, 3, ops.Candidate))
	require.NoError(t, s.Lock(ctx, 3, ops.Startup))
	require.NoError(t, s.EditConfig(ctx, 3, ops.EditConfig{Target: ops.Candidate, Config: []byte(ifs)}))
	assert.Equal(sys+ifs, string(s.Config(ops.Candidate, "")))

	s.ReleaseLocks(4)
	assert.Equal(uint32(3), s.LockedBy(ops.Candidate))
	s.ReleaseLocks(3)
	assert.Equal(uint32(0), s.LockedBy(ops.Candidate))
	assert.Equal(uint32(0), s.LockedBy(ops.Startup))
	assert.Equal(sys, string(s.Config(ops.Candidate, "")))
	assert.NoError(s.Lock(ctx, 4, ops.Candidate))
}

func TestCommit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	require.NoError(t, s.Load(ops.Running, []byte(sys), nil))
	require.NoError(t, s.EditConfig(ctx, 1, ops.EditConfig{
		Target: ops.Candidate,
		Config: []byte(`<system xmlns="urn:y"><hostname>r2</hostname></system>`),
	}))
	assert.Equal(sys, string(s.Config(ops.Running, "")))
	require.NoError(t, s.Commit(ctx, 1, ops.Commit{}))
	assert.Equal(`<system xmlns="urn:y"><hostname>r2</hostname></system>`, string(s.Config(ops.Running, "")))

	commits := s.Commits()
	require.Len(t, commits, 1)
	assert.Len(commits[0].ID, 36)
	assert.Equal(uint32(1), commits[0].SessionID)
	assert.Equal(now, commits[0].Time)
	assert.Equal("  <system xmlns=\"urn:y\">\n-   <hostname>r1</hostname>\n+   <hostname>r2</hostname>\n  </system>\n", commits[0].Diff)

	// the candidate is clean after commit
	assert.NoError(s.Lock(ctx, 2, ops.Candidate))
}

func TestConfirmedCommit(t *testing.T) {
	ctx := context.Background()
	newHost := `<system xmlns="urn:y"><hostname>r2</hostname></system>`
	edit := ops.EditConfig{Target: ops.Candidate, Config: []byte(newHost)}

	t.Run("timeout reverts", func(t *testing.T) {
		assert := assert.New(t)
		s := New(WithConfirmTimeout(20 * time.Millisecond))
		require.NoError(t, s.Load(ops.Running, []byte(sys), nil))
		require.NoError(t, s.EditConfig(ctx, 1, edit))
		require.NoError(t, s.Commit(ctx, 1, ops.Commit{Confirmed: true}))
		assert.Equal(newHost, string(s.Config(ops.Running, "")))
		assert.Eventually(func() bool { return string(s.Config(ops.Running, "")) == sys }, time.Second, 5*time.Millisecond)
		assert.Equal(sys, string(s.Config(ops.Candidate, "")))
	})

	t.Run("confirming commit", func(t *testing.T) {
		assert := assert.New(t)
		s := New(WithConfirmTimeout(20 * time.Millisecond))
		require.NoError(t, s.Load(ops.Running, []byte(sys), nil))
		require.NoError(t, s.EditConfig(ctx, 1, edit))
		require.NoError(t, s.Commit(ctx, 1, ops.Commit{Confirmed: true}))
		assert.Equal("in-use", tag(s.Commit(ctx, 2, ops.Commit{})))
		require.NoError(t, s.Commit(ctx, 1, ops.Commit{}))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(newHost, string(s.Config(ops.Running, "")))
		assert.Len(s.Commits(), 2)
	})

	t.Run("persist", func(t *testing.T) {
		assert := assert.New(t)
		s := New()
		require.NoError(t, s.Load(ops.Running, []byte(sys), nil))
		require.NoError(t, s.EditConfig(ctx, 1, edit))
		require.NoError(t, s.Commit(ctx, 1, ops.Commit{Confirmed: true, Persist: "abc"}))
		s.ReleaseLocks(1)
		assert.Equal(newHost, string(s.Config(ops.Running, "")))
		assert.Equal("invalid-value", tag(s.Commit(ctx, 2, ops.Commit{})))
		assert.Equal("invalid-value", tag(s.Commit(ctx, 2, ops.Commit{PersistID: "xyz"})))
		require.NoError(t, s.Commit(ctx, 2, ops.Commit{PersistID: "abc"}))
		assert.NoError(s.Commit(ctx, 2, ops.Commit{}))
	})

	t.Run("session end reverts", func(t *testing.T) {
		assert := assert.New(t)
		s := New()
		require.NoError(t, s.Load(ops.Running, []byte(sys), nil))
		require.NoError(t, s.EditConfig(ctx, 1, edit))
		require.NoError(t, s.Commit(ctx, 1, ops.Commit{Confirmed: true, ConfirmTimeout: 60}))
		s.ReleaseLocks(1)
		assert.Equal(sys, string(s.Config(ops.Running, "")))
	})
}

func TestCopyDeleteValidate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newStore(t, sys)

	assert.NoError(s.CopyConfig(ctx, 1, ops.CopyConfig{Target: ops.Ref{Datastore: ops.Startup}, Source: ops.Ref{Datastore: ops.Running}}))
	assert.Equal(sys, string(s.Config(ops.Startup, "")))
	assert.NoError(s.CopyConfig(ctx, 1, ops.CopyConfig{Target: ops.Ref{Datastore: ops.Running}, Config: []byte(ifs)}))
	assert.Equal(ifs, string(s.Config(ops.Running, "")))
	assert.Equal("invalid-value", tag(s.CopyConfig(ctx, 1, ops.CopyConfig{Target: ops.Ref{Datastore: ops.Running}, Source: ops.Ref{Datastore: ops.Running}})))
	assert.Equal("operation-not-supported", tag(s.CopyConfig(ctx, 1, ops.CopyConfig{Target: ops.Ref{URL: "file:///x"}, Source: ops.Ref{Datastore: ops.Running}})))

	assert.Equal("invalid-value", tag(s.DeleteConfig(ctx, 1, ops.Ref{Datastore: ops.Running})))
	assert.NoError(s.DeleteConfig(ctx, 1, ops.Ref{Datastore: ops.Startup}))
	assert.Equal("", string(s.Config(ops.Startup, "")))

	assert.NoError(s.Validate(ctx, 1, ops.Validate{Source: ops.Ref{Datastore: ops.Candidate}}))
	assert.NoError(s.Validate(ctx, 1, ops.Validate{Config: []byte(sys)}))
	assert.Equal("invalid-value", tag(s.Validate(ctx, 1, ops.Validate{Config: []byte(`<a:b/>`)})))
	assert.Equal("invalid-value", tag(s.Validate(ctx, 1, ops.Validate{Config: []byte(`stray text`)})))
}

func TestDiff(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("", Diff("a\nb\n", "a\nb\n"))
	assert.Equal("  a\n- b\n+ c\n", Diff("a\nb\n", "a\nc\n"))
	assert.Equal("+ a\n", Diff("", "a\n"))
}

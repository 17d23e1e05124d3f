package ops

import (
	"encoding/xml"
	"strconv"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/xmlutil"
)

// Operation is a typed NETCONF operation.
type Operation interface {
	// Name returns the operation element name, such as "get-config".
	Name() string
	// Check returns *ncerr.UnsupportedOperationError if the operation
	// cannot be issued on a session with the negotiated capabilities caps.
	Check(caps capability.Set) error
	// Payload returns the operation element, for use as <rpc> content.
	Payload() ([]byte, error)
}

// Operation names.
const (
	NameGet            = "get"
	NameGetConfig      = "get-config"
	NameEditConfig     = "edit-config"
	NameCopyConfig     = "copy-config"
	NameDeleteConfig   = "delete-config"
	NameLock           = "lock"
	NameUnlock         = "unlock"
	NameCommit         = "commit"
	NameDiscardChanges = "discard-changes"
	NameCloseSession   = "close-session"
	NameKillSession    = "kill-session"
	NameValidate       = "validate"
)

// Get retrieves running configuration and state data.
type Get struct {
	Filter *Filter
}

type getXML struct {
	XMLName xml.Name   `xml:"get"`
	Filter  *filterXML `xml:"filter"`
}

func (Get) Name() string { return NameGet }

func (o Get) Check(caps capability.Set) error { return o.Filter.check(NameGet, caps) }

func (o Get) Payload() ([]byte, error) { return xml.Marshal(getXML{Filter: o.Filter.encode()}) }

// GetConfig retrieves configuration data from a datastore.
type GetConfig struct {
	Source Datastore
	Filter *Filter
}

type getConfigXML struct {
	XMLName xml.Name      `xml:"get-config"`
	Source  *datastoreXML `xml:"source"`
	Filter  *filterXML    `xml:"filter"`
}

func (GetConfig) Name() string { return NameGetConfig }

func (o GetConfig) Check(caps capability.Set) error {
	if err := checkDatastore(NameGetConfig, caps, o.Source, false); err != nil {
		return err
	}
	return o.Filter.check(NameGetConfig, caps)
}

func (o GetConfig) Payload() ([]byte, error) {
	return xml.Marshal(getConfigXML{Source: refXML(Ref{Datastore: o.Source}), Filter: o.Filter.encode()})
}

// Values of the edit-config options.
const (
	OperationMerge   = "merge"
	OperationReplace = "replace"
	OperationNone    = "none"
	OperationCreate  = "create"
	OperationDelete  = "delete"
	OperationRemove  = "remove"

	TestThenSet = "test-then-set"
	TestSet     = "set"
	TestOnly    = "test-only"

	ErrorStopOnError     = "stop-on-error"
	ErrorContinueOnError = "continue-on-error"
	ErrorRollbackOnError = "rollback-on-error"
)

// EditConfig changes the Target datastore.
type EditConfig struct {
	Target Datastore
	// DefaultOperation is merge (the default when empty), replace or none.
	DefaultOperation string
	TestOption       string
	ErrorOption      string
	// Config is the content of the <config> element.
	Config []byte
	// Namespaces declares the prefixes used by Config.
	Namespaces xmlutil.PrefixMap
}

type editConfigXML struct {
	XMLName          xml.Name      `xml:"edit-config"`
	Target           *datastoreXML `xml:"target"`
	DefaultOperation string        `xml:"default-operation,omitempty"`
	TestOption       string        `xml:"test-option,omitempty"`
	ErrorOption      string        `xml:"error-option,omitempty"`
	Config           *configXML    `xml:"config"`
}

func (EditConfig) Name() string { return NameEditConfig }

func (o EditConfig) Check(caps capability.Set) error {
	if err := checkDatastore(NameEditConfig, caps, o.Target, true); err != nil {
		return err
	}
	switch o.DefaultOperation {
	case "", OperationMerge, OperationReplace, OperationNone:
	default:
		return unsupported(NameEditConfig, "", "bad default-operation "+o.DefaultOperation)
	}
	switch o.TestOption {
	case "":
	case TestThenSet, TestSet, TestOnly:
		if !caps.Any(capability.Validate10, capability.Validate11) {
			return unsupported(NameEditConfig, capability.Validate11, "")
		}
	default:
		return unsupported(NameEditConfig, "", "bad test-option "+o.TestOption)
	}
	switch o.ErrorOption {
	case "", ErrorStopOnError, ErrorContinueOnError:
	case ErrorRollbackOnError:
		if !caps.Has(capability.RollbackOnError) {
			return unsupported(NameEditConfig, capability.RollbackOnError, "")
		}
	default:
		return unsupported(NameEditConfig, "", "bad error-option "+o.ErrorOption)
	}
	if len(o.Config) == 0 {
		return unsupported(NameEditConfig, "", "no config given")
	}
	return nil
}

func (o EditConfig) Payload() ([]byte, error) {
	return xml.Marshal(editConfigXML{
		Target:           refXML(Ref{Datastore: o.Target}),
		DefaultOperation: o.DefaultOperation,
		TestOption:       o.TestOption,
		ErrorOption:      o.ErrorOption,
		Config:           newConfigXML(o.Config, o.Namespaces),
	})
}

// CopyConfig replaces the Target with the Source datastore or URL, or with
// the inline Config when Source is empty.
type CopyConfig struct {
	Target     Ref
	Source     Ref
	Config     []byte
	Namespaces xmlutil.PrefixMap
}

type copyConfigXML struct {
	XMLName xml.Name      `xml:"copy-config"`
	Target  *datastoreXML `xml:"target"`
	Source  *datastoreXML `xml:"source"`
}

func (CopyConfig) Name() string { return NameCopyConfig }

func (o CopyConfig) Check(caps capability.Set) error {
	if err := checkRef(NameCopyConfig, caps, o.Target, true); err != nil {
		return err
	}
	if o.Source == (Ref{}) {
		if o.Config == nil {
			return unsupported(NameCopyConfig, "", "no source given")
		}
		return nil
	}
	if o.Config != nil {
		return unsupported(NameCopyConfig, "", "both source and inline config given")
	}
	if o.Source == o.Target {
		return unsupported(NameCopyConfig, "", "source and target are both "+o.Target.String())
	}
	return checkRef(NameCopyConfig, caps, o.Source, false)
}

func (o CopyConfig) Payload() ([]byte, error) {
	src := refXML(o.Source)
	if o.Source == (Ref{}) {
		src.Config = newConfigXML(o.Config, o.Namespaces)
	}
	return xml.Marshal(copyConfigXML{Target: refXML(o.Target), Source: src})
}

// DeleteConfig deletes a datastore other than running.
type DeleteConfig struct {
	Target Ref
}

type deleteConfigXML struct {
	XMLName xml.Name      `xml:"delete-config"`
	Target  *datastoreXML `xml:"target"`
}

func (DeleteConfig) Name() string { return NameDeleteConfig }

func (o DeleteConfig) Check(caps capability.Set) error {
	if o.Target.Datastore == Running {
		return unsupported(NameDeleteConfig, "", "the running datastore cannot be deleted")
	}
	return checkRef(NameDeleteConfig, caps, o.Target, true)
}

func (o DeleteConfig) Payload() ([]byte, error) {
	return xml.Marshal(deleteConfigXML{Target: refXML(o.Target)})
}

// Lock locks the Target datastore for the session.
type Lock struct {
	Target Datastore
}

type lockXML struct {
	XMLName xml.Name      `xml:"lock"`
	Target  *datastoreXML `xml:"target"`
}

func (Lock) Name() string { return NameLock }

func (o Lock) Check(caps capability.Set) error {
	return checkDatastore(NameLock, caps, o.Target, false)
}

func (o Lock) Payload() ([]byte, error) {
	return xml.Marshal(lockXML{Target: refXML(Ref{Datastore: o.Target})})
}

// Unlock releases a lock held by the session.
type Unlock struct {
	Target Datastore
}

type unlockXML struct {
	XMLName xml.Name      `xml:"unlock"`
	Target  *datastoreXML `xml:"target"`
}

func (Unlock) Name() string { return NameUnlock }

func (o Unlock) Check(caps capability.Set) error {
	return checkDatastore(NameUnlock, caps, o.Target, false)
}

func (o Unlock) Payload() ([]byte, error) {
	return xml.Marshal(unlockXML{Target: refXML(Ref{Datastore: o.Target})})
}

// Commit commits the candidate datastore to running.
type Commit struct {
	Confirmed bool
	// ConfirmTimeout is the confirmed commit timeout in seconds, zero
	// for the server default.
	ConfirmTimeout uint32
	Persist        string
	PersistID      string
}

type commitXML struct {
	XMLName        xml.Name  `xml:"commit"`
	Confirmed      *struct{} `xml:"confirmed"`
	ConfirmTimeout string    `xml:"confirm-timeout,omitempty"`
	Persist        string    `xml:"persist,omitempty"`
	PersistID      string    `xml:"persist-id,omitempty"`
}

func (Commit) Name() string { return NameCommit }

func (o Commit) Check(caps capability.Set) error {
	if !caps.Has(capability.Candidate) {
		return unsupported(NameCommit, capability.Candidate, "")
	}
	if (o.Confirmed || o.PersistID != "") && !caps.Has(capability.ConfirmedCommit) {
		return unsupported(NameCommit, capability.ConfirmedCommit, "")
	}
	if !o.Confirmed && (o.ConfirmTimeout != 0 || o.Persist != "") {
		return unsupported(NameCommit, "", "confirm-timeout and persist need a confirmed commit")
	}
	return nil
}

func (o Commit) Payload() ([]byte, error) {
	x := commitXML{Persist: o.Persist, PersistID: o.PersistID}
	if o.Confirmed {
		x.Confirmed = &struct{}{}
	}
	if o.ConfirmTimeout != 0 {
		x.ConfirmTimeout = strconv.FormatUint(uint64(o.ConfirmTimeout), 10)
	}
	return xml.Marshal(x)
}

// DiscardChanges reverts the candidate datastore to running.
type DiscardChanges struct{}

func (DiscardChanges) Name() string { return NameDiscardChanges }

func (DiscardChanges) Check(caps capability.Set) error {
	if !caps.Has(capability.Candidate) {
		return unsupported(NameDiscardChanges, capability.Candidate, "")
	}
	return nil
}

func (DiscardChanges) Payload() ([]byte, error) { return []byte("<discard-changes/>"), nil }

// CloseSession gracefully closes the session.
type CloseSession struct{}

func (CloseSession) Name() string { return NameCloseSession }

func (CloseSession) Check(capability.Set) error { return nil }

func (CloseSession) Payload() ([]byte, error) { return []byte("<close-session/>"), nil }

// KillSession forces the termination of another session.
type KillSession struct {
	SessionID uint32
}

type killSessionXML struct {
	XMLName   xml.Name `xml:"kill-session"`
	SessionID string   `xml:"session-id"`
}

func (KillSession) Name() string { return NameKillSession }

func (o KillSession) Check(capability.Set) error {
	if o.SessionID == 0 {
		return unsupported(NameKillSession, "", "no session-id given")
	}
	return nil
}

func (o KillSession) Payload() ([]byte, error) {
	return xml.Marshal(killSessionXML{SessionID: strconv.FormatUint(uint64(o.SessionID), 10)})
}

// Validate validates a datastore, URL or inline configuration.
type Validate struct {
	Source     Ref
	Config     []byte
	Namespaces xmlutil.PrefixMap
}

type validateXML struct {
	XMLName xml.Name      `xml:"validate"`
	Source  *datastoreXML `xml:"source"`
}

func (Validate) Name() string { return NameValidate }

func (o Validate) Check(caps capability.Set) error {
	if !caps.Any(capability.Validate10, capability.Validate11) {
		return unsupported(NameValidate, capability.Validate11, "")
	}
	if o.Source == (Ref{}) {
		if o.Config == nil {
			return unsupported(NameValidate, "", "no source given")
		}
		return nil
	}
	if o.Config != nil {
		return unsupported(NameValidate, "", "both source and inline config given")
	}
	return checkRef(NameValidate, caps, o.Source, false)
}

func (o Validate) Payload() ([]byte, error) {
	src := refXML(o.Source)
	if o.Source == (Ref{}) {
		src.Config = newConfigXML(o.Config, o.Namespaces)
	}
	return xml.Marshal(validateXML{Source: src})
}

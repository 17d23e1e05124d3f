package ops

import (
	"testing"
	"time"

	"github.com/andaru/ncrpc/capability"
	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
	"github.com/andaru/ncrpc/xmlutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip encodes op as a client would and decodes it as a server would.
func roundTrip(t *testing.T, op Operation) (Operation, *ncerr.Error) {
	payload, err := op.Payload()
	require.NoError(t, err)
	b, err := message.EncodeRPC("1", payload)
	require.NoError(t, err)
	m, err := message.Parse(b)
	require.NoError(t, err)
	rpc, err := message.DecodeRPC(m)
	require.NoError(t, err)
	return Parse(rpc)
}

func TestRoundTrip(t *testing.T) {
	for _, op := range []Operation{
		Get{},
		Get{Filter: &Filter{Type: FilterSubtree, Content: []byte(`<top xmlns="urn:example"><a/></top>`)}},
		Get{Filter: &Filter{Type: FilterXPath, Select: "/ex:top/ex:a", Namespaces: xmlutil.PrefixMap{"ex": "urn:example"}}},
		GetConfig{Source: Running},
		GetConfig{Source: Candidate, Filter: &Filter{Type: FilterSubtree, Content: []byte(`<top xmlns="urn:example"/>`)}},
		EditConfig{Target: Running, Config: []byte(`<top xmlns="urn:example"><a>1</a></top>`)},
		EditConfig{
			Target:           Candidate,
			DefaultOperation: OperationReplace,
			TestOption:       TestThenSet,
			ErrorOption:      ErrorRollbackOnError,
			Config:           []byte(`<ex:top><ex:a>1</ex:a></ex:top>`),
			Namespaces:       xmlutil.PrefixMap{"ex": "urn:example"},
		},
		CopyConfig{Target: Ref{Datastore: Startup}, Source: Ref{Datastore: Running}},
		CopyConfig{Target: Ref{URL: "file:///backup.xml"}, Source: Ref{Datastore: Running}},
		CopyConfig{Target: Ref{Datastore: Running}, Config: []byte(`<top xmlns="urn:example"/>`)},
		DeleteConfig{Target: Ref{Datastore: Startup}},
		Lock{Target: Running},
		Lock{Target: Candidate},
		Unlock{Target: Candidate},
		Commit{},
		Commit{Confirmed: true, ConfirmTimeout: 120, Persist: "abc"},
		Commit{PersistID: "abc"},
		DiscardChanges{},
		CloseSession{},
		KillSession{SessionID: 17},
		Validate{Source: Ref{Datastore: Candidate}},
		Validate{Config: []byte(`<top xmlns="urn:example"/>`)},
		CreateSubscription{},
		CreateSubscription{Stream: StreamNETCONF, Filter: &Filter{Type: FilterSubtree, Content: []byte(`<netconf-config-change xmlns="urn:example"/>`)}},
	} {
		t.Run(op.Name(), func(t *testing.T) {
			a := assert.New(t)
			got, rerr := roundTrip(t, op)
			if a.Nil(rerr) {
				a.Equal(op, got)
			}
		})
	}
}

func TestParseRPCNamespaces(t *testing.T) {
	a := assert.New(t)
	m, err := message.Parse([]byte(`<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" xmlns:ex="urn:example" message-id="9">` +
		`<edit-config><target><candidate/></target><config><ex:top/></config></edit-config></rpc>`))
	require.NoError(t, err)
	rpc, err := message.DecodeRPC(m)
	require.NoError(t, err)
	op, rerr := Parse(rpc)
	require.Nil(t, rerr)
	ec, ok := op.(EditConfig)
	if a.True(ok) {
		a.Equal(xmlutil.PrefixMap{"ex": "urn:example"}, ec.Namespaces)
		a.Equal("<ex:top/>", string(ec.Config))
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		body string
		tag  string
	}{
		{body: `<get-config/>`, tag: "missing-element"},
		{body: `<get-config><source><running/><candidate/></source></get-config>`, tag: "bad-element"},
		{body: `<get-config><source><url>file:///x</url></source></get-config>`, tag: "bad-element"},
		{body: `<get><filter type="xpath"/></get>`, tag: "missing-attribute"},
		{body: `<get><filter type="regex"/></get>`, tag: "bad-attribute"},
		{body: `<edit-config><target><running/></target></edit-config>`, tag: "missing-element"},
		{body: `<kill-session/>`, tag: "missing-element"},
		{body: `<kill-session><session-id>zero</session-id></kill-session>`, tag: "invalid-value"},
		{body: `<commit><confirm-timeout>-1</confirm-timeout></commit>`, tag: "invalid-value"},
		{body: `<reboot/>`, tag: "operation-not-supported"},
		{body: `<get xmlns="urn:example"/>`, tag: "operation-not-supported"},
		{body: `<create-subscription xmlns="urn:ietf:params:xml:ns:netconf:notification:1.0"><stopTime>2026-01-01T00:00:00Z</stopTime></create-subscription>`, tag: "missing-element"},
		{body: `<create-subscription xmlns="urn:ietf:params:xml:ns:netconf:notification:1.0"><startTime>yesterday</startTime></create-subscription>`, tag: "invalid-value"},
		{body: `<create-subscription/>`, tag: "operation-not-supported"},
	} {
		t.Run(tc.body, func(t *testing.T) {
			a := assert.New(t)
			m, err := message.Parse([]byte(`<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1">` + tc.body + `</rpc>`))
			require.NoError(t, err)
			rpc, err := message.DecodeRPC(m)
			require.NoError(t, err)
			_, rerr := Parse(rpc)
			if a.NotNil(rerr) {
				a.Equal(tc.tag, rerr.Tag)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	base := capability.Set{capability.Base10, capability.Base11}
	full := capability.Default()
	for _, tc := range []struct {
		name    string
		op      Operation
		caps    capability.Set
		missing string
		refused bool
	}{
		{name: "lock candidate without :candidate", op: Lock{Target: Candidate}, caps: base, missing: capability.Candidate},
		{name: "lock candidate", op: Lock{Target: Candidate}, caps: full},
		{name: "lock running", op: Lock{Target: Running}, caps: base},
		{name: "commit without :candidate", op: Commit{}, caps: base, missing: capability.Candidate},
		{name: "confirmed commit", op: Commit{Confirmed: true}, caps: capability.Set{capability.Candidate}, missing: capability.ConfirmedCommit},
		{name: "timeout without confirmed", op: Commit{ConfirmTimeout: 5}, caps: full, refused: true},
		{name: "discard without :candidate", op: DiscardChanges{}, caps: base, missing: capability.Candidate},
		{name: "edit running", op: EditConfig{Target: Running, Config: []byte("<a/>")}, caps: base, missing: capability.WritableRunning},
		{name: "edit running writable", op: EditConfig{Target: Running, Config: []byte("<a/>")}, caps: full},
		{name: "edit no config", op: EditConfig{Target: Running}, caps: full, refused: true},
		{name: "edit test-option", op: EditConfig{Target: Candidate, TestOption: TestOnly, Config: []byte("<a/>")}, caps: capability.Set{capability.Candidate}, missing: capability.Validate11},
		{name: "edit bad default", op: EditConfig{Target: Candidate, DefaultOperation: "delete", Config: []byte("<a/>")}, caps: full, refused: true},
		{name: "get-config startup", op: GetConfig{Source: Startup}, caps: base, missing: capability.Startup},
		{name: "get-config no source", op: GetConfig{}, caps: full, refused: true},
		{name: "get xpath", op: Get{Filter: &Filter{Type: FilterXPath, Select: "/a"}}, caps: base, missing: capability.XPath},
		{name: "delete running", op: DeleteConfig{Target: Ref{Datastore: Running}}, caps: full, refused: true},
		{name: "delete url", op: DeleteConfig{Target: Ref{URL: "file:///x"}}, caps: full, missing: capability.URL},
		{name: "copy same", op: CopyConfig{Target: Ref{Datastore: Startup}, Source: Ref{Datastore: Startup}}, caps: full, refused: true},
		{name: "copy to running", op: CopyConfig{Target: Ref{Datastore: Running}, Source: Ref{Datastore: Startup}}, caps: capability.Set{capability.Startup}, missing: capability.WritableRunning},
		{name: "validate", op: Validate{Source: Ref{Datastore: Running}}, caps: base, missing: capability.Validate11},
		{name: "kill zero", op: KillSession{}, caps: full, refused: true},
		{name: "close", op: CloseSession{}},
		{name: "subscribe without :notification", op: CreateSubscription{}, caps: base, missing: capability.Notification},
		{name: "subscribe", op: CreateSubscription{Stream: StreamNETCONF}, caps: full},
		{name: "subscribe stop without start", op: CreateSubscription{StopTime: time.Unix(60, 0)}, caps: full, refused: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			err := tc.op.Check(tc.caps)
			if tc.missing == "" && !tc.refused {
				a.NoError(err)
				return
			}
			var ue *ncerr.UnsupportedOperationError
			if a.True(errors.As(err, &ue), "got %v", err) {
				a.Equal(tc.op.Name(), ue.Operation)
				a.Equal(tc.missing, ue.Capability)
			}
		})
	}
}

func TestCreateSubscriptionReplay(t *testing.T) {
	a := assert.New(t)
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	got, rerr := roundTrip(t, CreateSubscription{StartTime: start, StopTime: start.Add(time.Hour)})
	require.Nil(t, rerr)
	cs, ok := got.(CreateSubscription)
	if a.True(ok) {
		a.True(start.Equal(cs.StartTime), cs.StartTime)
		a.True(start.Add(time.Hour).Equal(cs.StopTime), cs.StopTime)
		a.Empty(cs.Stream)
	}
}

func TestResults(t *testing.T) {
	a := assert.New(t)

	// a synthetic get-config reply yields the data it was built from
	data := []byte(`<top xmlns="urn:example"><a>1</a></top>`)
	b, err := (&message.Reply{Kind: message.ReplyData, MessageID: "1", Data: data}).Encode()
	require.NoError(t, err)
	m, err := message.Parse(b)
	require.NoError(t, err)
	r, err := message.DecodeReply(m)
	require.NoError(t, err)
	got, err := DataResult(r)
	a.NoError(err)
	a.Equal(data, got)
	a.Error(OKResult(r))

	a.NoError(OKResult(message.OK()))
	_, err = DataResult(message.OK())
	a.Error(err)

	err = OKResult(message.ErrorReply(ncerr.LockDenied("3")))
	var l ncerr.List
	if a.True(errors.As(err, &l)) {
		a.Equal("lock-denied", l[0].Tag)
	}
}

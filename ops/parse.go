package ops

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/andaru/ncrpc/message"
	"github.com/andaru/ncrpc/ncerr"
)

// Parse decodes the operation carried by rpc. Errors are returned as
// rpc-errors suitable for the reply.
func Parse(rpc *message.RPC) (Operation, *ncerr.Error) {
	if rpc.Operation == (xml.Name{Space: message.NSNotification, Local: NameCreateSubscription}) {
		return parseCreateSubscription(rpc)
	}
	if rpc.Operation.Space != message.NSBase {
		return nil, ncerr.OperationNotSupported(
			ncerr.WithType(ncerr.TypeProtocol),
			ncerr.WithMessage("unknown operation "+rpc.Operation.Local+" in namespace "+rpc.Operation.Space))
	}
	decode := func(v interface{}) *ncerr.Error {
		if err := xml.Unmarshal(rpc.Body, v); err != nil {
			return ncerr.MalformedMessage(ncerr.WithErr(err))
		}
		return nil
	}
	ns := rpc.Namespaces

	switch rpc.Operation.Local {
	case NameGet:
		var x getXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		f, err := x.Filter.filter(ns)
		if err != nil {
			return nil, err
		}
		return Get{Filter: f}, nil

	case NameGetConfig:
		var x getConfigXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		src, err := datastoreOnly(x.Source, "source")
		if err != nil {
			return nil, err
		}
		f, err := x.Filter.filter(ns)
		if err != nil {
			return nil, err
		}
		return GetConfig{Source: src, Filter: f}, nil

	case NameEditConfig:
		var x editConfigXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		target, err := datastoreOnly(x.Target, "target")
		if err != nil {
			return nil, err
		}
		if x.Config == nil {
			return nil, ncerr.MissingElement("config", ncerr.WithType(ncerr.TypeProtocol))
		}
		return EditConfig{
			Target:           target,
			DefaultOperation: strings.TrimSpace(x.DefaultOperation),
			TestOption:       strings.TrimSpace(x.TestOption),
			ErrorOption:      strings.TrimSpace(x.ErrorOption),
			Config:           x.Config.Inner,
			Namespaces:       x.Config.namespaces(ns),
		}, nil

	case NameCopyConfig:
		var x copyConfigXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		o := CopyConfig{}
		var err *ncerr.Error
		if o.Target, err = x.Target.ref("target"); err != nil {
			return nil, err
		}
		if x.Source.inline() {
			o.Config, o.Namespaces = content(x.Source.Config.Inner), x.Source.Config.namespaces(ns)
		} else if o.Source, err = x.Source.ref("source"); err != nil {
			return nil, err
		}
		return o, nil

	case NameDeleteConfig:
		var x deleteConfigXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		target, err := x.Target.ref("target")
		if err != nil {
			return nil, err
		}
		return DeleteConfig{Target: target}, nil

	case NameLock:
		var x lockXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		target, err := datastoreOnly(x.Target, "target")
		if err != nil {
			return nil, err
		}
		return Lock{Target: target}, nil

	case NameUnlock:
		var x unlockXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		target, err := datastoreOnly(x.Target, "target")
		if err != nil {
			return nil, err
		}
		return Unlock{Target: target}, nil

	case NameCommit:
		var x commitXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		o := Commit{
			Confirmed: x.Confirmed != nil,
			Persist:   strings.TrimSpace(x.Persist),
			PersistID: strings.TrimSpace(x.PersistID),
		}
		if v := strings.TrimSpace(x.ConfirmTimeout); v != "" {
			t, perr := strconv.ParseUint(v, 10, 32)
			if perr != nil || t == 0 {
				return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("bad confirm-timeout "+v))
			}
			o.ConfirmTimeout = uint32(t)
		}
		return o, nil

	case NameDiscardChanges:
		return DiscardChanges{}, nil

	case NameCloseSession:
		return CloseSession{}, nil

	case NameKillSession:
		var x killSessionXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		v := strings.TrimSpace(x.SessionID)
		if v == "" {
			return nil, ncerr.MissingElement("session-id", ncerr.WithType(ncerr.TypeProtocol))
		}
		id, perr := strconv.ParseUint(v, 10, 32)
		if perr != nil || id == 0 {
			return nil, ncerr.InvalidValue(ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage("bad session-id "+v))
		}
		return KillSession{SessionID: uint32(id)}, nil

	case NameValidate:
		var x validateXML
		if err := decode(&x); err != nil {
			return nil, err
		}
		o := Validate{}
		var err *ncerr.Error
		if x.Source.inline() {
			o.Config, o.Namespaces = content(x.Source.Config.Inner), x.Source.Config.namespaces(ns)
		} else if o.Source, err = x.Source.ref("source"); err != nil {
			return nil, err
		}
		return o, nil
	}

	return nil, ncerr.OperationNotSupported(
		ncerr.WithType(ncerr.TypeProtocol),
		ncerr.WithMessage("unknown operation "+rpc.Operation.Local))
}

// datastoreOnly returns the datastore named by x, refusing URLs and
// inline configuration.
func datastoreOnly(x *datastoreXML, parent string) (Datastore, *ncerr.Error) {
	r, err := x.ref(parent)
	if err != nil {
		return "", err
	}
	if r.URL != "" || r.Datastore == "" {
		return "", ncerr.BadElement(parent, ncerr.WithType(ncerr.TypeProtocol), ncerr.WithMessage(parent+" must name a datastore"))
	}
	return r.Datastore, nil
}

// content returns inline config content, never nil.
func content(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

package ops

import (
	"github.com/andaru/ncrpc/message"
	"github.com/pkg/errors"
)

// DataResult returns the <data> content of the reply to a get or
// get-config. A reply with error severity rpc-errors returns them as an
// ncerr.List.
func DataResult(r *message.Reply) ([]byte, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.Kind != message.ReplyData {
		return nil, errors.Errorf("expected a data reply, got %s", r.Kind)
	}
	return r.Data, nil
}

// OKResult returns nil if r is an <ok/> reply. A reply with error
// severity rpc-errors returns them as an ncerr.List.
func OKResult(r *message.Reply) error {
	if err := r.Err(); err != nil {
		return err
	}
	if r.Kind != message.ReplyOK {
		return errors.Errorf("expected an ok reply, got %s", r.Kind)
	}
	return nil
}

package ncerr

// Option sets a field of an Error built by one of the tag constructors.
type Option func(*Error)

// WithMessage sets the human readable error-message.
func WithMessage(msg string) Option { return func(e *Error) { e.Message = msg } }

// WithErr sets error-message to the text of err.
func WithErr(err error) Option {
	return func(e *Error) {
		if err != nil {
			e.Message = err.Error()
		}
	}
}

// WithType overrides the constructor's default error-type. Tags whose
// type RFC6241 fixes ignore it.
func WithType(t Type) Option { return func(e *Error) { e.Type = t } }

// WithSeverity marks the error as a warning or an error.
func WithSeverity(s Severity) Option { return func(e *Error) { e.Severity = s } }

// WithPath sets error-path, an absolute XPath to the offending node.
func WithPath(path string) Option { return func(e *Error) { e.Path = path } }

// WithAppTag sets error-app-tag.
func WithAppTag(tag string) Option { return func(e *Error) { e.AppTag = tag } }

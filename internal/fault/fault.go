package fault

import "fmt"

// Kind classifies a store failure so callers can tell bad input from a
// broken persistence layer.
type Kind string

const (
	// KindValidation marks failures caused by the caller's input
	// (duplicate username, blank title, unknown note).
	KindValidation Kind = "validation"
	// KindStorage marks failures of the underlying store; the input may
	// have been fine.
	KindStorage Kind = "storage"
)

// Fault is the error value returned by store operations. It carries a
// dotted operation code, a kind, and the wrapped cause.
type Fault struct {
	code string
	kind Kind
	err  error
}

// New constructs a Fault for the given operation and reason.
func New(operation, reason string, kind Kind, cause error) *Fault {
	return &Fault{
		code: fmt.Sprintf("%s.%s", operation, reason),
		kind: kind,
		err:  cause,
	}
}

func (f *Fault) Error() string {
	if f.err == nil {
		return f.code
	}
	return fmt.Sprintf("%s: %v", f.code, f.err)
}

func (f *Fault) Unwrap() error {
	return f.err
}

// Code returns the dotted operation code, e.g. "users.login.credential_mismatch".
func (f *Fault) Code() string {
	return f.code
}

// Kind returns the failure classification.
func (f *Fault) Kind() Kind {
	return f.kind
}

// IsValidation reports whether err is a Fault caused by caller input.
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsStorage reports whether err is a Fault caused by the persistence layer.
func IsStorage(err error) bool {
	return kindOf(err) == KindStorage
}

func kindOf(err error) Kind {
	for err != nil {
		if f, ok := err.(*Fault); ok {
			return f.kind
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = unwrapper.Unwrap()
	}
	return ""
}

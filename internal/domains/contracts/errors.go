package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the vault matches exactly one of these
// with errors.Is; storage and ledger causes stay reachable through Unwrap.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrWrongPassword      = errors.New("wrong password")
	ErrAlreadyInitialized = errors.New("root identity already initialized")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrKeyNotFound        = errors.New("key not found")
	ErrMergeError         = errors.New("merge failed")
	ErrIntegrity          = errors.New("integrity check failed")
	ErrLedger             = errors.New("ledger failure")
	ErrStorage            = errors.New("storage failure")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrInvalidKeyMaterial,
	ErrWrongPassword,
	ErrAlreadyInitialized,
	ErrAlreadyExists,
	ErrNotFound,
	ErrKeyNotFound,
	ErrMergeError,
	ErrIntegrity,
	ErrLedger,
	ErrStorage,
}

const (
	ErrorCategoryAPI     = "api"
	ErrorCategoryCrypto  = "crypto"
	ErrorCategoryStorage = "storage"
	ErrorCategoryNetwork = "network"
)

// OpError names the failing operation and the identity, credential or key
// locator it was working on. Secrets never go into Subject.
type OpError struct {
	Op      string
	Subject string
	Kind    error
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Subject != "" {
		b.WriteString(" ")
		b.WriteString(e.Subject)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil && !errors.Is(e.Kind, e.Err) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError wraps cause under kind. If cause already carries a kind, that kind
// is kept so storage and ledger failures surface unmodified.
func NewError(op, subject string, kind, cause error) error {
	if existing := KindOf(cause); existing != nil {
		kind = existing
	}
	if kind == nil {
		kind = ErrInvalidArgument
	}
	return &OpError{Op: op, Subject: subject, Kind: kind, Err: cause}
}

func Errorf(op, subject string, kind error, format string, args ...any) error {
	return &OpError{Op: op, Subject: subject, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// StorageFailure marks a persistence error. Nil in, nil out.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return &OpError{Op: op, Kind: ErrStorage, Err: err}
}

// LedgerFailure marks a resolver or publish error. Nil in, nil out.
func LedgerFailure(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return &OpError{Op: op, Subject: subject, Kind: ErrLedger, Err: err}
}

// KindOf returns the taxonomy sentinel err matches, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ErrorCategory maps an error to a coarse metric label.
func ErrorCategory(err error) string {
	kind := KindOf(err)
	switch {
	case kind == nil:
		return ErrorCategoryAPI
	case errors.Is(kind, ErrWrongPassword), errors.Is(kind, ErrInvalidKeyMaterial),
		errors.Is(kind, ErrIntegrity), errors.Is(kind, ErrMergeError):
		return ErrorCategoryCrypto
	case errors.Is(kind, ErrStorage):
		return ErrorCategoryStorage
	case errors.Is(kind, ErrLedger):
		return ErrorCategoryNetwork
	default:
		return ErrorCategoryAPI
	}
}

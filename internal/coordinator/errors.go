package coordinator

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind tags a coordinator Error with one of the four error categories the
// core distinguishes.
type Kind string

const (
	// KindTransient covers ping and notifier-send failures: logged,
	// retried per policy, never terminates the loop.
	KindTransient Kind = "transient"
	// KindPersistence covers storage-contract write failures: logged,
	// retried with backoff; commits continue but rebalance pauses while
	// the unpersisted backlog exceeds its bound.
	KindPersistence Kind = "persistence"
	// KindInvariant covers violations of the data-model invariants:
	// fatal, stops the loop.
	KindInvariant Kind = "invariant"
	// KindClientMisuse covers commands that name an unregistered runner
	// (Heartbeat, Unregister): rejected, state unchanged.
	KindClientMisuse Kind = "client_misuse"
)

// Error is the tagged error type every coordinator component returns.
// Call sites dispatch on Kind rather than testing against a hierarchy of
// concrete error types.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps cause as a KindTransient error, annotating it with op the
// way github.com/pkg/errors.Wrapf annotates a cause with context.
func Transient(op string, cause error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: pkgerrors.Wrap(cause, op)}
}

// Persistence wraps cause as a KindPersistence error.
func Persistence(op string, cause error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: pkgerrors.Wrap(cause, op)}
}

// Invariant constructs a KindInvariant error from a formatted diagnostic;
// these are fatal and should stop the control loop.
func Invariant(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariant, Op: op, Err: pkgerrors.Errorf(format, args...)}
}

// ClientMisuse constructs a KindClientMisuse error for a rejected command.
func ClientMisuse(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindClientMisuse, Op: op, Err: pkgerrors.Errorf(format, args...)}
}

// IsKind reports whether err is a coordinator Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == kind
}

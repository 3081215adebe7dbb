// Package xerrors defines the error taxonomy shared by the ingestion and
// finder subsystems. Every sentinel here maps to exactly one handling policy;
// callers should classify with errors.Is/errors.As rather than string matching.
package xerrors

import "fmt"

// Kind identifies which handling policy an error falls under.
type Kind int

const (
	// TransientStreamError: log at WARN, backoff, reconnect.
	TransientStreamError Kind = iota
	// PermanentVenueError: log at ERROR once, skip the symbol/venue.
	PermanentVenueError
	// InvalidMessage: drop silently, optional DEBUG log.
	InvalidMessage
	// CacheUnavailable: operation becomes a no-op/absent-read.
	CacheUnavailable
	// FinderComputationError: catch, log at ERROR, emit empty result.
	FinderComputationError
	// ConfigurationError: fatal, abort the process.
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case TransientStreamError:
		return "transient_stream_error"
	case PermanentVenueError:
		return "permanent_venue_error"
	case InvalidMessage:
		return "invalid_message"
	case CacheUnavailable:
		return "cache_unavailable"
	case FinderComputationError:
		return "finder_computation_error"
	case ConfigurationError:
		return "configuration_error"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the (venue, symbol)
// coordinates every adapter log line carries.
type Error struct {
	Kind   Kind
	Venue  string
	Symbol string
	Cause  error
}

func New(kind Kind, venue, symbol string, cause error) *Error {
	return &Error{Kind: kind, Venue: venue, Symbol: symbol, Cause: cause}
}

func (e *Error) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: venue=%s symbol=%s: %v", e.Kind, e.Venue, e.Symbol, e.Cause)
	}
	if e.Venue != "" {
		return fmt.Sprintf("%s: venue=%s: %v", e.Kind, e.Venue, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, xerrors.Sentinel(xerrors.TransientStreamError))
// style checks by comparing kinds through a zero-value sentinel wrapper.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel builds a comparison target for errors.Is, e.g.
// errors.Is(err, xerrors.Sentinel(xerrors.TransientStreamError)).
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

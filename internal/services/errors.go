package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed, oversized, or wrong-type input rejected
	// before a run is queued.
	ErrValidation = errors.New("validation error")
	// ErrUpstream marks an inference adapter failure or unusable response.
	// Stages recover from it with fallback values.
	ErrUpstream = errors.New("upstream error")
	// ErrState marks a session or run store failure, or a mutation on a
	// session that was never initialized. It aborts the enclosing run.
	ErrState = errors.New("state error")
	// ErrTimeout marks a caller that exhausted its poll budget.
	ErrTimeout       = errors.New("timeout")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// ErrorKind is the stable, lowercase classification exposed in logs and API envelopes.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindUpstream      ErrorKind = "upstream"
	KindState         ErrorKind = "state"
	KindTimeout       ErrorKind = "timeout"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

var kindMarkers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrTimeout, KindTimeout},
	{ErrState, KindState},
	{ErrUpstream, KindUpstream},
	{ErrConfiguration, KindConfiguration},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err by the first matching marker. Unmarked errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindMarkers {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return KindInternal
}

// ErrorDetails is the log and envelope friendly view of a classified error.
type ErrorDetails struct {
	Kind    ErrorKind
	Message string
	Hint    string
}

// Details classifies err and attaches an operator hint for the kind.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := KindOf(err)
	return ErrorDetails{
		Kind:    kind,
		Message: strings.TrimSpace(err.Error()),
		Hint:    hintFor(kind),
	}
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "fix the request payload and retry"
	case KindState:
		return "check the state directory and sqlite databases are writable"
	case KindTimeout:
		return "poll the run again later; it may still complete"
	case KindUpstream:
		return "check inference endpoints and credentials"
	case KindConfiguration:
		return "run `roast config validate`"
	case KindNotFound:
		return "verify the identifier"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

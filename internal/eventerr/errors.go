// Package eventerr defines the error taxonomy EventGate classifies every
// per-event failure into, plus helpers for attaching and reading that
// classification on top of github.com/cockroachdb/errors.
package eventerr

// file: internal/eventerr/errors.go

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind names a failure category. It is attached to an error via Mark/WithDetail
// rather than expressed as a distinct Go type, so ordinary errors.Is/As and
// wrapping keep working across package boundaries.
type Kind string

const (
	// MissingField: a required extractor path was absent from the event.
	MissingField Kind = "missing_field"
	// SchemaRefMissing: the event's schema identifier could not be extracted.
	SchemaRefMissing Kind = "schema_ref_missing"
	// SchemaLoadFailure: fetch, parse, or absolute-URI policy rejection.
	SchemaLoadFailure Kind = "schema_load_failure"
	// ValidationFailure: the schema engine reported one or more violations.
	ValidationFailure Kind = "validation_failure"
	// UnauthorizedStream: stream authorization denied the schema/stream pair.
	UnauthorizedStream Kind = "unauthorized_stream"
	// ProduceFailure: the producer rejected the send or the broker NAK'd it.
	ProduceFailure Kind = "produce_failure"
	// InternalError: anything else.
	InternalError Kind = "internal_error"
)

// Classification is the two-way bucket every Kind maps to: invalid events are
// the caller's fault (bad payload, bad authorization); error events are ours
// (load failures, produce failures, bugs).
type Classification string

const (
	// Invalid marks a Kind whose EventStatus bucket is "invalid".
	Invalid Classification = "invalid"
	// Error marks a Kind whose EventStatus bucket is "error".
	Error Classification = "error"
)

var classificationOf = map[Kind]Classification{
	MissingField:       Invalid,
	SchemaRefMissing:   Invalid,
	SchemaLoadFailure:  Error,
	ValidationFailure:  Invalid,
	UnauthorizedStream: Invalid,
	ProduceFailure:     Error,
	InternalError:      Error,
}

// sentinel markers, one per Kind, used with errors.Mark/errors.Is.
var sentinels = map[Kind]error{
	MissingField:       errors.New("missing field"),
	SchemaRefMissing:   errors.New("schema ref missing"),
	SchemaLoadFailure:  errors.New("schema load failure"),
	ValidationFailure:  errors.New("validation failure"),
	UnauthorizedStream: errors.New("unauthorized stream"),
	ProduceFailure:     errors.New("produce failure"),
	InternalError:      errors.New("internal error"),
}

// New creates an error of the given Kind, marked and detailed so KindOf and
// ClassificationOf can recover it later, even after further wrapping.
func New(kind Kind, message string) error {
	err := errors.Newf("%s", message)
	return attach(err, kind)
}

// Wrap wraps cause as an error of the given Kind.
func Wrap(cause error, kind Kind, message string) error {
	if cause == nil {
		return New(kind, message)
	}
	err := errors.Wrapf(cause, "%s", message)
	return attach(err, kind)
}

func attach(err error, kind Kind) error {
	if sentinel, ok := sentinels[kind]; ok {
		err = errors.Mark(err, sentinel)
	}
	err = errors.WithDetail(err, fmt.Sprintf("kind:%s", kind))
	return err
}

// WithDetail attaches an additional key-value detail string to err, mirroring
// the teacher's ErrorWithDetails helper.
func WithDetail(err error, key string, value interface{}) error {
	return errors.WithDetail(err, fmt.Sprintf("%s:%v", key, value))
}

// WithProperty attaches a typed, retrievable property to err (see
// errors.WithProperty/TryGetProperty), used for structured payloads that
// ToMap later reads back out — e.g. a ValidationFailure's "validationErrors"
// list.
func WithProperty(err error, key string, value interface{}) error {
	return errors.WithProperty(err, key, value)
}

// Is reports whether err was constructed (directly or via wrapping) with the
// given Kind.
func Is(err error, kind Kind) bool {
	sentinel, ok := sentinels[kind]
	if !ok {
		return false
	}
	return errors.Is(err, sentinel)
}

// KindOf recovers the Kind attached to err, defaulting to InternalError when
// none of the known sentinels match — any error that reaches the core without
// having been constructed through this package is treated as internal rather
// than silently dropped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return InternalError
}

// ClassificationOf maps an error to the "invalid" / "error" bucket its Kind
// belongs to.
func ClassificationOf(err error) Classification {
	kind := KindOf(err)
	if c, ok := classificationOf[kind]; ok {
		return c
	}
	return Error
}

// ToMap renders err for HTTP response bodies. Per the serialization
// invariant, non-validation errors expose only {"message": ...}; a
// ValidationFailure exposes its full structured errors list under "errors" in
// addition to a joined "message".
func ToMap(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	if KindOf(err) == ValidationFailure {
		if causes, ok := errors.TryGetProperty(err, "validationErrors"); ok {
			return map[string]interface{}{
				"message": err.Error(),
				"errors":  causes,
			}
		}
	}
	return map[string]interface{}{
		"message": errors.Cause(err).Error(),
	}
}

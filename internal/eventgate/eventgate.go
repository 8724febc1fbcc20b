// Package eventgate is the core engine: it classifies each submitted event
// as success, invalid, or error by composing authorization, schema
// validation, and production behind small ports, per spec §4.6. Grounded on
// the teacher's small-port style (ValidatorInterface/SchemaValidatorInterface
// in the now-generalized internal/schema package) and on
// internal/fsm/fsm.go's generic state-machine wrapper for the per-event
// lifecycle classification.
package eventgate

// file: internal/eventgate/eventgate.go

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/cowgnition/internal/config"
	"github.com/dkoosis/cowgnition/internal/eventerr"
	"github.com/dkoosis/cowgnition/internal/extract"
	"github.com/dkoosis/cowgnition/internal/fsm"
	"github.com/dkoosis/cowgnition/internal/logging"
	"github.com/dkoosis/cowgnition/internal/producer"
	"github.com/dkoosis/cowgnition/internal/schema"
	"github.com/dkoosis/cowgnition/internal/streamconfig"
)

// Status is the bucket an event lands in after processing.
type Status string

// The three buckets of spec §4.6; every processed event lands in exactly one.
const (
	StatusSuccess Status = "success"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// EventStatus is the per-event outcome of processOne.
type EventStatus struct {
	Status  Status
	Event   map[string]interface{}
	Context map[string]interface{}
	Err     error
}

// ProcessResult groups a batch's outcomes by bucket, preserving arrival
// order within each bucket.
type ProcessResult struct {
	Success []EventStatus
	Invalid []EventStatus
	Error   []EventStatus
}

// ValidatorCache is the subset of *schema.Cache the core depends on.
type ValidatorCache interface {
	Validate(ctx context.Context, ref string, data []byte) (map[string]interface{}, error)
	TitleFor(ctx context.Context, ref string) (string, error)
}

// StreamAuthorizer is the subset of *streamconfig.Authorizer the core
// depends on.
type StreamAuthorizer interface {
	EnsureAllowed(ctx context.Context, lookup streamconfig.TitleLookup, ref, stream string) error
}

// Dispatcher is the subset of *producer.Dispatcher the core depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, partition *int32, key *string, timestamp *time.Time, payload []byte) (producer.Ack, error)
}

// ErrorMapper maps a failed EventStatus back into a resubmittable event.
// Argument order puts ctx first per Go convention; the (err, event) pair
// that follows mirrors the spec's canonical EventGate-style
// mapToErrorEvent(error, event, context) signature (Design Note: the source
// has two incompatible call orders across its Eventbus/EventGate call
// sites — this one is canonical).
type ErrorMapper interface {
	Map(ctx context.Context, err error, event map[string]interface{}) (map[string]interface{}, error)
}

// Gate is the core engine. Every dependency is injected as a small port so
// it can be built and tested without real schemas, StreamConfig, or a
// broker.
type Gate struct {
	cache       ValidatorCache
	authorizer  StreamAuthorizer
	dispatcher  Dispatcher
	errorMapper ErrorMapper
	logger      logging.Logger

	schemaURIFields []string
	streamFields    []string
	idFields        []string
	dtFields        []string
	keyFields       []string
	partitionFields []string
	topicPrefix     string

	errorLoopTimeout time.Duration
}

// NewGate wires a Gate from configuration and its ports. errorMapper may be
// nil, which disables the background error-event loop entirely.
func NewGate(cfg *config.Settings, cache ValidatorCache, authorizer StreamAuthorizer, dispatcher Dispatcher, errorMapper ErrorMapper, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Gate{
		cache:            cache,
		authorizer:       authorizer,
		dispatcher:       dispatcher,
		errorMapper:      errorMapper,
		logger:           logger.WithField("component", "eventgate"),
		schemaURIFields:  cfg.SchemaURIField,
		streamFields:     cfg.StreamField,
		idFields:         cfg.IDField,
		dtFields:         cfg.DtField,
		keyFields:        cfg.KeyField,
		partitionFields:  cfg.PartitionField,
		topicPrefix:      cfg.TopicPrefix,
		errorLoopTimeout: 30 * time.Second,
	}
}

// Process runs processOne over every event concurrently, bounded only by the
// runtime's goroutine scheduler (spec §5: no thread-per-event requirement,
// no explicit pool here since Go's scheduler already multiplexes
// goroutines onto OS threads), then schedules the background error-event
// loop if configured.
func (g *Gate) Process(ctx context.Context, events []map[string]interface{}) ProcessResult {
	statuses := make([]EventStatus, len(events))

	var wg sync.WaitGroup
	wg.Add(len(events))
	for i, ev := range events {
		go func(i int, ev map[string]interface{}) {
			defer wg.Done()
			statuses[i] = g.processOne(ctx, ev)
		}(i, ev)
	}
	wg.Wait()

	var result ProcessResult
	for _, st := range statuses {
		switch st.Status {
		case StatusSuccess:
			result.Success = append(result.Success, st)
		case StatusInvalid:
			result.Invalid = append(result.Invalid, st)
		default:
			result.Error = append(result.Error, st)
		}
	}

	if g.errorMapper != nil {
		failed := make([]EventStatus, 0, len(result.Invalid)+len(result.Error))
		failed = append(failed, result.Invalid...)
		failed = append(failed, result.Error...)
		if len(failed) > 0 {
			go g.runErrorLoop(failed)
		}
	}

	return result
}

// runErrorLoop is a detached background task: it does not inherit the
// request's cancellation or logging context, only an independent timeout,
// per Design Note "background tasks escaping the request".
func (g *Gate) runErrorLoop(failed []EventStatus) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), g.errorLoopTimeout)
	defer cancel()

	for _, st := range failed {
		mapped, err := g.errorMapper.Map(ctx, st.Err, st.Event)
		if err != nil {
			g.logger.Warn("Error-event mapping failed.", "error", err)
			continue
		}
		if mapped == nil {
			continue
		}
		result := g.processOne(ctx, mapped)
		if result.Status != StatusSuccess {
			g.logger.Warn("Error-event re-ingestion did not succeed.", "status", result.Status)
		}
	}
}

// processOne implements spec §4.6's per-event state machine:
// Received -> Validated -> Produced (success)
// Received -> Invalid (validation/authorization failure)
// Received -> Validated -> Errored (producer failure)
// Received -> Errored (any other validate failure)
func (g *Gate) processOne(ctx context.Context, event map[string]interface{}) EventStatus {
	lifecycle := newLifecycle(g.logger)

	validated, schemaRef, stream, err := g.validate(ctx, event)
	if err != nil {
		if eventerr.ClassificationOf(err) == eventerr.Invalid {
			_ = lifecycle.Transition(ctx, eventReceived, nil)
			_ = lifecycle.Transition(ctx, eventInvalidated, nil)
			return EventStatus{Status: StatusInvalid, Event: event, Context: eventerr.ToMap(err), Err: err}
		}
		_ = lifecycle.Transition(ctx, eventReceived, nil)
		_ = lifecycle.Transition(ctx, eventErrored, nil)
		return EventStatus{Status: StatusError, Event: event, Context: eventerr.ToMap(err), Err: err}
	}
	_ = lifecycle.Transition(ctx, eventReceived, nil)
	_ = lifecycle.Transition(ctx, eventValidated, nil)

	topic := g.topicFor(stream)
	partition := g.extractPartition(validated)
	key, _ := extractStringOptional(validated, g.keyFields)
	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}
	timestamp := g.extractTimestamp(validated)
	if id, ok := extractStringOptional(validated, g.idFields); ok {
		g.logger.Debug("Processing event.", "id", id, "schema_ref", schemaRef, "stream", stream)
	}

	payload, merr := json.Marshal(validated)
	if merr != nil {
		wrapped := eventerr.Wrap(merr, eventerr.InternalError, "failed to serialize validated event")
		_ = lifecycle.Transition(ctx, eventErrored, nil)
		return EventStatus{Status: StatusError, Event: validated, Context: eventerr.ToMap(wrapped), Err: wrapped}
	}

	ack, perr := g.dispatcher.Dispatch(ctx, topic, partition, keyPtr, timestamp, payload)
	if perr != nil {
		_ = lifecycle.Transition(ctx, eventErrored, nil)
		return EventStatus{Status: StatusError, Event: validated, Context: eventerr.ToMap(perr), Err: perr}
	}

	_ = lifecycle.Transition(ctx, eventProduced, nil)
	return EventStatus{
		Status:  StatusSuccess,
		Event:   validated,
		Context: map[string]interface{}{"topic": ack.Topic, "partition": ack.Partition, "offset": ack.Offset},
	}
}

// validate composes ensureAllowed(event, extractStream(event)) and
// validatorCache.Validate(event), per spec §4.6.
func (g *Gate) validate(ctx context.Context, event map[string]interface{}) (map[string]interface{}, string, string, error) {
	schemaRef, err := g.extractSchemaRef(event)
	if err != nil {
		return nil, "", "", err
	}

	stream, err := g.extractStream(event, schemaRef)
	if err != nil {
		return nil, schemaRef, "", err
	}

	if err := g.authorizer.EnsureAllowed(ctx, g.cache, schemaRef, stream); err != nil {
		return nil, schemaRef, stream, err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, schemaRef, stream, eventerr.Wrap(err, eventerr.InternalError, "failed to serialize event for validation")
	}

	validated, err := g.cache.Validate(ctx, schemaRef, payload)
	if err != nil {
		return nil, schemaRef, stream, classifySchemaError(err)
	}
	return validated, schemaRef, stream, nil
}

func (g *Gate) extractSchemaRef(event map[string]interface{}) (string, error) {
	for _, path := range g.schemaURIFields {
		if v, ok := extract.Field(event, path); ok {
			if s, ok2 := v.(string); ok2 && s != "" {
				return s, nil
			}
		}
	}
	return "", eventerr.New(eventerr.SchemaRefMissing, "schema identifier could not be extracted from any configured schema_uri_field path")
}

func (g *Gate) extractStream(event map[string]interface{}, schemaRef string) (string, error) {
	if len(g.streamFields) == 0 {
		return sanitizeStream(schemaRef), nil
	}
	s, err := extract.String(event, g.streamFields)
	if err != nil {
		return "", eventerr.Wrap(err, eventerr.MissingField, "stream name could not be extracted from any configured stream_field path")
	}
	return s, nil
}

func (g *Gate) topicFor(stream string) string {
	if g.topicPrefix == "" {
		return stream
	}
	return g.topicPrefix + stream
}

func (g *Gate) extractPartition(event map[string]interface{}) *int32 {
	s, ok := extractStringOptional(event, g.partitionFields)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		g.logger.Warn("partition_field value is not an integer; ignoring.", "value", s, "error", err)
		return nil
	}
	p := int32(n)
	return &p
}

func (g *Gate) extractTimestamp(event map[string]interface{}) *time.Time {
	s, ok := extractStringOptional(event, g.dtFields)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		g.logger.Warn("dt_field value is not RFC3339; ignoring.", "value", s, "error", err)
		return nil
	}
	return &t
}

func extractStringOptional(event map[string]interface{}, paths []string) (string, bool) {
	return extract.StringOptional(event, paths)
}

// classifySchemaError maps a *schema.ValidationError's Code onto the
// eventerr taxonomy, bridging the structured validation-error list onto a
// retrievable property so eventerr.ToMap can serialize it per spec §7/§8.
func classifySchemaError(err error) error {
	var valErr *schema.ValidationError
	if !errors.As(err, &valErr) {
		return eventerr.Wrap(err, eventerr.InternalError, "schema validation failed")
	}

	switch valErr.Code {
	case schema.ErrValidationFailed:
		wrapped := eventerr.Wrap(valErr, eventerr.ValidationFailure, valErr.Message)
		if entries, ok := valErr.Context["validationErrors"]; ok {
			wrapped = eventerr.WithProperty(wrapped, "validationErrors", entries)
		}
		return wrapped
	case schema.ErrInvalidJSONFormat:
		return eventerr.Wrap(valErr, eventerr.InternalError, valErr.Message)
	default: // ErrSchemaNotFound, ErrSchemaLoadFailed, ErrSchemaCompileFailed, ErrAbsoluteRefDisallowed.
		return eventerr.Wrap(valErr, eventerr.SchemaLoadFailure, valErr.Message)
	}
}

// sanitizeStream derives a stream name from a schema ref when stream_field
// is unconfigured, per spec §6: replace every character outside
// [A-Za-z0-9_.-] with '_', then strip leading underscores. A fallback
// prefix keeps the result matching ^[A-Za-z0-9][A-Za-z0-9_.-]*$ even for
// refs that sanitize down to nothing or to a leading '.'/'-', which keeps
// sanitizeStream idempotent (a second pass finds nothing left to replace or
// strip).
func sanitizeStream(ref string) string {
	out := make([]rune, 0, len(ref))
	for _, r := range ref {
		if isStreamChar(r) {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	trimmed := trimLeadingUnderscores(string(out))
	if trimmed == "" {
		return "s"
	}
	if !isAlnum(rune(trimmed[0])) {
		return "s" + trimmed
	}
	return trimmed
}

func isStreamChar(r rune) bool {
	return isAlnum(r) || r == '_' || r == '.' || r == '-'
}

func isAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func trimLeadingUnderscores(s string) string {
	i := 0
	for i < len(s) && s[i] == '_' {
		i++
	}
	return s[i:]
}

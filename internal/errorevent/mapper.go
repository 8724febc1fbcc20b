// Package errorevent synthesizes error events from validation failures and
// feeds them back into the same pipeline, per spec §4.8. Grounded on the
// teacher's internal/mcperror ErrorWithDetails/ErrorToMap shape — here
// specialized to the one concrete payload the spec defines, rather than a
// general-purpose error-to-map renderer.
package errorevent

// file: internal/errorevent/mapper.go

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dkoosis/cowgnition/internal/config"
	"github.com/dkoosis/cowgnition/internal/eventerr"
	"github.com/dkoosis/cowgnition/internal/extract"
	"github.com/dkoosis/cowgnition/internal/logging"
	"github.com/google/uuid"
)

// Mapper turns a ValidationFailure EventStatus into a re-ingestible error
// event. Any other error kind is dropped (Map returns a nil event, nil
// error), per spec §4.8 ("Returns null for non-validation errors").
type Mapper struct {
	errorSchemaURI  string
	errorStream     string
	schemaURIFields []string
	streamFields    []string
	emitterID       string
	logger          logging.Logger
}

// NewMapper builds a Mapper from configuration.
func NewMapper(cfg *config.Settings, logger logging.Logger) *Mapper {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Mapper{
		errorSchemaURI:  cfg.ErrorSchemaURI,
		errorStream:     cfg.ErrorStream,
		schemaURIFields: cfg.SchemaURIField,
		streamFields:    cfg.StreamField,
		emitterID:       cfg.EmitterID,
		logger:          logger.WithField("component", "error_event_mapper"),
	}
}

// Map implements eventgate.ErrorMapper. ctx leads per Go convention; the
// (err, event) pair that follows is the spec's canonical EventGate-style
// mapToErrorEvent(error, event, context) argument pairing.
func (m *Mapper) Map(_ context.Context, err error, event map[string]interface{}) (map[string]interface{}, error) {
	if eventerr.KindOf(err) != eventerr.ValidationFailure {
		return nil, nil
	}
	if m.errorSchemaURI == "" || m.errorStream == "" {
		m.logger.Debug("Skipping error-event mapping: error_schema_uri/error_stream not configured.")
		return nil, nil
	}

	raw, merr := json.Marshal(event)
	if merr != nil {
		return nil, eventerr.Wrap(merr, eventerr.InternalError, "failed to serialize original event for error-event mapping")
	}

	id, uerr := uuid.NewV7()
	if uerr != nil {
		return nil, eventerr.Wrap(uerr, eventerr.InternalError, "failed to generate error-event id")
	}

	errMap := eventerr.ToMap(err)
	message, _ := errMap["message"].(string)

	out := map[string]interface{}{
		"meta": map[string]interface{}{
			"id":         id.String(),
			"dt":         time.Now().UTC().Format(time.RFC3339Nano),
			"uri":        stringFieldOr(event, "meta.uri", "unknown"),
			"domain":     stringFieldOr(event, "meta.domain", "unknown"),
			"request_id": stringFieldOr(event, "meta.request_id", "unknown"),
		},
		"emitter_id": m.emitterID,
		"raw_event":  string(raw),
		"message":    message,
	}

	if len(m.schemaURIFields) > 0 {
		setDotted(out, m.schemaURIFields[0], m.errorSchemaURI)
	}
	if len(m.streamFields) > 0 {
		setDotted(out, m.streamFields[0], m.errorStream)
	}

	return out, nil
}

func stringFieldOr(event map[string]interface{}, path, defaultValue string) string {
	if v, ok := extract.Field(event, path); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return defaultValue
}

// setDotted writes value at path within m, creating intermediate object
// levels as needed. It mirrors extract.Field's traversal in reverse.
func setDotted(m map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	cur := m
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
}

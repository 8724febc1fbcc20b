// Package extract provides small, pure dotted-path field extractors over
// decoded JSON events. Grounded in spirit on the teacher's dedicated,
// fail-closed identifyRequestID/identifyMessage helpers
// (internal/middleware/validation.go, since superseded), simplified here to
// literal dotted-path traversal with ordered fallback rather than
// JSON-RPC-shape classification, per spec §4.4 and Design Note 9
// ("dotted-path extractors... keep them explicit and fail-closed").
package extract

// file: internal/extract/extract.go

import (
	"strings"

	"github.com/dkoosis/cowgnition/internal/eventerr"
)

// Field looks up a single dotted path (e.g. "meta.stream") within event. A
// literal "." in a key is not supported, matching the spec's definition of
// "dotted path".
func Field(event map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var cur interface{} = event
	for _, seg := range segments {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String extracts a string field at the first present path in paths. If
// none is present and no default is given, it fails closed with a
// MissingField error rather than silently returning the zero value.
func String(event map[string]interface{}, paths []string, defaultValue ...string) (string, error) {
	for _, path := range paths {
		if v, ok := Field(event, path); ok {
			s, ok := v.(string)
			if !ok {
				return "", eventerr.New(eventerr.MissingField, "field present but not a string: "+path)
			}
			return s, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return "", eventerr.New(eventerr.MissingField, "none of the configured paths were present: "+strings.Join(paths, ", "))
}

// StringOptional is like String but returns ("", false) instead of an error
// when no path holds a string, skipping non-string values — used for the
// genuinely optional extractors (id_field, dt_field, key_field,
// partition_field) that the core treats as "use library defaults" on miss.
func StringOptional(event map[string]interface{}, paths []string) (string, bool) {
	for _, path := range paths {
		if v, ok := Field(event, path); ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

package schema

// file: internal/schema/defaults.go
//
// Defaults application is new: the teacher's validator only ever validates,
// never mutates. Grounded on the general map[string]interface{} tree-walking
// style used throughout the teacher's schema package (e.g. the now-removed
// version-detection helpers), adapted here to fill in schema "default"
// values on the decoded event so callers observe the populated event per
// spec §4.3.

// ApplyDefaults walks schemaDoc's "properties" (recursively, through nested
// "properties" and array "items") alongside instance, setting any field that
// is absent from instance but carries a "default" in the schema. instance is
// mutated in place; ApplyDefaults also returns it for convenience.
//
// Re-running ApplyDefaults against an already-filled instance is a no-op:
// every field it would set is already present, so the "missing from
// instance" check short-circuits everywhere.
func ApplyDefaults(schemaDoc map[string]interface{}, instance map[string]interface{}) map[string]interface{} {
	if schemaDoc == nil || instance == nil {
		return instance
	}
	applyObjectDefaults(schemaDoc, instance)
	return instance
}

func applyObjectDefaults(schema map[string]interface{}, instance map[string]interface{}) {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for name, rawPropSchema := range props {
		propSchema, ok := rawPropSchema.(map[string]interface{})
		if !ok {
			continue
		}
		existing, present := instance[name]
		if !present {
			if def, hasDefault := propSchema["default"]; hasDefault {
				instance[name] = cloneValue(def)
				continue
			}
			// No default and no value: nothing more to do for this field,
			// but still descend if the caller ends up populating it later
			// is out of scope — a missing required object cannot have its
			// nested defaults filled without a value to attach them to.
			continue
		}
		descendInto(propSchema, existing)
	}
}

func descendInto(propSchema map[string]interface{}, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		applyObjectDefaults(propSchema, v)
	case []interface{}:
		itemSchema, ok := propSchema["items"].(map[string]interface{})
		if !ok {
			return
		}
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				applyObjectDefaults(itemSchema, obj)
			}
		}
	}
}

// cloneValue deep-copies map/slice defaults so that mutating one event's
// defaulted field can never alias the schema document's own default value.
func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		clone := make(map[string]interface{}, len(val))
		for k, sub := range val {
			clone[k] = cloneValue(sub)
		}
		return clone
	case []interface{}:
		clone := make([]interface{}, len(val))
		for i, sub := range val {
			clone[i] = cloneValue(sub)
		}
		return clone
	default:
		return val
	}
}

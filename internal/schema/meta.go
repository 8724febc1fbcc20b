package schema

// file: internal/schema/meta.go
//
// Meta-schema handling per spec §4.3: a fetched schema whose $id matches a
// configured regex (default: hosts under json-schema.org) describes JSON
// Schema itself rather than an event. It is registered with the compiler so
// other schemas can $ref it, but it is never added to the validator entry
// map — nothing ever validates an event "against" a meta-schema directly.
//
// santhosh-tekuri/jsonschema/v5 already bundles the draft-04/06/07/2019-09/
// 2020-12 meta-schemas internally and resolves their well-known URIs without
// a network call; the minimum-preload requirement in §4.3 is therefore
// satisfied by using the stock compiler unmodified. MetaRegistry exists for
// the dynamic case: a locally hosted or vendored meta-schema whose $id the
// deployment recognizes via metaSchemaIdRegex.

import (
	"bytes"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MetaRegistry decides whether a fetched document is a meta-schema and, if
// so, installs it into the compiler's resource set.
type MetaRegistry struct {
	idRegex *regexp.Regexp
}

// NewMetaRegistry builds a MetaRegistry from the configured $id pattern. An
// empty pattern disables dynamic meta-schema recognition (only the drafts
// bundled by the jsonschema library are known).
func NewMetaRegistry(idRegexPattern string) (*MetaRegistry, error) {
	if idRegexPattern == "" {
		return &MetaRegistry{}, nil
	}
	re, err := regexp.Compile(idRegexPattern)
	if err != nil {
		return nil, err
	}
	return &MetaRegistry{idRegex: re}, nil
}

// IsMetaSchema reports whether id matches the configured meta-schema pattern.
func (m *MetaRegistry) IsMetaSchema(id string) bool {
	if m == nil || m.idRegex == nil || id == "" {
		return false
	}
	return m.idRegex.MatchString(id)
}

// Install registers doc's raw bytes as a compiler resource under id so other
// schemas can reference it via $ref, without creating a validator entry.
func (m *MetaRegistry) Install(compiler *jsonschema.Compiler, id string, raw []byte) error {
	return compiler.AddResource(id, bytes.NewReader(raw))
}

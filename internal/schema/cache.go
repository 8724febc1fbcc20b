package schema

// file: internal/schema/cache.go
//
// Cache owns the JSON-Schema engine and the SchemaRef -> ValidatorEntry map
// (spec §4.3). It generalizes the teacher's Validator (internal/schema/
// validator.go, one fixed embedded/override schema, one compiler) into many
// schemas keyed by SchemaRef, compiled lazily and cached until the next
// Reload, with single-flight compile de-duplication and $id aliasing.

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/cowgnition/internal/logging"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/singleflight"
)

// Entry is a compiled validator plus the parsed schema document it came from.
type Entry struct {
	Ref    string
	ID     string
	Title  string
	Schema *jsonschema.Schema
	Doc    map[string]interface{}
}

// Cache compiles and memoizes validators per SchemaRef.
type Cache struct {
	mu       sync.RWMutex
	compiler *jsonschema.Compiler
	entries  map[string]*Entry

	resolver *Resolver
	fetcher  *Fetcher
	meta     *MetaRegistry
	group    singleflight.Group
	logger   logging.Logger
}

// NewCache builds a Cache. httpClient may be nil to use a default.
func NewCache(resolver *Resolver, httpClient *http.Client, meta *MetaRegistry, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	c := &Cache{
		entries:  make(map[string]*Entry),
		resolver: resolver,
		fetcher:  NewFetcher(httpClient, logger),
		meta:     meta,
		logger:   logger.WithField("component", "schema_cache"),
	}
	c.compiler = newCompiler()
	c.compiler.UseLoader(&cacheLoader{cache: c})
	return c
}

func newCompiler() *jsonschema.Compiler {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	compiler.AssertContent = true
	return compiler
}

// cacheLoader lets the jsonschema compiler resolve $refs it hasn't already
// been given via AddResource, by routing them through the same
// resolver+fetcher pipeline used for top-level SchemaRefs.
type cacheLoader struct {
	cache *Cache
}

func (l *cacheLoader) Load(url string) (interface{}, error) {
	doc, _, err := l.cache.fetcher.fetchDoc(context.Background(), url)
	return doc, err
}

// fetchDoc fetches and parses a single concrete URL (not a ref needing
// resolution), used by cacheLoader for $ref-triggered fetches.
func (f *Fetcher) fetchDoc(ctx context.Context, rawURL string) (map[string]interface{}, []byte, error) {
	doc, raw, _, err := f.Fetch(ctx, rawURL, []string{rawURL})
	return doc, raw, err
}

// ValidatorFor returns the cached entry for ref, compiling it on first use.
// At most one compile per ref runs at a time; concurrent callers share the
// result (golang.org/x/sync/singleflight).
func (c *Cache) ValidatorFor(ctx context.Context, ref string) (*Entry, error) {
	if entry, ok := c.lookup(ref); ok {
		return entry, nil
	}

	result, err, _ := c.group.Do(ref, func() (interface{}, error) {
		if entry, ok := c.lookup(ref); ok {
			return entry, nil
		}
		return c.compileRef(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Entry), nil
}

func (c *Cache) lookup(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *Cache) compileRef(ctx context.Context, ref string) (*Entry, error) {
	candidates, err := c.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}

	doc, raw, usedURL, err := c.fetcher.Fetch(ctx, ref, candidates)
	if err != nil {
		return nil, err
	}

	// The fetcher decodes YAML (a JSON superset), but the compiler reads only
	// JSON, and yaml.v3 yields int where decoded events hold float64. Re-encode
	// the document as JSON and decode it again so the compiler, the defaults
	// and the events all see the same values.
	raw, err = json.Marshal(doc)
	if err == nil {
		doc = nil
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, New(ErrSchemaLoadFailed, "failed to re-encode schema document as JSON").WithContext("ref", ref).WithContext("cause", err.Error())
	}

	id, _ := doc["$id"].(string)
	if id == "" {
		id, _ = doc["id"].(string)
	}

	// Snapshot the compiler under lock: Reload() swaps c.compiler out from
	// under in-flight compiles, so every read below must use this snapshot
	// rather than c.compiler directly, or a compile could register resources
	// into (or compile against) a compiler Reload is simultaneously
	// discarding.
	c.mu.RLock()
	compiler := c.compiler
	c.mu.RUnlock()

	if c.meta.IsMetaSchema(id) {
		if err := c.meta.Install(compiler, id, raw); err != nil {
			return nil, New(ErrSchemaLoadFailed, "failed to install meta-schema resource").WithContext("ref", ref).WithContext("id", id)
		}
		return nil, New(ErrSchemaNotFound, "ref identifies a meta-schema, not a validatable event schema").WithContext("ref", ref)
	}

	resourceID := usedURL
	if err := compiler.AddResource(resourceID, bytes.NewReader(raw)); err != nil {
		return nil, New(ErrSchemaLoadFailed, "failed to register schema resource").
			WithContext("ref", ref).WithContext("resourceID", resourceID)
	}

	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, New(ErrSchemaCompileFailed, "failed to compile schema").
			WithContext("ref", ref).WithContext("resourceID", resourceID).WithContext("cause", err.Error())
	}

	title, _ := doc["title"].(string)
	entry := &Entry{Ref: ref, ID: id, Title: title, Schema: compiled, Doc: doc}

	c.mu.Lock()
	c.entries[ref] = entry
	if id != "" && id != ref {
		c.entries[id] = entry
	}
	if usedURL != ref && usedURL != id {
		c.entries[usedURL] = entry
	}
	c.mu.Unlock()

	c.logger.Debug("Compiled schema.", "ref", ref, "id", id, "title", title)
	return entry, nil
}

// Validate fetches/compiles the validator for ref (if not already cached),
// validates data against it, applies schema defaults to the decoded event,
// and returns the (possibly mutated) event as a map.
func (c *Cache) Validate(ctx context.Context, ref string, data []byte) (map[string]interface{}, error) {
	entry, err := c.ValidatorFor(ctx, ref)
	if err != nil {
		return nil, err
	}

	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, New(ErrInvalidJSONFormat, "invalid JSON format").WithContext("ref", ref).WithContext("dataPreview", calculatePreview(data))
	}

	if err := entry.Schema.Validate(instance); err != nil {
		var valErr *jsonschema.ValidationError
		if errors.As(err, &valErr) {
			return nil, convertValidationError(valErr, ref, data)
		}
		return nil, New(ErrValidationFailed, "schema validation failed with unexpected error").WithContext("ref", ref).WithContext("cause", err.Error())
	}

	obj, ok := instance.(map[string]interface{})
	if !ok {
		return nil, New(ErrInvalidJSONFormat, "event must be a JSON object").WithContext("ref", ref)
	}
	return ApplyDefaults(entry.Doc, obj), nil
}

// SchemaFor returns the parsed schema document cached for ref, if any.
func (c *Cache) SchemaFor(ctx context.Context, ref string) (map[string]interface{}, error) {
	entry, err := c.ValidatorFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return entry.Doc, nil
}

// TitleFor returns the title of the schema cached for ref, used by the
// stream authorizer.
func (c *Cache) TitleFor(ctx context.Context, ref string) (string, error) {
	entry, err := c.ValidatorFor(ctx, ref)
	if err != nil {
		return "", err
	}
	return entry.Title, nil
}

// Precache compiles every ref eagerly, typically called once at startup for
// schema_precache_uris. It returns the first error encountered but attempts
// every ref regardless.
func (c *Cache) Precache(ctx context.Context, refs []string) error {
	var firstErr error
	for _, ref := range refs {
		if _, err := c.ValidatorFor(ctx, ref); err != nil {
			c.logger.Warn("Failed to precache schema.", "ref", ref, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Reload discards the compiler and every cached entry, rebuilding from
// scratch. Per Design Note 9 / §5's "MUST NOT see a torn state" and the
// open-question decision against engine reuse across reload, this never
// tries to salvage existing compiled validators — the next ValidatorFor call
// for any ref recompiles it exactly once.
func (c *Cache) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compiler = newCompiler()
	c.compiler.UseLoader(&cacheLoader{cache: c})
	c.entries = make(map[string]*Entry)
	c.group = singleflight.Group{}
	c.logger.Info("Schema cache reloaded; all validators will recompile on next use.")
}

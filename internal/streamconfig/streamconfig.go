// Package streamconfig owns the StreamConfig map and the stream-authorization
// algorithm of spec §4.5: literal-or-regex stream keys, first-match-wins,
// checked against a schema's declared title.
package streamconfig

// file: internal/streamconfig/streamconfig.go

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/cowgnition/internal/eventerr"
	"github.com/dkoosis/cowgnition/internal/logging"
	"gopkg.in/yaml.v3"
)

// Entry is one StreamConfig key: either a literal stream name or a
// pre-compiled /regex/ pattern, mapped to the required schema title.
type Entry struct {
	Key         string
	Regex       *regexp.Regexp
	SchemaTitle string
}

func (e Entry) matches(stream string) bool {
	if e.Regex != nil {
		return e.Regex.MatchString(stream)
	}
	return e.Key == stream
}

// Config is the parsed StreamConfig document: an ordered list of entries,
// document order preserved per spec §3 (iteration order = insertion order).
type Config struct {
	Entries []Entry
}

// parse decodes a raw StreamConfig document (YAML map whose keys are stream
// names or "/regex/" patterns, and whose values carry at least
// schema_title) into an ordered Config. yaml.v3 preserves mapping key order
// via yaml.Node, which is used here instead of decoding straight into a Go
// map (map iteration order is unspecified in Go and would break the
// first-match-wins contract).
func parse(raw []byte, titleField string) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse StreamConfig document")
	}
	if len(doc.Content) == 0 {
		return &Config{}, nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, errors.New("StreamConfig document root must be a mapping")
	}

	cfg := &Config{}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]

		var value map[string]interface{}
		if err := valNode.Decode(&value); err != nil {
			return nil, errors.Wrapf(err, "failed to decode StreamConfig entry %q", keyNode.Value)
		}
		title, _ := value[titleField].(string)

		entry := Entry{Key: keyNode.Value, SchemaTitle: title}
		if strings.HasPrefix(keyNode.Value, "/") && strings.HasSuffix(keyNode.Value, "/") && len(keyNode.Value) > 1 {
			pattern := keyNode.Value[1 : len(keyNode.Value)-1]
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid StreamConfig regex key %q", keyNode.Value)
			}
			entry.Regex = re
		}
		cfg.Entries = append(cfg.Entries, entry)
	}
	return cfg, nil
}

// findEntry returns the first entry whose key matches stream, in document
// order.
func (c *Config) findEntry(stream string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	for _, e := range c.Entries {
		if e.matches(stream) {
			return e, true
		}
	}
	return Entry{}, false
}

// TitleLookup resolves a SchemaRef to its schema's declared title. The
// schema.Cache type satisfies this interface; Authorizer depends only on the
// method, not on the schema package, keeping the two decoupled.
type TitleLookup interface {
	TitleFor(ctx context.Context, ref string) (string, error)
}

// Authorizer owns the current StreamConfig snapshot and the title-field
// configuration used to read it, and checks {schema, stream} pairs against
// it per spec §4.5.
type Authorizer struct {
	uri        string
	titleField string

	mu  sync.RWMutex
	cfg *Config

	httpClient *http.Client
	logger     logging.Logger
}

// NewAuthorizer builds an Authorizer for the given StreamConfig URI. An empty
// uri disables authorization entirely (EnsureAllowed always succeeds), per
// spec §4.5 ("If stream_config_uri is unset, authorization is skipped").
func NewAuthorizer(uri, titleField string, logger logging.Logger) *Authorizer {
	if titleField == "" {
		titleField = "schema_title"
	}
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Authorizer{
		uri:        uri,
		titleField: titleField,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.WithField("component", "stream_authorizer"),
	}
}

// Load fetches and parses the StreamConfig document, replacing the current
// snapshot atomically. Readers always observe a consistent Config.
func (a *Authorizer) Load(ctx context.Context) error {
	if a.uri == "" {
		return nil
	}
	raw, err := a.fetch(ctx, a.uri)
	if err != nil {
		return eventerr.Wrap(err, eventerr.InternalError, "failed to load StreamConfig document")
	}
	cfg, err := parse(raw, a.titleField)
	if err != nil {
		return eventerr.Wrap(err, eventerr.InternalError, "failed to parse StreamConfig document")
	}

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.logger.Info("StreamConfig loaded.", "uri", a.uri, "entries", len(cfg.Entries))
	return nil
}

// EnsureAllowed implements the §4.5 algorithm: resolve the schema title for
// ref, find the first matching stream key, and compare titles.
func (a *Authorizer) EnsureAllowed(ctx context.Context, lookup TitleLookup, ref, stream string) error {
	if a.uri == "" {
		return nil
	}

	a.mu.RLock()
	cfg := a.cfg
	a.mu.RUnlock()

	title, err := lookup.TitleFor(ctx, ref)
	if err != nil {
		// A TitleFor failure is not itself an authorization denial: a
		// SchemaLoadFailure from the underlying schema.Cache (fetch/parse/
		// compile outage) must surface as an Error, not get flattened into
		// Invalid. Preserve whatever Kind the cause already carries, mirroring
		// eventgate.classifySchemaError.
		return eventerr.Wrap(err, eventerr.KindOf(err), "could not resolve schema title for authorization")
	}
	if title == "" {
		return eventerr.New(eventerr.UnauthorizedStream, "schema has no title; cannot authorize")
	}

	entry, ok := cfg.findEntry(stream)
	if !ok {
		return eventerr.New(eventerr.UnauthorizedStream, fmt.Sprintf("stream %q is not configured", stream))
	}
	if entry.SchemaTitle == "" {
		return eventerr.New(eventerr.UnauthorizedStream, fmt.Sprintf("stream %q has no configured schema_title", stream))
	}
	if entry.SchemaTitle != title {
		return eventerr.New(eventerr.UnauthorizedStream,
			fmt.Sprintf("schema title %q is not authorized for stream %q (expects %q)", title, stream, entry.SchemaTitle))
	}
	return nil
}

// fetch reads a document from a file:// or http(s):// URI, grounded on the
// same loadSchemaFromURI idiom the schema package's Fetcher generalizes.
func (a *Authorizer) fetch(ctx context.Context, uri string) ([]byte, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid StreamConfig URI: %s", uri)
	}

	switch parsed.Scheme {
	case "", "file":
		path := parsed.Path
		if path == "" {
			path = uri
		}
		// #nosec G304 -- path originates from trusted configuration.
		return os.ReadFile(path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, errors.Wrap(err, "http.NewRequestWithContext failed")
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "httpClient.Do failed")
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Newf("HTTP status %d fetching StreamConfig", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, errors.Newf("unsupported StreamConfig URI scheme: %s", parsed.Scheme)
	}
}

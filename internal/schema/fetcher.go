package schema

// file: internal/schema/fetcher.go
//
// Fetches schema documents by URL: file:// from the local filesystem, any
// other scheme via HTTP(S) GET. Generalizes the teacher's loadSchemaFromURI
// (internal/schema/loader.go, a single override-URI fetch) to the spec's
// ordered-candidate-list fetch-first-success semantics.

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/cowgnition/internal/logging"
	"gopkg.in/yaml.v3"
)

// localFileURL converts a local filesystem path (already extension-resolved)
// into a file:// URL, preserving the teacher's Windows-path handling.
func localFileURL(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + abs, nil
}

// Fetcher retrieves and parses schema documents by URL. It is idempotent and
// stateless; all caching lives in Cache.
type Fetcher struct {
	httpClient *http.Client
	logger     logging.Logger
}

// NewFetcher builds a Fetcher with the given HTTP client (a non-nil default
// is substituted if client is nil).
func NewFetcher(client *http.Client, logger logging.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Fetcher{httpClient: client, logger: logger.WithField("component", "schema_fetcher")}
}

// Fetch tries each candidate URL in order and returns the first one that
// loads and parses successfully, along with the URL it was fetched from. If
// every candidate fails, it returns a SchemaLoadFailure aggregating the
// underlying causes.
func (f *Fetcher) Fetch(ctx context.Context, ref string, candidates []string) (map[string]interface{}, []byte, string, error) {
	if len(candidates) == 0 {
		return nil, nil, "", New(ErrSchemaLoadFailed, "no candidate URLs to fetch schema from").WithContext("ref", ref)
	}

	var causes []string
	for _, candidate := range candidates {
		raw, err := f.fetchOne(ctx, candidate)
		if err != nil {
			causes = append(causes, fmt.Sprintf("%s: %v", candidate, err))
			continue
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			causes = append(causes, fmt.Sprintf("%s: parse failed: %v", candidate, err))
			continue
		}
		return doc, raw, candidate, nil
	}

	return nil, nil, "", New(ErrSchemaLoadFailed, fmt.Sprintf("failed to fetch schema %q from any candidate", ref)).
		WithContext("ref", ref).
		WithContext("candidates", candidates).
		WithContext("causes", causes)
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schema URL: %s", rawURL)
	}

	switch parsed.Scheme {
	case "file":
		return f.fetchFile(parsed)
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	default:
		return nil, errors.Newf("unsupported schema URL scheme: %s", parsed.Scheme)
	}
}

func (f *Fetcher) fetchFile(parsed *url.URL) ([]byte, error) {
	filePath := parsed.Path
	if os.PathSeparator == '\\' && strings.HasPrefix(filePath, "/") && len(filePath) > 2 && filePath[2] == ':' {
		filePath = filePath[1:]
	}

	f.logger.Debug("Reading schema file.", "path", filePath)
	// #nosec G304 -- path originates from trusted configuration / resolver, not request input.
	data, err := os.ReadFile(filePath)
	if err != nil {
		f.logger.Warn("Failed to read schema file.", "path", filePath, "error", err)
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "http.NewRequestWithContext failed")
	}
	req.Header.Set("Accept", "application/schema+json, application/json, application/yaml, */*")
	req.Header.Set("User-Agent", "eventgate-schema-fetcher/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "httpClient.Do failed")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Warn("Error closing schema fetch response body.", "url", rawURL, "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("HTTP status %d fetching schema; body preview: %s", resp.StatusCode, calculatePreview(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "io.ReadAll failed")
	}
	return data, nil
}

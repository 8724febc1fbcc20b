// Package schema owns JSON-Schema resolution, fetching, compilation, and
// validation for EventGate.
package schema

// file: internal/schema/resolver.go

import (
	"path"
	"regexp"
	"strings"
)

// schemeRe matches a URI scheme prefix (e.g. "http://", "file://").
var schemeRe = regexp.MustCompile(`^[a-z0-9+.-]+://`)

// hasExtension reports whether the last path segment of ref carries a
// filename extension, per spec: the last '.'-delimited segment of the last
// path component must be non-empty and non-numeric (a bare version number
// like "0.0.1" is not an extension).
func hasExtension(ref string) bool {
	base := path.Base(ref)
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return false
	}
	suffix := base[idx+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

// hasScheme reports whether ref is already absolute (carries a URI scheme).
func hasScheme(ref string) bool {
	return schemeRe.MatchString(ref)
}

// Resolver turns a SchemaRef into one or more candidate URLs to fetch, per
// spec §4.1. It is grounded on the teacher's loadSchemaFromURI path-handling
// logic, generalized from "one override URI" to "an ordered base-URI list".
type Resolver struct {
	BaseURIs      []string
	FileExtension string
	AllowAbsolute bool
}

// NewResolver builds a Resolver from configuration.
func NewResolver(baseURIs []string, fileExtension string, allowAbsolute bool) *Resolver {
	return &Resolver{
		BaseURIs:      baseURIs,
		FileExtension: fileExtension,
		AllowAbsolute: allowAbsolute,
	}
}

// Resolve implements the §4.1 rules in order and returns the ordered list of
// candidate URLs the fetcher should try. An error indicates a policy
// rejection (absolute ref disallowed); no candidates are returned in that
// case so the fetcher never issues a network call for it.
func (r *Resolver) Resolve(ref string) ([]string, error) {
	wasAbsolute := hasScheme(ref)

	withExt := ref
	if !hasExtension(ref) && r.FileExtension != "" {
		withExt = ref + r.FileExtension
	}

	if wasAbsolute {
		if !r.AllowAbsolute {
			return nil, New(ErrAbsoluteRefDisallowed, "absolute schema ref not permitted by policy").
				WithContext("ref", ref)
		}
		return []string{withExt}, nil
	}

	if len(r.BaseURIs) == 0 {
		abs, err := localFileURL(withExt)
		if err != nil {
			return nil, New(ErrSchemaLoadFailed, "failed to resolve local schema path").WithContext("ref", ref)
		}
		return []string{abs}, nil
	}

	candidates := make([]string, 0, len(r.BaseURIs))
	for _, base := range r.BaseURIs {
		candidates = append(candidates, joinBase(base, withExt))
	}
	return candidates, nil
}

func joinBase(base, ref string) string {
	if strings.HasSuffix(base, "/") || strings.HasPrefix(ref, "/") {
		return base + strings.TrimPrefix(ref, "/")
	}
	return base + "/" + ref
}

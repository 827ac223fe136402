package services

import (
	"net/url"
	"sort"
	"strings"
)

// Tracking query parameters stripped during normalization. utm_* parameters
// are matched by prefix.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
}

// hostAliases maps hosts known to serve the same platform, so a stored
// record under one host is found when queried under the other.
var hostAliases = map[string][]string{
	"lu.ma":    {"luma.com"},
	"luma.com": {"lu.ma"},
}

// NormalizeURL canonicalizes a URL for identity comparison: lower-cases the
// host, strips the www. prefix and any trailing slash on non-root paths,
// removes tracking parameters, sorts the remaining query parameters by key,
// and drops the fragment. A missing scheme is assumed to be https; non-http(s)
// schemes and unparseable input return "".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}

	parsed.Scheme = scheme
	parsed.Host = strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parsed.Fragment = ""

	// Strip trailing slash from non-root paths.
	if parsed.Path != "/" {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}
	if parsed.Path == "/" {
		parsed.Path = ""
	}

	// Remove tracking parameters and sort the rest for stable comparison.
	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if trackingParams[k] || strings.HasPrefix(k, "utm_") {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for i, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}

	return parsed.String()
}

// NormalizeURLCandidates expands a URL into all canonical forms it could be
// stored under, covering known host aliases (lu.ma and luma.com serve the
// same pages). The primary NormalizeURL result is always first when non-empty.
func NormalizeURLCandidates(raw string) []string {
	primary := NormalizeURL(raw)
	if primary == "" {
		return nil
	}

	candidates := []string{primary}
	seen := map[string]bool{primary: true}

	parsed, err := url.Parse(primary)
	if err != nil {
		return candidates
	}

	for _, alias := range hostAliases[parsed.Host] {
		variant := *parsed
		variant.Host = alias
		s := variant.String()
		if !seen[s] {
			candidates = append(candidates, s)
			seen[s] = true
		}
	}

	return candidates
}

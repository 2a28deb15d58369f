// Package urlnorm canonicalizes raw URLs to stable lookup keys.
// Normalization is deterministic and pure: the same input always yields the
// same normalized form, and normalizing an already-normalized URL is a no-op.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidURL is returned when the input is not a parseable absolute
// http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// Result holds the outputs of normalization.
type Result struct {
	// NormalizedURL is the stable lookup key for link deduplication.
	NormalizedURL string
	// CanonicalURL is a site-specific canonical form (e.g. old.reddit.com
	// rewrite), or empty when no rewrite applies. Stored separately so that
	// lookups by normalized form remain stable.
	CanonicalURL string
	// Domain is the lowercase registrable host, without port.
	Domain string
}

// trackingParams are well-known analytics query parameters stripped during
// normalization. utm_* is matched by prefix.
var trackingParams = map[string]bool{
	"fbclid":      true,
	"gclid":       true,
	"gclsrc":      true,
	"dclid":       true,
	"msclkid":     true,
	"twclid":      true,
	"igshid":      true,
	"igsh":        true,
	"mc_cid":      true,
	"mc_eid":      true,
	"ref_src":     true,
	"ref_url":     true,
	"si":          true,
	"feature":     true,
	"share_id":    true,
	"_hsenc":      true,
	"_hsmi":       true,
	"vero_conv":   true,
	"vero_id":     true,
	"wickedid":    true,
	"yclid":       true,
	"s_kwcid":     true,
	"sthash":      true,
	"usp":         true,
	"spm":         true,
	"share_app_id": true,
}

func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	return trackingParams[lower]
}

// Normalize canonicalizes a raw URL: lowercases scheme and host, strips
// default ports and tracking parameters, sorts the remaining query
// parameters, collapses trailing slashes, and converts IDN hosts to punycode.
func Normalize(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: not an absolute URL", ErrInvalidURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Hostname())
	if punycode, err := idna.Lookup.ToASCII(host); err == nil {
		host = punycode
	}

	// Strip default ports, keep explicit non-default ones.
	if port := u.Port(); port != "" {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			u.Host = host
		} else {
			u.Host = host + ":" + port
		}
	} else {
		u.Host = host
	}

	// Drop tracking parameters and sort the rest for a stable key.
	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if isTrackingParam(name) {
				q.Del(name)
			}
		}
		u.RawQuery = encodeSorted(q)
	}

	// Collapse trailing slashes on the path ("/a///" -> "/a").
	for strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" {
		u.Path = ""
	}

	u.Fragment = ""

	return &Result{
		NormalizedURL: u.String(),
		CanonicalURL:  canonicalize(u),
		Domain:        host,
	}, nil
}

// encodeSorted is url.Values.Encode with deterministic value ordering: keys
// are sorted (as Encode does) and repeated values keep insertion order.
func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// canonicalize applies site-specific canonical rewrites. Kept here rather
// than in the per-site handlers so there is exactly one canonical form per
// site across the ingest and query paths.
func canonicalize(u *url.URL) string {
	switch {
	case isRedditHost(u.Host):
		c := *u
		c.Host = "old.reddit.com"
		return c.String()
	case u.Host == "youtu.be":
		// youtu.be/<id> -> youtube.com/watch?v=<id>
		id := strings.TrimPrefix(u.Path, "/")
		if id == "" {
			return ""
		}
		return "https://www.youtube.com/watch?v=" + id
	case isYouTubeHost(u.Host) && strings.HasPrefix(u.Path, "/shorts/"):
		id := strings.TrimPrefix(u.Path, "/shorts/")
		if id == "" {
			return ""
		}
		return "https://www.youtube.com/watch?v=" + id
	case u.Host == "x.com":
		c := *u
		c.Host = "twitter.com"
		return c.String()
	}
	return ""
}

func isRedditHost(host string) bool {
	return host == "reddit.com" || host == "www.reddit.com" || host == "new.reddit.com" || host == "np.reddit.com"
}

func isYouTubeHost(host string) bool {
	return host == "youtube.com" || host == "www.youtube.com" || host == "m.youtube.com"
}

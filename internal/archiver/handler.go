// Package archiver contains the site-specific archive handlers and the
// registry that routes URLs to them. Handlers write files into a
// caller-provided work directory and return an ArchiveResult; they never
// touch the object store or the database. Persistence is the executor's job.
package archiver

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// OutputFile is one file a handler produced under the work directory.
type OutputFile struct {
	Path        string // absolute path under the work dir
	Kind        models.ArtifactKind
	ContentType string

	// Platform and VideoID are the video-dedup hint: when both are set on a
	// kind=video file, the executor consults the shared video index before
	// uploading.
	Platform string
	VideoID  string

	// PerceptualHash is an optional precomputed 64-bit dHash (hex). The
	// executor computes one itself for image/screenshot kinds when empty.
	PerceptualHash string
}

// Result is what a handler returns on success.
type Result struct {
	ContentType models.ContentType
	Title       string
	Author      string
	Text        string

	PrimaryFile *OutputFile
	ThumbFile   *OutputFile
	ExtraFiles  []OutputFile

	IsNSFW     bool
	NSFWSource models.NSFWSource

	HTTPStatus int
	FinalURL   string // after redirect resolution, when known

	// QuotedURL and ReplyToURL let the executor wire quote/reply chains
	// between archives (reddit crossposts, tweet replies).
	QuotedURL  string
	ReplyToURL string

	// External archive mirrors, when the handler captured them.
	WaybackURL      string
	ArchiveTodayURL string
}

// Options carries per-invocation handler configuration.
type Options struct {
	CookieFile   string
	FetchTimeout time.Duration
	UserAgent    string
}

// Handler is a site-specific strategy for fetching and structuring one URL.
type Handler interface {
	// SiteID returns a stable identifier ("youtube", "generic", ...).
	SiteID() string
	// Matches reports whether this handler wants the URL.
	Matches(rawURL string) bool
	// NormalizeURL applies handler-specific URL rewrites (shorts -> watch).
	NormalizeURL(rawURL string) string
	// Archive fetches the URL, writes files under workDir and returns the
	// structured result. Errors should be *archiver.Error for precise
	// classification; anything else is treated as transient.
	Archive(ctx context.Context, rawURL, workDir string, opts Options) (*Result, error)
}

// Registry is an immutable, ordered handler list constructed once at
// startup. Lookup is a linear first-match scan; the generic handler is
// registered last and matches any http(s) URL, so lookup is total.
type Registry struct {
	handlers []Handler
}

// NewRegistry builds the default registry in fixed dispatch order.
func NewRegistry(fetchTimeout time.Duration, cookieFiles map[string]string) *Registry {
	return &Registry{
		handlers: []Handler{
			NewYouTubeHandler(cookieFiles["youtube"]),
			NewRedditHandler(cookieFiles["reddit"]),
			NewTwitterHandler(cookieFiles["twitter"]),
			NewTikTokHandler(cookieFiles["tiktok"]),
			NewGenericHandler(fetchTimeout),
		},
	}
}

// NewRegistryWith builds a registry from an explicit handler list, in order.
// Used by tests to substitute stub handlers.
func NewRegistryWith(handlers ...Handler) *Registry {
	return &Registry{handlers: handlers}
}

// Find returns the first handler matching the URL, or nil if none does
// (only possible for non-http schemes, which the normalizer rejects first).
func (r *Registry) Find(rawURL string) Handler {
	for _, h := range r.handlers {
		if h.Matches(rawURL) {
			return h
		}
	}
	return nil
}

// Handlers returns the dispatch order. The slice must not be mutated.
func (r *Registry) Handlers() []Handler {
	return r.handlers
}

// hostOf parses the lowercase hostname from a raw URL, or "".
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// isHTTP reports whether the URL has an http or https scheme.
func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

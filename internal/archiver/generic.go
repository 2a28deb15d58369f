package archiver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/XertroV/linkarchive/internal/models"
)

const defaultUserAgent = "linkarchive/1.0 (+https://github.com/XertroV/linkarchive)"

// maxFetchBytes caps how much of a response the generic handler will save.
const maxFetchBytes = 100 << 20 // 100 MiB

// GenericHandler archives any http(s) URL: HTML pages get saved raw with
// title/author/text extraction, everything else is stored as an opaque file
// classified by content type. Registered last so dispatch is total.
type GenericHandler struct {
	client *http.Client
}

// NewGenericHandler creates the fallback handler.
func NewGenericHandler(timeout time.Duration) *GenericHandler {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &GenericHandler{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (h *GenericHandler) SiteID() string { return "generic" }

func (h *GenericHandler) Matches(rawURL string) bool {
	return isHTTP(rawURL)
}

func (h *GenericHandler) NormalizeURL(rawURL string) string { return rawURL }

func (h *GenericHandler) Archive(ctx context.Context, rawURL, workDir string, opts Options) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, InvalidInput(fmt.Sprintf("bad url: %v", err))
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, Transient("fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, HTTPError(resp.StatusCode, fmt.Sprintf("GET %s", rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, Transient("read body failed", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		return h.archiveHTML(body, rawURL, finalURL, workDir, resp.StatusCode)
	}
	return h.archiveOpaque(body, mediaType, finalURL, workDir, resp.StatusCode)
}

// archiveHTML saves the page and extracts title/author/text from meta tags
// and readability.
func (h *GenericHandler) archiveHTML(body []byte, rawURL, finalURL, workDir string, status int) (*Result, error) {
	pagePath := filepath.Join(workDir, "page.html")
	if err := os.WriteFile(pagePath, body, 0o644); err != nil {
		return nil, Transient("write page failed", err)
	}

	result := &Result{
		ContentType: models.ContentTypeText,
		HTTPStatus:  status,
		FinalURL:    finalURL,
		PrimaryFile: &OutputFile{
			Path:        pagePath,
			Kind:        models.ArtifactKindRawHTML,
			ContentType: "text/html",
		},
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		result.Title = pageTitle(doc)
		result.Author = metaContent(doc, "author", "article:author")
		if metaContent(doc, "rating") == "adult" {
			result.IsNSFW = true
			result.NSFWSource = models.NSFWSourceDetected
		}
	}

	parsed, _ := url.Parse(finalURL)
	if article, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		text := strings.TrimSpace(article.TextContent)
		if text != "" {
			result.Text = text
		}
		if result.Title == "" {
			result.Title = article.Title
		}
		if result.Author == "" {
			result.Author = article.Byline
		}
	}

	return result, nil
}

// archiveOpaque stores a non-HTML response as a single file, classified by
// its media type.
func (h *GenericHandler) archiveOpaque(body []byte, mediaType, finalURL, workDir string, status int) (*Result, error) {
	kind := models.ArtifactKindMetadata
	ct := models.ContentTypeMixed
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		kind = models.ArtifactKindImage
		ct = models.ContentTypeImage
	case mediaType == "application/pdf":
		kind = models.ArtifactKindPDF
		ct = models.ContentTypePDF
	case strings.HasPrefix(mediaType, "video/"):
		kind = models.ArtifactKindVideo
		ct = models.ContentTypeVideo
	case strings.HasPrefix(mediaType, "audio/"):
		kind = models.ArtifactKindVideo
		ct = models.ContentTypeAudio
	case strings.HasPrefix(mediaType, "text/"):
		kind = models.ArtifactKindRawHTML
		ct = models.ContentTypeText
	}

	name := "content" + extensionFor(mediaType, finalURL)
	path := filepath.Join(workDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return nil, Transient("write file failed", err)
	}

	return &Result{
		ContentType: ct,
		HTTPStatus:  status,
		FinalURL:    finalURL,
		PrimaryFile: &OutputFile{
			Path:        path,
			Kind:        kind,
			ContentType: mediaType,
		},
	}, nil
}

// pageTitle prefers og:title over the <title> element.
func pageTitle(doc *goquery.Document) string {
	if og := metaContent(doc, "og:title"); og != "" {
		return og
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// metaContent returns the first non-empty content attribute among meta tags
// with any of the given name/property values.
func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, name, name)
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// extensionFor picks a file extension from the media type, falling back to
// the URL path.
func extensionFor(mediaType, rawURL string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return ".bin"
}

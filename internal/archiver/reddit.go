package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// RedditHandler archives reddit posts through the public .json API on
// old.reddit.com. Selftext posts become text archives, image and gallery
// posts download their media, video posts go through yt-dlp so v.redd.it
// audio tracks get merged.
type RedditHandler struct {
	cookieFile string
	client     *http.Client
}

func NewRedditHandler(cookieFile string) *RedditHandler {
	return &RedditHandler{
		cookieFile: cookieFile,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *RedditHandler) SiteID() string { return "reddit" }

func (h *RedditHandler) Matches(rawURL string) bool {
	host := hostOf(rawURL)
	return host == "reddit.com" || strings.HasSuffix(host, ".reddit.com") || host == "redd.it"
}

// NormalizeURL rewrites all reddit mirrors to old.reddit.com, which serves
// the stable .json API without consent interstitials.
func (h *RedditHandler) NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "reddit.com" || strings.HasSuffix(host, ".reddit.com") {
		u.Host = "old.reddit.com"
		return u.String()
	}
	return rawURL
}

// redditListing is the top-level shape of a post's .json endpoint.
type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Selftext  string `json:"selftext"`
	Permalink string `json:"permalink"`
	Over18    bool   `json:"over_18"`
	IsVideo   bool   `json:"is_video"`
	PostHint  string `json:"post_hint"`
	DestURL   string `json:"url_overridden_by_dest"`

	CrosspostParents []redditPost `json:"crosspost_parent_list"`

	GalleryData struct {
		Items []struct {
			MediaID string `json:"media_id"`
		} `json:"items"`
	} `json:"gallery_data"`
	MediaMetadata map[string]struct {
		M string `json:"m"`
		S struct {
			U string `json:"u"`
		} `json:"s"`
	} `json:"media_metadata"`
}

func (h *RedditHandler) Archive(ctx context.Context, rawURL, workDir string, opts Options) (*Result, error) {
	jsonURL := h.NormalizeURL(rawURL)
	jsonURL = strings.TrimSuffix(jsonURL, "/") + ".json"

	body, status, err := h.get(ctx, jsonURL, opts)
	if err != nil {
		return nil, err
	}

	metaPath := filepath.Join(workDir, "post.json")
	if err := os.WriteFile(metaPath, body, 0o644); err != nil {
		return nil, Transient("write metadata failed", err)
	}

	var listings []redditListing
	if err := json.Unmarshal(body, &listings); err != nil || len(listings) == 0 ||
		len(listings[0].Data.Children) == 0 {
		return nil, Transient("unexpected reddit response shape", err)
	}
	post := listings[0].Data.Children[0].Data

	result := &Result{
		Title:      post.Title,
		Author:     post.Author,
		Text:       post.Selftext,
		HTTPStatus: status,
	}
	if post.Over18 {
		result.IsNSFW = true
		result.NSFWSource = models.NSFWSourcePlatform
	}
	if len(post.CrosspostParents) > 0 && post.CrosspostParents[0].Permalink != "" {
		result.QuotedURL = "https://old.reddit.com" + post.CrosspostParents[0].Permalink
	}

	metaFile := OutputFile{Path: metaPath, Kind: models.ArtifactKindMetadata, ContentType: "application/json"}

	switch {
	case post.IsVideo:
		if err := h.archiveVideo(ctx, rawURL, workDir, opts, &post, result); err != nil {
			return nil, err
		}
	case len(post.GalleryData.Items) > 0:
		if err := h.archiveGallery(ctx, workDir, opts, &post, result); err != nil {
			return nil, err
		}
	case post.PostHint == "image" && post.DestURL != "":
		if err := h.archiveImage(ctx, workDir, opts, post.DestURL, result); err != nil {
			return nil, err
		}
	default:
		result.ContentType = models.ContentTypeText
		result.PrimaryFile = &metaFile
		return result, nil
	}

	result.ExtraFiles = append(result.ExtraFiles, metaFile)
	return result, nil
}

// archiveVideo hands the permalink to yt-dlp so DASH audio gets merged.
func (h *RedditHandler) archiveVideo(ctx context.Context, rawURL, workDir string, opts Options, post *redditPost, result *Result) error {
	cookieFile := opts.CookieFile
	if cookieFile == "" {
		cookieFile = h.cookieFile
	}
	out, err := runYtDlp(ctx, rawURL, workDir, cookieFile)
	if err != nil {
		return err
	}
	result.ContentType = models.ContentTypeVideo
	result.PrimaryFile = &OutputFile{
		Path:        out.VideoPath,
		Kind:        models.ArtifactKindVideo,
		ContentType: videoContentType(out.VideoPath),
		Platform:    "reddit",
		VideoID:     firstNonEmpty(out.Info.ID, post.ID),
	}
	if out.ThumbPath != "" {
		result.ThumbFile = &OutputFile{
			Path:        out.ThumbPath,
			Kind:        models.ArtifactKindThumb,
			ContentType: imageContentType(out.ThumbPath),
		}
	}
	return nil
}

// archiveGallery downloads every gallery item at source resolution.
func (h *RedditHandler) archiveGallery(ctx context.Context, workDir string, opts Options, post *redditPost, result *Result) error {
	result.ContentType = models.ContentTypeGallery
	for i, item := range post.GalleryData.Items {
		meta, ok := post.MediaMetadata[item.MediaID]
		if !ok || meta.S.U == "" {
			continue
		}
		srcURL := html.UnescapeString(meta.S.U)
		name := fmt.Sprintf("gallery_%02d%s", i+1, extensionFor(meta.M, srcURL))
		path := filepath.Join(workDir, name)
		if err := h.download(ctx, srcURL, path, opts); err != nil {
			return err
		}
		file := OutputFile{Path: path, Kind: models.ArtifactKindImage, ContentType: meta.M}
		if result.PrimaryFile == nil {
			result.PrimaryFile = &file
		} else {
			result.ExtraFiles = append(result.ExtraFiles, file)
		}
	}
	if result.PrimaryFile == nil {
		return Transient("gallery had no downloadable items", nil)
	}
	return nil
}

// archiveImage downloads a single direct image post.
func (h *RedditHandler) archiveImage(ctx context.Context, workDir string, opts Options, srcURL string, result *Result) error {
	path := filepath.Join(workDir, "image"+extensionFor("", srcURL))
	if err := h.download(ctx, srcURL, path, opts); err != nil {
		return err
	}
	result.ContentType = models.ContentTypeImage
	result.PrimaryFile = &OutputFile{
		Path:        path,
		Kind:        models.ArtifactKindImage,
		ContentType: imageContentType(path),
	}
	return nil
}

// get fetches a URL and returns the body and status, classifying failures.
func (h *RedditHandler) get(ctx context.Context, rawURL string, opts Options) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, InvalidInput(fmt.Sprintf("bad url: %v", err))
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, Transient("reddit fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, HTTPError(resp.StatusCode, fmt.Sprintf("GET %s", rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, resp.StatusCode, Transient("read body failed", err)
	}
	return body, resp.StatusCode, nil
}

// download streams a URL to a file on disk.
func (h *RedditHandler) download(ctx context.Context, rawURL, dest string, opts Options) error {
	body, _, err := h.get(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return Transient("write file failed", err)
	}
	return nil
}

package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// TwitterHandler archives tweets through the unauthenticated syndication
// endpoint, which still serves text, photos and reply/quote structure.
// Video tweets go through yt-dlp so we get the highest-bitrate variant.
type TwitterHandler struct {
	cookieFile string
	client     *http.Client
}

func NewTwitterHandler(cookieFile string) *TwitterHandler {
	return &TwitterHandler{
		cookieFile: cookieFile,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *TwitterHandler) SiteID() string { return "twitter" }

var tweetPathRe = regexp.MustCompile(`^/[^/]+/status(?:es)?/(\d+)`)

func (h *TwitterHandler) Matches(rawURL string) bool {
	switch hostOf(rawURL) {
	case "twitter.com", "www.twitter.com", "mobile.twitter.com", "x.com", "www.x.com":
		return true
	}
	return false
}

// NormalizeURL rewrites x.com to twitter.com and strips everything after the
// status ID (photo indexes, tracking suffixes).
func (h *TwitterHandler) NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "x.com" || host == "www.x.com" || host == "mobile.twitter.com" {
		u.Host = "twitter.com"
	}
	if m := tweetPathRe.FindStringSubmatch(u.Path); m != nil {
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		u.Path = fmt.Sprintf("/%s/status/%s", parts[0], m[1])
		u.RawQuery = ""
		u.Fragment = ""
	}
	return u.String()
}

// tweetResult is the subset of the syndication payload we consume.
type tweetResult struct {
	Typename string `json:"__typename"`
	IDStr    string `json:"id_str"`
	Text     string `json:"text"`
	User     struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	Photos []struct {
		URL string `json:"url"`
	} `json:"photos"`
	Video struct {
		Variants []struct {
			Type string `json:"type"`
			Src  string `json:"src"`
		} `json:"variants"`
	} `json:"video"`
	InReplyToStatusID  string `json:"in_reply_to_status_id_str"`
	InReplyToScreename string `json:"in_reply_to_screen_name"`
	QuotedTweet        *struct {
		IDStr string `json:"id_str"`
		User  struct {
			ScreenName string `json:"screen_name"`
		} `json:"user"`
	} `json:"quoted_tweet"`
	PossiblySensitive bool `json:"possibly_sensitive"`
}

func (h *TwitterHandler) Archive(ctx context.Context, rawURL, workDir string, opts Options) (*Result, error) {
	canonical := h.NormalizeURL(rawURL)
	m := tweetPathRe.FindStringSubmatch(urlPath(canonical))
	if m == nil {
		// Profile pages and search URLs have nothing stable to capture.
		return nil, Skip("not a tweet permalink")
	}
	tweetID := m[1]

	synURL := fmt.Sprintf(
		"https://cdn.syndication.twimg.com/tweet-result?id=%s&token=%s",
		tweetID, syndicationToken(tweetID))
	body, status, err := h.get(ctx, synURL, opts)
	if err != nil {
		return nil, err
	}

	metaPath := filepath.Join(workDir, "tweet.json")
	if err := os.WriteFile(metaPath, body, 0o644); err != nil {
		return nil, Transient("write metadata failed", err)
	}

	var tweet tweetResult
	if err := json.Unmarshal(body, &tweet); err != nil {
		return nil, Transient("unexpected syndication response shape", err)
	}
	if tweet.Typename == "TweetTombstone" {
		return nil, AuthRequired("tweet is age-restricted or withheld")
	}

	result := &Result{
		Title:      tweetTitle(tweet),
		Author:     tweet.User.ScreenName,
		Text:       tweet.Text,
		HTTPStatus: status,
		FinalURL:   canonical,
	}
	if tweet.PossiblySensitive {
		result.IsNSFW = true
		result.NSFWSource = models.NSFWSourcePlatform
	}
	if tweet.InReplyToStatusID != "" && tweet.InReplyToScreename != "" {
		result.ReplyToURL = fmt.Sprintf("https://twitter.com/%s/status/%s",
			tweet.InReplyToScreename, tweet.InReplyToStatusID)
	}
	if tweet.QuotedTweet != nil && tweet.QuotedTweet.IDStr != "" {
		result.QuotedURL = fmt.Sprintf("https://twitter.com/%s/status/%s",
			tweet.QuotedTweet.User.ScreenName, tweet.QuotedTweet.IDStr)
	}

	metaFile := OutputFile{Path: metaPath, Kind: models.ArtifactKindMetadata, ContentType: "application/json"}

	switch {
	case len(tweet.Video.Variants) > 0:
		if err := h.archiveVideo(ctx, canonical, workDir, opts, tweetID, result); err != nil {
			return nil, err
		}
	case len(tweet.Photos) > 0:
		if err := h.archivePhotos(ctx, workDir, opts, &tweet, result); err != nil {
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

func (h *TwitterHandler) archiveVideo(ctx context.Context, canonical, workDir string, opts Options, tweetID string, result *Result) error {
	cookieFile := opts.CookieFile
	if cookieFile == "" {
		cookieFile = h.cookieFile
	}
	out, err := runYtDlp(ctx, canonical, workDir, cookieFile)
	if err != nil {
		return err
	}
	result.ContentType = models.ContentTypeVideo
	result.PrimaryFile = &OutputFile{
		Path:        out.VideoPath,
		Kind:        models.ArtifactKindVideo,
		ContentType: videoContentType(out.VideoPath),
		Platform:    "twitter",
		VideoID:     firstNonEmpty(out.Info.ID, tweetID),
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

func (h *TwitterHandler) archivePhotos(ctx context.Context, workDir string, opts Options, tweet *tweetResult, result *Result) error {
	if len(tweet.Photos) > 1 {
		result.ContentType = models.ContentTypeGallery
	} else {
		result.ContentType = models.ContentTypeImage
	}
	for i, photo := range tweet.Photos {
		// :orig serves the unrecompressed upload.
		srcURL := photo.URL + "?name=orig"
		name := fmt.Sprintf("photo_%02d%s", i+1, extensionFor("", photo.URL))
		path := filepath.Join(workDir, name)
		body, _, err := h.get(ctx, srcURL, opts)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return Transient("write file failed", err)
		}
		file := OutputFile{Path: path, Kind: models.ArtifactKindImage, ContentType: imageContentType(path)}
		if result.PrimaryFile == nil {
			result.PrimaryFile = &file
		} else {
			result.ExtraFiles = append(result.ExtraFiles, file)
		}
	}
	return nil
}

func (h *TwitterHandler) get(ctx context.Context, rawURL string, opts Options) ([]byte, int, error) {
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
		return nil, 0, Transient("twitter fetch failed", err)
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

// tweetTitle builds a display title since tweets have none of their own.
func tweetTitle(tweet tweetResult) string {
	text := strings.Join(strings.Fields(tweet.Text), " ")
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	if tweet.User.ScreenName == "" {
		return text
	}
	return fmt.Sprintf("@%s: %s", tweet.User.ScreenName, text)
}

// syndicationToken derives the token query parameter the syndication CDN
// expects: base-36 of id/1e15*pi with zeros and the dot removed.
func syndicationToken(id string) string {
	n, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return ""
	}
	v := n / 1e15 * math.Pi
	intPart := int64(v)
	frac := v - float64(intPart)

	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	b.WriteString(strconv.FormatInt(intPart, 36))
	for i := 0; i < 11; i++ {
		frac *= 36
		d := int(frac)
		b.WriteByte(digits[d])
		frac -= float64(d)
	}
	return strings.NewReplacer("0", "", ".", "").Replace(b.String())
}

// urlPath returns the path component of a raw URL, or "".
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}

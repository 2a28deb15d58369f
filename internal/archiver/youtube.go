package archiver

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/XertroV/linkarchive/internal/models"
)

// YouTubeHandler archives YouTube videos via yt-dlp. Video files are keyed by
// (youtube, video_id) so re-uploads and mirror posts share one stored copy.
type YouTubeHandler struct {
	cookieFile string
}

func NewYouTubeHandler(cookieFile string) *YouTubeHandler {
	return &YouTubeHandler{cookieFile: cookieFile}
}

func (h *YouTubeHandler) SiteID() string { return "youtube" }

func (h *YouTubeHandler) Matches(rawURL string) bool {
	switch host := hostOf(rawURL); host {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// NormalizeURL rewrites short-link and shorts forms to the canonical watch
// URL so the same video never produces two link rows.
func (h *YouTubeHandler) NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be":
		id := strings.Trim(u.Path, "/")
		if id != "" {
			return "https://www.youtube.com/watch?v=" + id
		}
	case strings.HasSuffix(host, "youtube.com") && strings.HasPrefix(u.Path, "/shorts/"):
		id := path.Base(u.Path)
		if id != "" && id != "shorts" {
			return "https://www.youtube.com/watch?v=" + id
		}
	}
	return rawURL
}

func (h *YouTubeHandler) Archive(ctx context.Context, rawURL, workDir string, opts Options) (*Result, error) {
	cookieFile := opts.CookieFile
	if cookieFile == "" {
		cookieFile = h.cookieFile
	}

	out, err := runYtDlp(ctx, rawURL, workDir, cookieFile,
		"--format", "bestvideo[height<=1080]+bestaudio/best[height<=1080]/best",
		"--merge-output-format", "mp4",
	)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ContentType: models.ContentTypeVideo,
		Title:       out.Info.Title,
		Author:      firstNonEmpty(out.Info.Uploader, out.Info.Channel),
		Text:        out.Info.Description,
		FinalURL:    out.Info.WebpageURL,
		PrimaryFile: &OutputFile{
			Path:        out.VideoPath,
			Kind:        models.ArtifactKindVideo,
			ContentType: videoContentType(out.VideoPath),
			Platform:    "youtube",
			VideoID:     out.Info.ID,
		},
	}
	if out.Info.AgeLimit >= 18 {
		result.IsNSFW = true
		result.NSFWSource = models.NSFWSourceDetected
	}
	if out.ThumbPath != "" {
		result.ThumbFile = &OutputFile{
			Path:        out.ThumbPath,
			Kind:        models.ArtifactKindThumb,
			ContentType: imageContentType(out.ThumbPath),
		}
	}
	if out.InfoJSONPath != "" {
		result.ExtraFiles = append(result.ExtraFiles, OutputFile{
			Path:        out.InfoJSONPath,
			Kind:        models.ArtifactKindMetadata,
			ContentType: "application/json",
		})
	}
	for _, sub := range out.SubtitlePaths {
		result.ExtraFiles = append(result.ExtraFiles, OutputFile{
			Path:        sub,
			Kind:        models.ArtifactKindSubtitles,
			ContentType: "text/vtt",
		})
	}
	return result, nil
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

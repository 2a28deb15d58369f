package archiver

import (
	"context"
	"strings"

	"github.com/XertroV/linkarchive/internal/models"
)

// TikTokHandler archives TikTok videos via yt-dlp. Slideshow posts come back
// as a single rendered video, which is good enough for dedup purposes.
type TikTokHandler struct {
	cookieFile string
}

func NewTikTokHandler(cookieFile string) *TikTokHandler {
	return &TikTokHandler{cookieFile: cookieFile}
}

func (h *TikTokHandler) SiteID() string { return "tiktok" }

func (h *TikTokHandler) Matches(rawURL string) bool {
	host := hostOf(rawURL)
	return host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com")
}

// NormalizeURL leaves TikTok URLs alone; short vm.tiktok.com links redirect
// server-side and yt-dlp follows them itself.
func (h *TikTokHandler) NormalizeURL(rawURL string) string { return rawURL }

func (h *TikTokHandler) Archive(ctx context.Context, rawURL, workDir string, opts Options) (*Result, error) {
	cookieFile := opts.CookieFile
	if cookieFile == "" {
		cookieFile = h.cookieFile
	}

	out, err := runYtDlp(ctx, rawURL, workDir, cookieFile)
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
			Platform:    "tiktok",
			VideoID:     out.Info.ID,
		},
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
	return result, nil
}

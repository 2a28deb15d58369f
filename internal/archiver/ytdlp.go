package archiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ytdlpInfo is the subset of yt-dlp's info JSON the handlers care about.
type ytdlpInfo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Ext         string  `json:"ext"`
	AgeLimit    int     `json:"age_limit"`
	WebpageURL  string  `json:"webpage_url"`
}

// ytdlpOutput collects the files a yt-dlp run produced under the work dir.
type ytdlpOutput struct {
	Info          ytdlpInfo
	InfoJSONPath  string
	VideoPath     string
	ThumbPath     string
	SubtitlePaths []string
}

// authWallMarkers are yt-dlp stderr fragments that mean the platform wants a
// logged-in session rather than that the download transiently failed.
var authWallMarkers = []string{
	"sign in to confirm",
	"login required",
	"requires authentication",
	"private video",
	"this video is only available for registered users",
	"use --cookies",
	"account that has been confirmed",
	"nsfw tweet",
}

// runYtDlp downloads a single video (no playlists) plus its info JSON,
// thumbnail and subtitles into workDir. The child's stdout is progress
// chatter and is treated as opaque; classification happens on stderr.
func runYtDlp(ctx context.Context, rawURL, workDir, cookieFile string, extraArgs ...string) (*ytdlpOutput, error) {
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--write-info-json",
		"--write-thumbnail",
		"--write-subs",
		"--sub-langs", "en.*",
		"--restrict-filenames",
		"--paths", workDir,
		"--output", "media.%(ext)s",
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args, extraArgs...)
	args = append(args, rawURL)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, Transient("download cancelled", ctx.Err())
		}
		return nil, classifyYtDlpError(stderr.String(), err)
	}

	out := &ytdlpOutput{}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, Transient("read work dir failed", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "media.") {
			continue
		}
		path := filepath.Join(workDir, e.Name())
		switch ext := strings.ToLower(filepath.Ext(e.Name())); ext {
		case ".json":
			out.InfoJSONPath = path
		case ".jpg", ".jpeg", ".png", ".webp":
			out.ThumbPath = path
		case ".vtt", ".srt":
			out.SubtitlePaths = append(out.SubtitlePaths, path)
		default:
			out.VideoPath = path
		}
	}
	if out.VideoPath == "" {
		return nil, Transient("yt-dlp produced no media file", nil)
	}

	if out.InfoJSONPath != "" {
		data, err := os.ReadFile(out.InfoJSONPath)
		if err == nil {
			_ = json.Unmarshal(data, &out.Info)
		}
	}

	return out, nil
}

// classifyYtDlpError maps yt-dlp stderr to the error taxonomy.
func classifyYtDlpError(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	for _, marker := range authWallMarkers {
		if strings.Contains(lower, marker) {
			return AuthRequired(firstStderrLine(stderr))
		}
	}
	if strings.Contains(lower, "unsupported url") {
		return Skip(firstStderrLine(stderr))
	}
	for _, status := range []int{404, 410, 451} {
		if strings.Contains(lower, fmt.Sprintf("http error %d", status)) {
			return HTTPError(status, firstStderrLine(stderr))
		}
	}
	return Transient(firstStderrLine(stderr), err)
}

// firstStderrLine returns the first ERROR line, or the first line, of
// yt-dlp stderr so error_message stays readable.
func firstStderrLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(line)
		}
	}
	if len(lines) > 0 && lines[0] != "" {
		return strings.TrimSpace(lines[0])
	}
	return "yt-dlp failed"
}

// videoContentType maps a container extension to a MIME type.
func videoContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// imageContentType maps an image extension to a MIME type.
func imageContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

package archiver

import (
	"errors"
	"testing"
)

func TestClassifyYtDlpError(t *testing.T) {
	base := errors.New("exit status 1")
	tests := []struct {
		name   string
		stderr string
		want   Kind
	}{
		{
			"age gate",
			"ERROR: [youtube] abc: Sign in to confirm your age. This video may be inappropriate for some users.",
			KindAuthRequired,
		},
		{
			"private video",
			"ERROR: [youtube] abc: Private video. Sign in if you've been granted access to this video",
			KindAuthRequired,
		},
		{
			"cookies needed",
			"ERROR: NSFW tweet requires authentication. Use --cookies or --cookies-from-browser",
			KindAuthRequired,
		},
		{
			"unsupported url",
			"ERROR: Unsupported URL: https://example.com/live-stream",
			KindSkipped,
		},
		{
			"deleted video",
			"ERROR: [youtube] abc: Video unavailable. HTTP Error 404: Not Found",
			KindHTTPClient,
		},
		{
			"geo takedown",
			"ERROR: unable to download video data: HTTP Error 451: Unavailable For Legal Reasons",
			KindHTTPClient,
		},
		{
			"network flake",
			"ERROR: unable to download video data: The read operation timed out",
			KindTransient,
		},
		{
			"empty stderr",
			"",
			KindTransient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyYtDlpError(tt.stderr, base)
			kind, _ := Classify(err)
			if kind != tt.want {
				t.Errorf("classifyYtDlpError(%q) kind = %s, want %s", tt.stderr, kind, tt.want)
			}
		})
	}
}

func TestFirstStderrLine(t *testing.T) {
	stderr := "WARNING: something minor\nERROR: [youtube] abc: Video unavailable\nmore context"
	if got := firstStderrLine(stderr); got != "ERROR: [youtube] abc: Video unavailable" {
		t.Errorf("firstStderrLine() = %q", got)
	}
	if got := firstStderrLine("plain failure text"); got != "plain failure text" {
		t.Errorf("firstStderrLine() = %q", got)
	}
	if got := firstStderrLine(""); got != "yt-dlp failed" {
		t.Errorf("firstStderrLine() = %q", got)
	}
}

func TestVideoContentType(t *testing.T) {
	tests := map[string]string{
		"/tmp/media.mp4":  "video/mp4",
		"/tmp/media.webm": "video/webm",
		"/tmp/media.mkv":  "video/x-matroska",
		"/tmp/media.m4a":  "audio/mp4",
		"/tmp/media.xyz":  "application/octet-stream",
	}
	for path, want := range tests {
		if got := videoContentType(path); got != want {
			t.Errorf("videoContentType(%q) = %q, want %q", path, got, want)
		}
	}
}

package urlnorm

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "strips default https port",
			in:   "https://example.com:443/a",
			want: "https://example.com/a",
		},
		{
			name: "strips default http port",
			in:   "http://example.com:80/a",
			want: "http://example.com/a",
		},
		{
			name: "keeps explicit non-default port",
			in:   "https://example.com:8443/a",
			want: "https://example.com:8443/a",
		},
		{
			name: "strips utm parameters",
			in:   "https://example.com/a?utm_source=x&utm_medium=y&id=1",
			want: "https://example.com/a?id=1",
		},
		{
			name: "strips fbclid and sorts remaining params",
			in:   "https://example.com/a?z=2&fbclid=abc&a=1",
			want: "https://example.com/a?a=1&z=2",
		},
		{
			name: "strips youtube si param",
			in:   "https://youtu.be/abc?si=XyZ",
			want: "https://youtu.be/abc",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/a#section",
			want: "https://example.com/a",
		},
		{
			name: "collapses trailing slashes",
			in:   "https://example.com/a///",
			want: "https://example.com/a",
		},
		{
			name: "bare root path drops the slash",
			in:   "https://example.com/",
			want: "https://example.com",
		},
		{
			name: "keeps path case",
			in:   "https://example.com/CaseSensitive",
			want: "https://example.com/CaseSensitive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error = %v", tt.in, err)
			}
			if got.NormalizedURL != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got.NormalizedURL, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM:443/a/b/?utm_source=x&z=2&a=1#frag",
		"https://www.reddit.com/r/golang/comments/abc/title/",
		"https://youtu.be/dQw4w9WgXcQ?si=tracker",
		"https://x.com/someone/status/123456789",
	}
	for _, in := range inputs {
		first, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", in, err)
		}
		second, err := Normalize(first.NormalizedURL)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", first.NormalizedURL, err)
		}
		if second.NormalizedURL != first.NormalizedURL {
			t.Errorf("not idempotent: %q -> %q -> %q", in, first.NormalizedURL, second.NormalizedURL)
		}
	}
}

func TestNormalize_Canonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.reddit.com/r/golang/comments/abc/title", "https://old.reddit.com/r/golang/comments/abc/title"},
		{"https://np.reddit.com/r/golang", "https://old.reddit.com/r/golang"},
		{"https://youtu.be/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/abc123", "https://www.youtube.com/watch?v=abc123"},
		{"https://x.com/someone/status/42", "https://twitter.com/someone/status/42"},
		{"https://example.com/plain", ""},
		{"https://old.reddit.com/r/golang", ""},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", tt.in, err)
		}
		if got.CanonicalURL != tt.want {
			t.Errorf("Normalize(%q).CanonicalURL = %q, want %q", tt.in, got.CanonicalURL, tt.want)
		}
	}
}

func TestNormalize_Domain(t *testing.T) {
	got, err := Normalize("https://Sub.Example.COM:8080/a")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Domain != "sub.example.com" {
		t.Errorf("Domain = %q, want sub.example.com", got.Domain)
	}
}

func TestNormalize_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not a url",
		"/relative/path",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"mailto:a@example.com",
	}
	for _, in := range inputs {
		if _, err := Normalize(in); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalidURL", in, err)
		}
	}
}

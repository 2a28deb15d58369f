package archiver

import (
	"errors"
	"fmt"
	"testing"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{500, KindTransient},
		{502, KindTransient},
		{503, KindTransient},
		{429, KindTransient},
		{401, KindAuthRequired},
		{403, KindAuthRequired},
		{404, KindHTTPClient},
		{410, KindHTTPClient},
		{451, KindHTTPClient},
		{400, KindHTTPClient},
	}
	for _, tt := range tests {
		err := HTTPError(tt.status, "GET /")
		if err.Kind != tt.want {
			t.Errorf("HTTPError(%d).Kind = %s, want %s", tt.status, err.Kind, tt.want)
		}
		if err.HTTPStatus != tt.status {
			t.Errorf("HTTPError(%d).HTTPStatus = %d", tt.status, err.HTTPStatus)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{"transient", Transient("net down", nil), KindTransient, 0},
		{"http", HTTPError(404, "gone"), KindHTTPClient, 404},
		{"auth", AuthRequired("login wall"), KindAuthRequired, 0},
		{"skip", Skip("unsupported media"), KindSkipped, 0},
		{"invalid", InvalidInput("bad scheme"), KindInvalidInput, 0},
		{"wrapped", fmt.Errorf("handler: %w", HTTPError(403, "forbidden")), KindAuthRequired, 403},
		{"unknown error defaults to transient", errors.New("boom"), KindTransient, 0},
		{"nil-ish plain error", fmt.Errorf("plain"), KindTransient, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, status := Classify(tt.err)
			if kind != tt.wantKind || status != tt.wantStatus {
				t.Errorf("Classify() = (%s, %d), want (%s, %d)", kind, status, tt.wantKind, tt.wantStatus)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := Transient("fetch failed", inner)
	if !errors.Is(err, inner) {
		t.Error("Transient should wrap the inner error")
	}
}

func TestErrorString(t *testing.T) {
	withStatus := HTTPError(404, "GET /missing")
	if got := withStatus.Error(); got != "http_client (http 404): GET /missing" {
		t.Errorf("Error() = %q", got)
	}
	plain := Skip("unsupported media")
	if got := plain.Error(); got != "skipped: unsupported media" {
		t.Errorf("Error() = %q", got)
	}
}

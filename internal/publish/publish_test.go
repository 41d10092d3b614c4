package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		input   string
		want    Visibility
		wantErr bool
	}{
		{"public", VisibilityPublic, false},
		{"Unlisted", VisibilityUnlisted, false},
		{" private ", VisibilityPrivate, false},
		{"direct", VisibilityDirect, false},
		{"followers", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVisibility(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVisibility(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVisibility(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVisibility(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPublishError(t *testing.T) {
	inner := errors.New("bad request")
	err := error(&PublishError{Op: "post status", StatusCode: 422, Message: "Text can't be blank", Err: inner})

	if got := err.Error(); got != "publish: post status: status 422: Text can't be blank" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, inner) {
		t.Error("PublishError should unwrap to the cause")
	}

	noStatus := &PublishError{Op: "download image", Err: inner}
	if got := noStatus.Error(); got != "publish: download image: bad request" {
		t.Errorf("Error() = %q", got)
	}
}

// fakeMastodon is a minimal Mastodon API.
type fakeMastodon struct {
	mu         sync.Mutex
	statuses   []map[string][]string
	uploads    [][]byte
	auth       []string
	userAgents []string
	statusCode int
	statusBody string
}

func (f *fakeMastodon) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.userAgents = append(f.userAgents, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/media"):
			file, _, err := r.FormFile("file")
			if err != nil {
				t.Errorf("media upload without file: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			f.uploads = append(f.uploads, data)
			_, _ = io.WriteString(w, `{"id":"media-`+strconv.Itoa(len(f.uploads))+`","type":"image"}`)

		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/statuses":
			f.statuses = append(f.statuses, requestParams(t, r))
			if f.statusCode != 0 {
				w.WriteHeader(f.statusCode)
				_, _ = io.WriteString(w, f.statusBody)
				return
			}
			_, _ = io.WriteString(w, `{"id":"1001","url":"https://social.example/@bot/1001","content":"ok"}`)

		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/accounts/verify_credentials":
			if r.Header.Get("Authorization") != "Bearer good-token" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"The access token is invalid"}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"1","username":"bot","acct":"bot"}`)

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// requestParams reads form or JSON bodies into one shape.
func requestParams(t *testing.T, r *http.Request) map[string][]string {
	t.Helper()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode json body: %v", err)
			return nil
		}
		out := make(map[string][]string)
		for k, v := range body {
			switch val := v.(type) {
			case []any:
				for _, item := range val {
					if str, ok := item.(string); ok {
						out[k+"[]"] = append(out[k+"[]"], str)
					}
				}
			case string:
				out[k] = []string{val}
			}
		}
		return out
	}
	if err := r.ParseForm(); err != nil {
		t.Errorf("parse form: %v", err)
		return nil
	}
	return r.PostForm
}

func newTestMastodon(t *testing.T, f *fakeMastodon, token string) (*Mastodon, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(f.handler(t))
	t.Cleanup(ts.Close)

	m, err := NewMastodon(MastodonOptions{BaseURL: ts.URL + "/", AccessToken: token})
	if err != nil {
		t.Fatalf("new mastodon: %v", err)
	}
	return m, ts
}

func TestNewMastodon_Validation(t *testing.T) {
	if _, err := NewMastodon(MastodonOptions{AccessToken: "x"}); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewMastodon(MastodonOptions{BaseURL: "https://social.example"}); err == nil {
		t.Error("expected error without access token")
	}
}

func TestMastodonPublish_TextOnly(t *testing.T) {
	f := &fakeMastodon{}
	m, _ := newTestMastodon(t, f, "good-token")

	id, err := m.Publish(context.Background(), PostRequest{
		Text:       "Hello\n\nhttps://example.com",
		Visibility: VisibilityUnlisted,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "1001" {
		t.Errorf("id = %q, want 1001", id)
	}

	if len(f.statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(f.statuses))
	}
	params := f.statuses[0]
	if got := first(params["status"]); got != "Hello\n\nhttps://example.com" {
		t.Errorf("status = %q", got)
	}
	if got := first(params["visibility"]); got != "unlisted" {
		t.Errorf("visibility = %q", got)
	}
	if got := first(params["language"]); got != "en" {
		t.Errorf("language = %q", got)
	}
	if len(params["media_ids[]"]) != 0 {
		t.Errorf("unexpected media ids: %v", params["media_ids[]"])
	}
	for _, a := range f.auth {
		if a != "Bearer good-token" {
			t.Errorf("authorization = %q", a)
		}
	}
	for _, ua := range f.userAgents {
		if ua != DefaultUserAgent {
			t.Errorf("user agent = %q", ua)
		}
	}
}

func TestMastodonPublish_WithImages(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = io.WriteString(w, "png:"+r.URL.Path)
	}))
	defer images.Close()

	f := &fakeMastodon{}
	m, _ := newTestMastodon(t, f, "good-token")

	_, err := m.Publish(context.Background(), PostRequest{
		Text:       "with images",
		Visibility: VisibilityPublic,
		ImageURLs:  []string{images.URL + "/a.png", images.URL + "/b.png"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(f.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(f.uploads))
	}
	if !bytes.Equal(f.uploads[0], []byte("png:/a.png")) || !bytes.Equal(f.uploads[1], []byte("png:/b.png")) {
		t.Errorf("uploads out of order: %q", f.uploads)
	}
	ids := f.statuses[0]["media_ids[]"]
	if len(ids) != 2 || ids[0] != "media-1" || ids[1] != "media-2" {
		t.Errorf("media ids = %v", ids)
	}
}

func TestMastodonPublish_ImageDownloadFails(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer images.Close()

	f := &fakeMastodon{}
	m, _ := newTestMastodon(t, f, "good-token")

	_, err := m.Publish(context.Background(), PostRequest{
		Text:      "x",
		ImageURLs: []string{images.URL + "/missing.png"},
	})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if pe.Op != "download image" || pe.StatusCode != http.StatusNotFound {
		t.Errorf("error = %+v", pe)
	}
	if len(f.statuses) != 0 {
		t.Error("status must not be posted when an image fails")
	}
}

func TestMastodonPublish_Rejected(t *testing.T) {
	f := &fakeMastodon{
		statusCode: http.StatusUnprocessableEntity,
		statusBody: `{"error":"Validation failed: Text can't be blank"}`,
	}
	m, _ := newTestMastodon(t, f, "good-token")

	_, err := m.Publish(context.Background(), PostRequest{Text: ""})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if pe.Op != "post status" {
		t.Errorf("op = %q", pe.Op)
	}
	if pe.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", pe.StatusCode)
	}
	if pe.Message != "Validation failed: Text can't be blank" {
		t.Errorf("message = %q", pe.Message)
	}
	if !strings.Contains(pe.Detail, "Validation failed") {
		t.Errorf("detail = %q", pe.Detail)
	}
}

func TestMastodonPublish_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	m, err := NewMastodon(MastodonOptions{BaseURL: url, AccessToken: "t"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Publish(context.Background(), PostRequest{Text: "x"})
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if pe.StatusCode != 0 {
		t.Errorf("status = %d, want 0 for transport errors", pe.StatusCode)
	}
}

func TestMastodonVerifyCredentials(t *testing.T) {
	f := &fakeMastodon{}
	m, _ := newTestMastodon(t, f, "good-token")

	acct, err := m.VerifyCredentials(context.Background())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if acct != "bot" {
		t.Errorf("acct = %q, want bot", acct)
	}

	bad, _ := newTestMastodon(t, f, "bad-token")
	_, err = bad.VerifyCredentials(context.Background())
	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if pe.StatusCode != http.StatusUnauthorized || pe.Message != "The access token is invalid" {
		t.Errorf("error = %+v", pe)
	}
}

func TestUpstreamMessage(t *testing.T) {
	if got := upstreamMessage(`{"error":"nope"}`); got != "nope" {
		t.Errorf("got %q", got)
	}
	if got := upstreamMessage("<html>502</html>"); got != "" {
		t.Errorf("non-json body should yield empty message, got %q", got)
	}
	if got := upstreamMessage(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDryRun(logger)

	id1, err := d.Publish(context.Background(), PostRequest{Text: "a", Visibility: VisibilityPublic})
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := d.Publish(context.Background(), PostRequest{Text: "b"})
	if id1 != "dry-run-1" || id2 != "dry-run-2" {
		t.Errorf("ids = %q, %q", id1, id2)
	}
	if !strings.Contains(buf.String(), "dry-run: status not posted") {
		t.Errorf("log output = %q", buf.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Publish(ctx, PostRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v", err)
	}
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

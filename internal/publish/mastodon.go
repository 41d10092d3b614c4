package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mattn/go-mastodon"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "feed2mastodon/1.0 (+https://github.com/ppiankov/feed2mastodon)"

	// maxImageBytes bounds a single downloaded attachment.
	maxImageBytes = 16 << 20
	// maxDetailBytes bounds the upstream body kept for verbose output.
	maxDetailBytes = 4 << 10
)

// MastodonOptions configures the Mastodon publisher.
type MastodonOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	AccessToken  string

	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Mastodon publishes statuses through the Mastodon REST API.
type Mastodon struct {
	client    *mastodon.Client
	http      *http.Client
	transport *apiTransport
	logger    *slog.Logger
}

var _ Publisher = (*Mastodon)(nil)

// NewMastodon creates a publisher for the account owning the access token.
func NewMastodon(opts MastodonOptions) (*Mastodon, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("mastodon: API base URL is required")
	}
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, errors.New("mastodon: access token is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	transport := &apiTransport{base: opts.Transport, userAgent: opts.UserAgent}

	client := mastodon.NewClient(&mastodon.Config{
		Server:       strings.TrimRight(opts.BaseURL, "/"),
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		AccessToken:  opts.AccessToken,
	})
	client.Transport = transport
	client.Timeout = opts.Timeout

	return &Mastodon{
		client:    client,
		http:      &http.Client{Timeout: opts.Timeout, Transport: transport},
		transport: transport,
		logger:    opts.Logger,
	}, nil
}

// Publish uploads the images, then creates the status.
func (m *Mastodon) Publish(ctx context.Context, req PostRequest) (string, error) {
	mediaIDs := make([]mastodon.ID, 0, len(req.ImageURLs))
	for _, imageURL := range req.ImageURLs {
		id, err := m.uploadImage(ctx, imageURL)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, id)
	}

	m.transport.reset()
	status, err := m.client.PostStatus(ctx, &mastodon.Toot{
		Status:     req.Text,
		MediaIDs:   mediaIDs,
		Visibility: string(req.Visibility),
		Language:   req.Language,
	})
	if err != nil {
		return "", m.apiError("post status", err)
	}

	m.logger.Debug("status posted", "id", string(status.ID), "url", status.URL)
	return string(status.ID), nil
}

// VerifyCredentials returns the account name the token belongs to.
func (m *Mastodon) VerifyCredentials(ctx context.Context) (string, error) {
	m.transport.reset()
	account, err := m.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return "", m.apiError("verify credentials", err)
	}
	return account.Acct, nil
}

func (m *Mastodon) uploadImage(ctx context.Context, imageURL string) (mastodon.ID, error) {
	m.logger.Debug("downloading image", "url", imageURL)

	data, err := m.downloadImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	m.transport.reset()
	attachment, err := m.client.UploadMediaFromReader(ctx, bytes.NewReader(data))
	if err != nil {
		return "", m.apiError("upload media", err)
	}

	m.logger.Debug("image uploaded", "id", string(attachment.ID), "url", imageURL)
	return attachment.ID, nil
}

func (m *Mastodon) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	const op = "download image"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, &PublishError{Op: op, Message: err.Error(), Err: err}
	}

	m.transport.reset()
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, &PublishError{Op: op, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &PublishError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: %s", imageURL, http.StatusText(resp.StatusCode)),
			Detail:     m.transport.detail,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &PublishError{Op: op, Message: err.Error(), Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, &PublishError{Op: op, Message: fmt.Sprintf("%s: image larger than %d bytes", imageURL, maxImageBytes)}
	}
	return data, nil
}

// apiError attaches the last upstream status and body to err.
func (m *Mastodon) apiError(op string, err error) error {
	pe := &PublishError{
		Op:         op,
		StatusCode: m.transport.status,
		Message:    upstreamMessage(m.transport.detail),
		Detail:     m.transport.detail,
		Err:        err,
	}
	if pe.Message == "" {
		pe.Message = err.Error()
	}
	return pe
}

// upstreamMessage extracts the "error" field of a Mastodon error body.
func upstreamMessage(body string) string {
	if body == "" {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ""
	}
	return payload.Error
}

// apiTransport injects a User-Agent header and remembers the status and body
// of the last failed response, which go-mastodon does not expose.
type apiTransport struct {
	base      http.RoundTripper
	userAgent string

	status int
	detail string
}

func (t *apiTransport) reset() {
	t.status = 0
	t.detail = ""
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	t.status = resp.StatusCode
	t.detail = strings.TrimSpace(string(body))
	return resp, nil
}

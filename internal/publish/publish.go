// Package publish sends formatted posts to a Mastodon-compatible account.
package publish

import (
	"context"
	"fmt"
	"strings"
)

//go:generate mockgen -source=publish.go -destination=publishmock/publisher.go -package=publishmock

// Visibility is the audience scope of a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Visibilities lists the accepted values in display order.
var Visibilities = []Visibility{VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect}

// ParseVisibility validates s case-insensitively.
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Visibilities {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown visibility %q (want public, unlisted, private or direct)", s)
}

// PostRequest is one status to publish.
type PostRequest struct {
	Text       string
	Visibility Visibility
	Language   string   // ISO 639 code, empty for the account default
	ImageURLs  []string // attached in order
}

// Publisher publishes a post and returns the upstream status ID.
type Publisher interface {
	Publish(ctx context.Context, req PostRequest) (string, error)
}

// PublishError reports an upstream rejection or a network failure.
type PublishError struct {
	Op         string // "download image", "upload media", "post status", "verify credentials"
	StatusCode int    // upstream HTTP status, 0 for transport errors
	Message    string // short upstream message
	Detail     string // raw upstream response body, shown in verbose mode
	Err        error
}

func (e *PublishError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish: %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("publish: %s: %s", e.Op, msg)
}

func (e *PublishError) Unwrap() error { return e.Err }

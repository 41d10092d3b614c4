package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// DryRun logs post requests instead of sending them.
type DryRun struct {
	logger *slog.Logger
	count  int
}

var _ Publisher = (*DryRun)(nil)

func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DryRun{logger: logger}
}

// Publish performs no network call and returns a synthetic identifier.
func (d *DryRun) Publish(ctx context.Context, req PostRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.count++
	id := fmt.Sprintf("dry-run-%d", d.count)
	d.logger.Info("dry-run: status not posted",
		"id", id,
		"visibility", string(req.Visibility),
		"language", req.Language,
		"images", len(req.ImageURLs),
	)
	d.logger.Debug("dry-run: status text", "text", req.Text, "image_urls", req.ImageURLs)
	return id, nil
}

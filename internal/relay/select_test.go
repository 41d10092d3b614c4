package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/feed2mastodon/internal/feed"
	"github.com/ppiankov/feed2mastodon/internal/state"
)

func ids(entries []feed.Entry) string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return strings.Join(out, ",")
}

func TestSelect(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 6, d, 8, 0, 0, 0, time.UTC) }
	watermarked := func(wm time.Time, ids ...string) state.Set {
		s := state.NewSet(ids...)
		s.SetWatermark(wm)
		return s
	}

	tests := []struct {
		name     string
		entries  []feed.Entry
		posted   state.Set
		maxPosts int
		want     string
	}{
		{
			name:     "newest first reversed and capped",
			entries:  newestFirst(),
			maxPosts: 2,
			want:     "C,B",
		},
		{
			name:     "all new",
			entries:  newestFirst(),
			maxPosts: 10,
			want:     "C,B,A",
		},
		{
			name:     "posted entries skipped",
			entries:  newestFirst(),
			posted:   state.NewSet("B"),
			maxPosts: 10,
			want:     "C,A",
		},
		{
			name:     "everything posted",
			entries:  newestFirst(),
			posted:   state.NewSet("A", "B", "C"),
			maxPosts: 10,
			want:     "",
		},
		{
			name: "entries at or before the watermark skipped",
			entries: []feed.Entry{
				{ID: "new", Published: day(3)},
				{ID: "edge", Published: day(2)},
				{ID: "old", Published: day(1)},
			},
			posted:   watermarked(day(2)),
			maxPosts: 10,
			want:     "new",
		},
		{
			name: "undated entries ignore the watermark",
			entries: []feed.Entry{
				{ID: "undated"},
				{ID: "old", Published: day(1)},
			},
			posted:   watermarked(day(2)),
			maxPosts: 10,
			want:     "undated",
		},
		{
			name: "watermark and ids combine",
			entries: []feed.Entry{
				{ID: "newer", Published: day(4)},
				{ID: "new", Published: day(3)},
				{ID: "old", Published: day(1)},
			},
			posted:   watermarked(day(2), "new"),
			maxPosts: 10,
			want:     "newer",
		},
		{
			name:     "zero max posts",
			entries:  newestFirst(),
			maxPosts: 0,
			want:     "",
		},
		{
			name:     "negative max posts",
			entries:  newestFirst(),
			maxPosts: -1,
			want:     "",
		},
		{
			name:     "empty feed",
			maxPosts: 10,
			want:     "",
		},
		{
			name: "missing id and duplicates skipped",
			entries: []feed.Entry{
				{ID: "A"},
				{ID: ""},
				{ID: "A"},
				{ID: "B"},
			},
			maxPosts: 10,
			want:     "B,A",
		},
		{
			name: "dated feed listed oldest first",
			entries: []feed.Entry{
				{ID: "old", Published: day(1)},
				{ID: "mid", Published: day(2)},
				{ID: "new", Published: day(3)},
			},
			maxPosts: 2,
			want:     "old,mid",
		},
		{
			name: "future entries skipped",
			entries: []feed.Entry{
				{ID: "future", Published: day(20)},
				{ID: "today", Published: day(10)},
				{ID: "past", Published: day(1)},
			},
			maxPosts: 10,
			want:     "past,today",
		},
		{
			name: "mixed dates keep reversed feed order",
			entries: []feed.Entry{
				{ID: "undated"},
				{ID: "dated", Published: day(1)},
			},
			maxPosts: 10,
			want:     "dated,undated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Select(tt.entries, tt.posted, tt.maxPosts, testNow))
			if got != tt.want {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	entries := newestFirst()
	Select(entries, state.NewSet(), 10, testNow)
	if ids(entries) != "A,B,C" {
		t.Errorf("input reordered: %s", ids(entries))
	}
}

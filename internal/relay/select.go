package relay

import (
	"sort"
	"time"

	"github.com/ppiankov/feed2mastodon/internal/feed"
	"github.com/ppiankov/feed2mastodon/internal/state"
)

// Select returns the entries to post, oldest first, at most maxPosts of them.
//
// Entries arrive in feed order, usually newest first. Entries the posted set
// covers, by id or by watermark, entries without an identifier and entries
// dated after now are skipped. The
// rest are reversed into chronological order; when every candidate carries a
// date they are also sorted by it, so feeds listed oldest first still post in
// publication order.
func Select(entries []feed.Entry, posted state.Set, maxPosts int, now time.Time) []feed.Entry {
	if maxPosts <= 0 {
		return nil
	}

	var candidates []feed.Entry
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.ID == "" || posted.Covers(e.ID, e.Published) || seen[e.ID] {
			continue
		}
		if !now.IsZero() && !e.Published.IsZero() && e.Published.After(now) {
			continue
		}
		seen[e.ID] = true
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil
	}

	for i, j := 0, len(candidates)-1; i < j; i, j = i+1, j-1 {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}

	if allDated(candidates) {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Published.Before(candidates[j].Published)
		})
	}

	if len(candidates) > maxPosts {
		candidates = candidates[:maxPosts]
	}
	return candidates
}

func allDated(entries []feed.Entry) bool {
	for _, e := range entries {
		if e.Published.IsZero() {
			return false
		}
	}
	return true
}

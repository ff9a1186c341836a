package leaderboard

import (
	"sort"

	"github.com/creasury/invitebot/invitebot/database/models"
	"github.com/disgoorg/snowflake/v2"
)

type EntryType string

const (
	EntryMember EntryType = "member"
	EntrySpacer EntryType = "spacer"
)

type Entry struct {
	Type    EntryType
	Ranking models.Ranking
	// Me marks the entry of the viewer.
	Me bool
}

func (e Entry) IsSpacer() bool {
	return e.Type == EntrySpacer
}

// Window picks the rows of a full ranking worth showing to viewerID: the
// leader, the viewer with one neighbour on each side, and both sides of
// every level boundary. Gaps between picked rows become a single spacer.
func Window(rankings []models.Ranking, viewerID snowflake.ID) []Entry {
	if len(rankings) == 0 {
		return nil
	}

	picked := map[int]struct{}{0: {}}
	add := func(i int) {
		if i >= 0 && i < len(rankings) {
			picked[i] = struct{}{}
		}
	}

	viewer := -1
	for i, r := range rankings {
		if r.ID == viewerID {
			viewer = i
		}
		if i+1 < len(rankings) && rankings[i+1].Level != r.Level {
			add(i)
			add(i + 1)
		}
	}
	if viewer >= 0 {
		add(viewer - 1)
		add(viewer)
		add(viewer + 1)
	}

	indexes := make([]int, 0, len(picked))
	for i := range picked {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	entries := make([]Entry, 0, len(indexes)*2)
	prev := -1
	for _, i := range indexes {
		if prev >= 0 && i-prev > 1 {
			entries = append(entries, Entry{Type: EntrySpacer})
		}
		entries = append(entries, Entry{Type: EntryMember, Ranking: rankings[i], Me: i == viewer})
		prev = i
	}
	return cleanup(entries)
}

// cleanup drops repeated spacers and spacers at either end of the table.
func cleanup(entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.IsSpacer() && (len(out) == 0 || out[len(out)-1].IsSpacer()) {
			continue
		}
		out = append(out, e)
	}
	for len(out) > 0 && out[len(out)-1].IsSpacer() {
		out = out[:len(out)-1]
	}
	return out
}

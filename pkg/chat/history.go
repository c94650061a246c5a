package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Transcript fetches a bounded window of the conversation's history and
// converts it into the role-tagged, oldest-first transcript a generation
// service expects. limit <= 0 falls back to the bot's configured window.
//
// A fetch failure is returned as an error; the assembler never degrades to a
// partial or empty transcript silently.
func (b *Bot) Transcript(ctx context.Context, th *Thread, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		limit = b.historyLimit
	}

	adapter, ok := b.Adapter(th.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, th.Platform)
	}

	messages, err := adapter.FetchMessages(ctx, th.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages %s/%s: %w", th.Platform, th.ID, err)
	}

	// Some adapters return newest-first; the transcript is always
	// chronological. Stable, so equal timestamps keep adapter order.
	ordered := append([]Message(nil), messages...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	transcript := make([]TranscriptEntry, 0, len(ordered))
	for _, msg := range ordered {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		role := RoleUser
		if msg.Author.IsSelf {
			role = RoleAssistant
		}
		transcript = append(transcript, TranscriptEntry{Role: role, Content: msg.Text})
	}
	return transcript, nil
}

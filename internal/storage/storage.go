// Package storage holds the embedded and in-memory implementations of the
// user and message repositories. The SurrealDB implementations live in the
// database package.
package storage

import (
	"sort"
	"strings"

	"github.com/nfrund/gobychat/internal/domain"
)

// conversationKey returns the same key for (a, b) and (b, a).
func conversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// tail returns the last limit entries, or all of them when limit <= 0.
func tail(msgs []domain.Message, limit int) []domain.Message {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func sortUsersByName(users []domain.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name == users[j].Name {
			return users[i].ID < users[j].ID
		}
		return users[i].Name < users[j].Name
	})
}

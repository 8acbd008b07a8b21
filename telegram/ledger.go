package telegram

import (
	"encoding/json"
	"strconv"
	"time"

	"daily-news-bot/harvest"
)

// ledgerRetention bounds how long message entries are kept.
const ledgerRetention = 30 * 24 * time.Hour

// Ledger is the persisted view of the channel: posted article messages and
// the reactions seen on them so far. Telegram offers no history call, so the
// ledger is built from sent messages and drained updates.
type Ledger struct {
	Offset   int                      `json:"offset"`
	Messages map[string]*MessageEntry `json:"messages"`
}

// MessageEntry is one posted message.
type MessageEntry struct {
	PostedAt  time.Time           `json:"postedAt"`
	EventType string              `json:"eventType,omitempty"`
	Payload   json.RawMessage     `json:"payload,omitempty"`
	Seeded    string              `json:"seeded,omitempty"`
	Users     map[string][]string `json:"users,omitempty"`
	Anonymous map[string]int      `json:"anonymous,omitempty"`
}

func newLedger() *Ledger {
	return &Ledger{Messages: make(map[string]*MessageEntry)}
}

func (l *Ledger) entry(messageID int) *MessageEntry {
	if l.Messages == nil {
		l.Messages = make(map[string]*MessageEntry)
	}
	return l.Messages[strconv.Itoa(messageID)]
}

func (l *Ledger) add(messageID int, e *MessageEntry) {
	if l.Messages == nil {
		l.Messages = make(map[string]*MessageEntry)
	}
	l.Messages[strconv.Itoa(messageID)] = e
}

// apply folds one update into the ledger. Updates for unknown messages, and
// reactions by the bot itself, are ignored.
func (l *Ledger) apply(u update, self int64) {
	if u.UpdateID >= l.Offset {
		l.Offset = u.UpdateID + 1
	}
	switch {
	case u.Reaction != nil:
		r := u.Reaction
		e := l.entry(r.MessageID)
		if e == nil || r.User == nil || r.User.ID == self {
			return
		}
		if e.Users == nil {
			e.Users = make(map[string][]string)
		}
		key := strconv.FormatInt(r.User.ID, 10)
		names := reactionNames(r.NewReaction)
		if len(names) == 0 {
			delete(e.Users, key)
		} else {
			e.Users[key] = names
		}
	case u.ReactionCount != nil:
		r := u.ReactionCount
		e := l.entry(r.MessageID)
		if e == nil {
			return
		}
		e.Anonymous = make(map[string]int, len(r.Reactions))
		for _, c := range r.Reactions {
			if name := canonical(c.Type); name != "" {
				e.Anonymous[name] += c.TotalCount
			}
		}
	}
}

func (l *Ledger) prune(now time.Time) {
	cutoff := now.Add(-ledgerRetention)
	for id, e := range l.Messages {
		if e.PostedAt.Before(cutoff) {
			delete(l.Messages, id)
		}
	}
}

// tally counts reactions on e. Per-user reactions are preferred; anonymous
// counts, which include the bot's seeded reaction, are used when no user
// reactions were seen.
func (e *MessageEntry) tally() map[string]int {
	out := make(map[string]int)
	if len(e.Users) > 0 {
		for _, names := range e.Users {
			for _, n := range names {
				out[n]++
			}
		}
		return out
	}
	for name, n := range e.Anonymous {
		if name == e.Seeded {
			n--
		}
		if n > 0 {
			out[name] = n
		}
	}
	return out
}

func (l *Ledger) messages(since time.Time) []harvest.Message {
	var out []harvest.Message
	for id, e := range l.Messages {
		if e.PostedAt.Before(since) {
			continue
		}
		out = append(out, harvest.Message{
			ID:        id,
			PostedAt:  e.PostedAt,
			EventType: e.EventType,
			Payload:   e.Payload,
			Reactions: e.tally(),
		})
	}
	return out
}

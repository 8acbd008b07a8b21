package telegram

import "strings"

var emojiNames = map[string]string{
	"👍":  "thumbsup",
	"👎":  "thumbsdown",
	"❤":  "heart",
	"❤️": "heart",
	"🔥":  "fire",
	"🎉":  "tada",
	"👏":  "clap",
	"🤩":  "star-struck",
	"🤔":  "thinking_face",
	"😁":  "grin",
	"😢":  "cry",
	"💩":  "poop",
	"🙏":  "pray",
	"👌":  "ok_hand",
	"💯":  "100",
	"👀":  "eyes",
	"😞":  "disappointed",
}

var nameEmoji = map[string]string{}

func init() {
	for emoji, name := range emojiNames {
		if _, ok := nameEmoji[name]; !ok || len(emoji) < len(nameEmoji[name]) {
			nameEmoji[name] = emoji
		}
	}
}

type reactionType struct {
	Type          string `json:"type"`
	Emoji         string `json:"emoji,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

// canonical returns the reaction name for r, or "" for reactions that are not
// plain emoji.
func canonical(r reactionType) string {
	if r.Type != "emoji" {
		return ""
	}
	if name, ok := emojiNames[r.Emoji]; ok {
		return name
	}
	return strings.TrimSpace(r.Emoji)
}

func reactionNames(rs []reactionType) []string {
	var out []string
	for _, r := range rs {
		if n := canonical(r); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// emojiFor maps a reaction name back to the emoji Telegram expects.
func emojiFor(name string) (string, bool) {
	e, ok := nameEmoji[name]
	return e, ok
}

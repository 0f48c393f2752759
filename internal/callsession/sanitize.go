package callsession

import (
	"strings"

	"agentsflow-voice/internal/generator"
)

// SanitizeText removes every angle bracket from free text so transcripts can
// never be interpreted as markup when interpolated into a voice response.
// Safe on empty and non-ASCII input.
func SanitizeText(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '<' || r == '>' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeMessages returns a copy of msgs with every content field run through
// SanitizeText. The originals are not modified.
func SanitizeMessages(msgs []generator.Message) []generator.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]generator.Message, len(msgs))
	for i, m := range msgs {
		m.Content = SanitizeText(m.Content)
		out[i] = m
	}
	return out
}

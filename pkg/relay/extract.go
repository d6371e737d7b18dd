package relay

import (
	"strings"

	"github.com/tidwall/gjson"
)

// replyPaths lists the response shapes the relay understands, in priority
// order: {"response"}, {"message"}, then OpenAI-style choices.
var replyPaths = []string{
	"response",
	"message",
	"choices.0.message.content",
}

// ExtractReply returns the first non-blank string found at one of the known
// reply paths. It reports false for invalid JSON or when no path matches.
func ExtractReply(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	for _, path := range replyPaths {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return r.Str, true
		}
	}
	return "", false
}

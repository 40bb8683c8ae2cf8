package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrTruncated is returned when a response hit max_tokens before the JSON
// answer was complete.
var ErrTruncated = eris.New("anthropic: response truncated at max_tokens")

const stopMaxTokens = "max_tokens"

// DecodeJSON unmarshals the JSON object in resp's text into v. Markdown
// fences and prose around the object are ignored.
func DecodeJSON(resp *MessageResponse, v any) error {
	if resp == nil {
		return eris.New("anthropic: nil response")
	}
	if resp.StopReason == stopMaxTokens {
		return ErrTruncated
	}
	raw := ExtractJSON(resp.Text())
	if raw == "" {
		return eris.New("anthropic: no json object in response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return eris.Wrap(err, "anthropic: decode json")
	}
	return nil
}

// ExtractJSON returns the outermost {...} span of text, or "".
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

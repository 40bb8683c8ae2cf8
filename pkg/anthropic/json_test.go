package anthropic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textResponse(text, stop string) *MessageResponse {
	return &MessageResponse{Content: []ContentBlock{{Type: "text", Text: text}}, StopReason: stop}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`},
		{"none", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Names []string `json:"names"`
	}
	require.NoError(t, DecodeJSON(textResponse("```json\n{\"names\":[\"Ana\"]}\n```", "end_turn"), &out))
	assert.Equal(t, []string{"Ana"}, out.Names)

	err := DecodeJSON(textResponse(`{"names":["An`, "max_tokens"), &out)
	assert.True(t, errors.Is(err, ErrTruncated))

	assert.Error(t, DecodeJSON(textResponse("sorry", "end_turn"), &out))
	assert.Error(t, DecodeJSON(textResponse(`{"names": 3}`, "end_turn"), &out))
	assert.Error(t, DecodeJSON(nil, &out))
}

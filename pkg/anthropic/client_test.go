package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "AB"},
			{Type: "tool_use", Text: "ignored-not-text"},
			{Type: "text", Text: "12"},
		},
	}
	assert.Equal(t, "AB12", resp.Text())
}

func TestMessageResponse_TextEmpty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Equal(t, "", resp.Text())
}

func TestToSDKMessages_ImageAndText(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{
			Role:      "user",
			Content:   "extract the text",
			Image:     []byte{0x89, 0x50, 0x4e, 0x47},
			MediaType: "image/png",
		},
	})

	// One user message carrying two blocks: image first, then text.
	assert.Len(t, msgs, 1)
	assert.Len(t, msgs[0].Content, 2)
}

func TestToSDKMessages_TextOnly(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "assistant", Content: "ok"},
	})
	assert.Len(t, msgs, 1)
	assert.Len(t, msgs[0].Content, 1)
}

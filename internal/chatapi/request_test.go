package chatapi_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b-snaas/vllm-gateway/internal/chatapi"
)

func TestChatRequest_PreservesUnknownFields(t *testing.T) {
	raw := []byte(`{
		"model": "qwen3-4b",
		"messages": [{"role":"user","content":"hi"}],
		"stream": true,
		"reasoning_effort": "high",
		"extra_body": {"nested": 1}
	}`)

	var req chatapi.ChatRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	require.Equal(t, "qwen3-4b", req.Model)
	require.True(t, req.Stream)
	require.Contains(t, req.Extra, "reasoning_effort")
	require.Contains(t, req.Extra, "extra_body")

	out, err := json.Marshal(req)
	require.NoError(t, err)

	var roundTripped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	require.Contains(t, roundTripped, "reasoning_effort")
	require.Contains(t, roundTripped, "model")
}

func TestChatRequest_KnownFieldsSurviveMutation(t *testing.T) {
	raw := []byte(`{"model":"m","messages":[{"role":"user","content":"5000-char-placeholder"}],"unknown_field":1}`)

	var req chatapi.ChatRequest
	require.NoError(t, json.Unmarshal(raw, &req))

	req.Messages[0].Content = "truncated"

	out, err := json.Marshal(req)
	require.NoError(t, err)
	require.Contains(t, string(out), `"content":"truncated"`)
	require.Contains(t, string(out), `"unknown_field":1`)
}

// Package chatapi defines the OpenAI-compatible chat-completion wire types,
// preserving unknown request fields verbatim on the way to the engine.
package chatapi

import "encoding/json"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequestKnown holds every field this gateway recognizes. Keeping it
// separate from ChatRequest lets ChatRequest's custom (Un)MarshalJSON reuse
// encoding/json's struct tags instead of hand-rolling field-by-field codecs.
type chatRequestKnown struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	N                *int            `json:"n,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	StreamOptions    json.RawMessage `json:"stream_options,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	LogitBias        json.RawMessage `json:"logit_bias,omitempty"`
	User             *string         `json:"user,omitempty"`
}

// knownFieldNames mirrors chatRequestKnown's json tags, used to strip known
// keys out of the raw object before stashing the remainder as Extra.
var knownFieldNames = map[string]struct{}{
	"model": {}, "messages": {}, "temperature": {}, "top_p": {}, "n": {},
	"max_tokens": {}, "stream": {}, "stream_options": {}, "stop": {},
	"presence_penalty": {}, "frequency_penalty": {}, "logit_bias": {}, "user": {},
}

// ChatRequest is the OpenAI chat-completion request body. Known fields are
// typed; everything else survives round-trip in Extra so the gateway never
// drops fields the engine understands but this gateway doesn't model.
type ChatRequest struct {
	chatRequestKnown
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON splits the incoming object into known fields and an Extra
// map of whatever keys chatRequestKnown doesn't declare.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var known chatRequestKnown
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	r.chatRequestKnown = known

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if _, ok := knownFieldNames[k]; ok {
			continue
		}
		extra[k] = v
	}
	r.Extra = extra

	return nil
}

// MarshalJSON re-merges known fields with Extra into a single flat object.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	knownBytes, err := json.Marshal(r.chatRequestKnown)
	if err != nil {
		return nil, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(knownBytes, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		merged[k] = v
	}

	return json.Marshal(merged)
}

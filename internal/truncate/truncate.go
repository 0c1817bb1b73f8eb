// Package truncate trims an overlong chat request down to a token budget by
// shortening only its final message, mirroring the upstream's
// truncate_messages.
package truncate

import "github.com/b-snaas/vllm-gateway/internal/tokenizer"

// Message is the minimal shape truncate needs from a chat message.
type Message struct {
	Role    string
	Content string
}

// Messages truncates msgs in place so their combined token count fits
// within maxTokens. Only the content of the last message is shortened; if
// the budget is already satisfied, msgs is returned unchanged. Truncation
// removes tokens from the end of the final message's content, not the
// beginning, since the final message is usually the most recent user turn.
func Messages(codec *tokenizer.Adapter, msgs []Message, maxTokens int) ([]Message, error) {
	if len(msgs) == 0 {
		return msgs, nil
	}

	total := 0
	for _, m := range msgs {
		n, err := codec.Count(m.Content)
		if err != nil {
			return nil, err
		}
		total += n
	}

	if total <= maxTokens {
		return msgs, nil
	}

	excess := total - maxTokens
	last := &msgs[len(msgs)-1]

	tokens, err := codec.Encode(last.Content)
	if err != nil {
		return nil, err
	}

	keep := len(tokens) - excess
	if keep < 0 {
		keep = 0
	}

	truncated, err := codec.Decode(tokens[:keep])
	if err != nil {
		return nil, err
	}
	last.Content = truncated

	return msgs, nil
}

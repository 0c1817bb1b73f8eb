package truncate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b-snaas/vllm-gateway/internal/tokenizer"
	"github.com/b-snaas/vllm-gateway/internal/truncate"
)

// charCodec encodes one token per character, matching spec.md's S3 scenario
// tokenizer assumption.
type charCodec struct{}

func (charCodec) GetName() string { return "char" }

func (charCodec) Encode(text string) ([]uint, []string, error) {
	toks := make([]uint, len(text))
	for i, r := range []byte(text) {
		toks[i] = uint(r)
	}
	return toks, nil, nil
}

func (charCodec) Decode(tokens []uint) (string, error) {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b), nil
}

func newCodec(t *testing.T) *tokenizer.Adapter {
	t.Helper()
	return tokenizer.NewAdapterWithCodec(charCodec{})
}

func TestMessages_UnderBudget_Unchanged(t *testing.T) {
	codec := newCodec(t)
	msgs := []truncate.Message{{Role: "user", Content: "hello"}}

	out, err := truncate.Messages(codec, msgs, 4096)
	require.NoError(t, err)
	require.Equal(t, "hello", out[0].Content)
}

func TestMessages_OverBudget_TruncatesOnlyLastMessage(t *testing.T) {
	codec := newCodec(t)
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	msgs := []truncate.Message{
		{Role: "system", Content: "keep me whole"},
		{Role: "user", Content: string(long)},
	}

	out, err := truncate.Messages(codec, msgs, 4096)
	require.NoError(t, err)
	require.Equal(t, "keep me whole", out[0].Content)
	require.Len(t, out[1].Content, 4096-len("keep me whole"))
}

func TestMessages_Idempotent(t *testing.T) {
	codec := newCodec(t)
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'b'
	}
	msgs := []truncate.Message{{Role: "user", Content: string(long)}}

	once, err := truncate.Messages(codec, msgs, 4096)
	require.NoError(t, err)

	twice, err := truncate.Messages(codec, []truncate.Message{{Role: "user", Content: once[0].Content}}, 4096)
	require.NoError(t, err)

	require.Equal(t, once[0].Content, twice[0].Content)
}

func TestMessages_Empty(t *testing.T) {
	codec := newCodec(t)
	out, err := truncate.Messages(codec, nil, 4096)
	require.NoError(t, err)
	require.Empty(t, out)
}

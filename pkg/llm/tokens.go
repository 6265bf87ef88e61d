package llm

import (
	"sync"

	"github.com/go-go-golems/waifu-coder/pkg/conversation/builder"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountTokens estimates the prompt size of a payload with the cl100k_base
// encoding. Llama models tokenize differently, so this is only a guide.
func CountTokens(payload *builder.Payload) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, errors.Wrap(err, "could not load tokenizer")
	}
	total := 0
	for _, m := range payload.Messages {
		ids, _, err := c.Encode(m.Content)
		if err != nil {
			return 0, errors.Wrap(err, "could not encode message")
		}
		total += len(ids)
	}
	return total, nil
}

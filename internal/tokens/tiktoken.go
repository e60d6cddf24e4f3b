package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
	"github.com/tjfontaine/companion-core/internal/domain"
)

// Chat framing overhead, following OpenAI's accounting for chat models.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	replyPriming     = 3
)

var (
	codecMu    sync.RWMutex
	codecCache = make(map[tokenizer.Encoding]tokenizer.Codec)
)

// TiktokenCounter gives exact counts for OpenAI models.
type TiktokenCounter struct {
	model string
	codec tokenizer.Codec
}

// NewTiktokenCounter loads the codec for model.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	codec, err := codecFor(model)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{model: model, codec: codec}, nil
}

// Model returns the model the counter was built for.
func (c *TiktokenCounter) Model() string { return c.model }

func (c *TiktokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// CountMessages counts message contents plus per-message framing and the
// assistant reply priming. An empty window costs nothing.
func (c *TiktokenCounter) CountMessages(msgs []domain.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := 0
	for _, msg := range msgs {
		total += tokensPerMessage + tokensPerRole
		total += c.CountText(msg.Content)
	}
	return total + replyPriming
}

func (c *TiktokenCounter) Estimated() bool { return false }

func codecFor(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(mapModelName(model)); err == nil {
		return codec, nil
	}

	encoding := modelToEncoding(model)

	codecMu.RLock()
	cached, ok := codecCache[encoding]
	codecMu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer encoding %s: %w", encoding, err)
	}

	codecMu.Lock()
	codecCache[encoding] = codec
	codecMu.Unlock()
	return codec, nil
}

func mapModelName(model string) tokenizer.Model {
	model = strings.ToLower(model)

	switch {
	case model == "gpt-5-mini" || strings.HasPrefix(model, "gpt-5-mini-"):
		return tokenizer.GPT5Mini
	case model == "gpt-5-nano" || strings.HasPrefix(model, "gpt-5-nano-"):
		return tokenizer.GPT5Nano
	case strings.HasPrefix(model, "gpt-5"):
		return tokenizer.GPT5
	case strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.GPT41
	case strings.HasPrefix(model, "gpt-4o"):
		return tokenizer.GPT4o
	case strings.HasPrefix(model, "o1"):
		if strings.Contains(model, "mini") {
			return tokenizer.O1Mini
		}
		return tokenizer.O1
	case strings.HasPrefix(model, "o3"):
		if strings.Contains(model, "mini") {
			return tokenizer.O3Mini
		}
		return tokenizer.O3
	case strings.HasPrefix(model, "o4"):
		return tokenizer.O4Mini
	case strings.HasPrefix(model, "gpt-4"):
		return tokenizer.GPT4
	case strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.GPT35Turbo
	case strings.HasPrefix(model, "text-embedding"):
		return tokenizer.TextEmbeddingAda002
	default:
		return tokenizer.Model(model)
	}
}

// modelToEncoding is the fallback when tokenizer.ForModel does not know the
// exact model name. o200k_base covers gpt-4o and newer; cl100k_base covers
// gpt-4, gpt-3.5 and embeddings.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-davinci"):
		return tokenizer.P50kBase
	case model == "davinci" || model == "curie" || model == "babbage" || model == "ada":
		return tokenizer.R50kBase
	default:
		return tokenizer.O200kBase
	}
}

package resolver

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/samuelarogbonlo/paraclete/types"
)

// perMessageOverhead approximates the chat-format framing tokens added
// around each message.
const perMessageOverhead = 4

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// EstimateContext counts the tokens a message log would occupy, used as the
// MinContext constraint when resolving a backend. Falls back to a
// bytes-per-token heuristic if the encoding cannot be loaded.
func EstimateContext(messages []types.Message) int {
	enc := loadEncoding()
	total := 0
	for _, m := range messages {
		if enc != nil {
			total += len(enc.Encode(m.Content, nil, nil))
		} else {
			total += len(m.Content) / 4
		}
		total += perMessageOverhead
	}
	return total
}

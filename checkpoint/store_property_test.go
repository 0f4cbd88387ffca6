package checkpoint

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any sequence of saves interleaved across threads, each
// thread's checkpoint ids form the exact sequence 1..n with no gaps.
func TestMemoryStore_IDSequenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("ids are gapless and strictly increasing per thread", prop.ForAll(
		func(threads []int) bool {
			store := NewMemoryStore()
			defer store.Close()
			ctx := context.Background()

			seen := make(map[int]int64)
			for _, n := range threads {
				threadID := threadName(n)
				cp, err := store.Save(ctx, threadID, testState(threadID), "planner")
				if err != nil {
					return false
				}
				if cp.ID != seen[n]+1 {
					return false
				}
				seen[n] = cp.ID
			}

			for n, last := range seen {
				latest, err := store.Latest(ctx, threadName(n))
				if err != nil || latest.ID != last {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}

func threadName(n int) string {
	return "thread-" + string(rune('a'+n))
}

package classify

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Classification must be a pure function of the input text: repeated calls
// return identical categories, sub-task lists, and parallelizability.
func TestProperty_ClassificationDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated classification of the same text is identical", prop.ForAll(
		func(text string) bool {
			first := Classify(text)
			for i := 0; i < 3; i++ {
				again := Classify(text)
				if again.Category != first.Category {
					return false
				}
				if again.Parallelizable != first.Parallelizable {
					return false
				}
				if len(again.SubTasks) != len(first.SubTasks) {
					return false
				}
				for j := range again.SubTasks {
					if again.SubTasks[j] != first.SubTasks[j] {
						return false
					}
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.Property("parallelizable implies at least two sub-tasks", prop.ForAll(
		func(text string) bool {
			res := Classify(text)
			return !res.Parallelizable || len(res.SubTasks) >= 2
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

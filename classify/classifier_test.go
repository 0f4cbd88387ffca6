package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samuelarogbonlo/paraclete/types"
)

func TestCategory(t *testing.T) {
	tests := []struct {
		name string
		text string
		want types.TaskCategory
	}{
		{"code generation", "Create a function to reverse a string", types.TaskCodeGeneration},
		{"code generation model", "Create a user model", types.TaskCodeGeneration},
		{"code review", "Review this code for issues", types.TaskCodeReview},
		{"security audit", "Run a security audit on the auth module", types.TaskCodeReview},
		{"research", "What is the difference between TCP and UDP", types.TaskResearch},
		{"research how-to", "How to configure TLS termination", types.TaskResearch},
		{"design", "Design the architecture for the billing service", types.TaskDesign},
		{"debugging", "Fix the crash in the login handler", types.TaskDebugging},
		{"refactor", "Refactor the session package for clarity", types.TaskRefactor},
		{"no match degrades to general", "hello there", types.TaskGeneral},
		{"empty input", "", types.TaskGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Category(tt.text))
		})
	}
}

func TestSubTasks_StrategyOrder(t *testing.T) {
	t.Run("numbered list wins", func(t *testing.T) {
		text := "Please do:\n1. build the parser\n2. write tests and docs"
		got := SubTasks(text)
		assert.Equal(t, []string{"build the parser", "write tests and docs"}, got)
	})

	t.Run("bullets when no numbers", func(t *testing.T) {
		text := "Tasks:\n- add logging\n* add metrics"
		got := SubTasks(text)
		assert.Equal(t, []string{"add logging", "add metrics"}, got)
	})

	t.Run("conjunction split", func(t *testing.T) {
		text := "Create a user model and create a product model and create an order model"
		got := SubTasks(text)
		assert.Len(t, got, 3)
	})

	t.Run("conjunction split capped", func(t *testing.T) {
		text := "a and b and c and d and e and f"
		assert.Nil(t, SubTasks(text))
	})

	t.Run("simple task has no sub-tasks", func(t *testing.T) {
		assert.Nil(t, SubTasks("Create a function to reverse a string"))
	})
}

func TestParallelizable(t *testing.T) {
	assert.False(t, Parallelizable(nil))
	assert.False(t, Parallelizable([]string{"only one"}))
	assert.True(t, Parallelizable([]string{"build parser", "build lexer"}))
	assert.False(t, Parallelizable([]string{"build parser", "then run tests"}))
	assert.False(t, Parallelizable([]string{"first build parser", "run tests"}))
	assert.False(t, Parallelizable([]string{"build parser", "deploy after review"}))
}

func TestHasApprovalCues(t *testing.T) {
	assert.True(t, HasApprovalCues("Commit these changes and push to main"))
	assert.True(t, HasApprovalCues("open a pull request"))
	assert.True(t, HasApprovalCues("deploy to staging"))
	assert.False(t, HasApprovalCues("Create a function to reverse a string"))
	// Cue words must match whole words only.
	assert.False(t, HasApprovalCues("improve the print layout"))
	assert.False(t, HasApprovalCues("update the product catalog"))
}

func TestClassify_Scenarios(t *testing.T) {
	t.Run("single code generation task", func(t *testing.T) {
		res := Classify("Create a function to reverse a string")
		assert.Equal(t, types.TaskCodeGeneration, res.Category)
		assert.Empty(t, res.SubTasks)
		assert.False(t, res.Parallelizable)
	})

	t.Run("three independent models", func(t *testing.T) {
		res := Classify("Create a user model and create a product model and create an order model")
		assert.Equal(t, types.TaskCodeGeneration, res.Category)
		assert.Len(t, res.SubTasks, 3)
		assert.True(t, res.Parallelizable)
	})
}

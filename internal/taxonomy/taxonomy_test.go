package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, IsValid(c.Name), c.Name)
	}

	assert.False(t, IsValid("spam"))
	assert.False(t, IsValid(""))
	// the fallback is reserved, deliberately outside the taxonomy
	assert.False(t, IsValid(Fallback))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Academic Results", DisplayName("academic-results"))
	assert.Equal(t, "Registration", DisplayName("registration"))
	assert.Equal(t, "General", DisplayName("general"))
}

func TestPromptContainsEveryCategory(t *testing.T) {
	prompt := Prompt()

	for _, c := range Categories {
		assert.Contains(t, prompt, c.Name)
		assert.Contains(t, prompt, c.Description)
	}

	// the output contract the parser depends on
	assert.Contains(t, prompt, `{"classification": "<tag_name>", "confidence": <0.0-1.0>, "reason": "<brief explanation>"}`)
	assert.Contains(t, prompt, strings.Join(Names(), ", "))
}

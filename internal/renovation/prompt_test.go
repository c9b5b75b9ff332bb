package renovation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagePromptInterpolatesSubject(t *testing.T) {
	for _, stage := range GeneratedStages() {
		prompt := StagePrompt(stage, "Kitchen")
		assert.Contains(t, prompt, "Kitchen", "stage %s", stage)
	}
}

func TestStagePromptEmptyForOriginalAndUnknown(t *testing.T) {
	assert.Empty(t, StagePrompt(StageOriginal, "Kitchen"))
	assert.Empty(t, StagePrompt(Stage("ATTIC"), "Kitchen"))
}

func TestStagePromptFinalDecorCarriesExclusions(t *testing.T) {
	prompt := StagePrompt(StageFinalDecor, "Bathroom")
	assert.Contains(t, prompt, "NO BED")
	assert.Contains(t, prompt, "NO TOILET")
}

func TestStagePromptsAreStageSpecific(t *testing.T) {
	seen := map[string]bool{}
	for _, stage := range GeneratedStages() {
		prompt := StagePrompt(stage, "Bedroom")
		require.NotEmpty(t, prompt)
		assert.False(t, seen[prompt], "duplicate prompt for %s", stage)
		seen[prompt] = true
	}
}

func TestRegenPromptAppendsVariationDirective(t *testing.T) {
	base := StagePrompt(StageDemolition, "Office")
	regen := RegenPrompt(StageDemolition, "Office")

	assert.True(t, strings.HasPrefix(regen, base))
	assert.Contains(t, regen, "different variation")

	assert.Empty(t, RegenPrompt(StageOriginal, "Office"))
}

func TestCleanSubject(t *testing.T) {
	assert.Equal(t, "Bathroom", CleanSubject("Bathroom"))
	assert.Equal(t, "Kitchen", CleanSubject("  Kitchen.\n"))
	assert.Equal(t, "Bedroom", CleanSubject("Bedroom, definitely"))
	assert.Equal(t, DefaultSubject, CleanSubject(""))
	assert.Equal(t, DefaultSubject, CleanSubject("   \t "))
}

func TestTimelapsePrompts(t *testing.T) {
	prompts := TimelapsePrompts("Kitchen")
	require.Len(t, prompts, 4)

	for i, p := range prompts {
		assert.NotEmpty(t, p.StageLabel, "prompt %d", i)
		assert.Contains(t, p.Text, "Kitchen", "prompt %d", i)
	}

	// Blank subjects fall back to the default label.
	fallback := TimelapsePrompts("  ")
	require.Len(t, fallback, 4)
	assert.Contains(t, fallback[0].Text, DefaultSubject)
}

func TestStageOrdinalRoundTrip(t *testing.T) {
	for _, stage := range GeneratedStages() {
		got, ok := StageByOrdinal(stage.Ordinal())
		require.True(t, ok)
		assert.Equal(t, stage, got)
	}

	assert.Equal(t, 0, StageOriginal.Ordinal())
	_, ok := StageByOrdinal(0)
	assert.False(t, ok)
	_, ok = StageByOrdinal(5)
	assert.False(t, ok)
}

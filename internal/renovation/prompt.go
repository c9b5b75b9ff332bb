package renovation

import (
	"fmt"
	"strings"
)

// ClassifyInstruction asks the model for a single-word subject label.
const ClassifyInstruction = "What type of room is this? Answer with only one word (e.g., Bathroom, Kitchen, Bedroom, LivingRoom, Office)."

// DefaultSubject is used when classification fails or returns nothing
// usable. Classification is advisory only.
const DefaultSubject = "Room"

// variationSuffix is appended on regeneration. Directive only: the
// model is trusted to vary its output.
const variationSuffix = " Generate a different variation from before."

// StagePrompt returns the generation instruction for a stage with the
// subject label interpolated verbatim. StageOriginal and unknown
// stages return an empty instruction.
func StagePrompt(stage Stage, subject string) string {
	switch stage {
	case StageDemolition:
		return fmt.Sprintf("Stage 1: Demolition. Show this %s in a state of construction demolition. Debris on floor, broken tiles, removed old fixtures, exposed wooden studs. Keep the architectural layout of the original %s. Professional construction photography.", subject, subject)
	case StageWallPrep:
		return fmt.Sprintf("Stage 2: Wall prep. The %s is now clean but raw. New drywall installed on walls, fresh plastering, visible electrical conduits, cement floor. Very clean construction shell of a %s.", subject, subject)
	case StageFlooringPaint:
		return fmt.Sprintf("Stage 3: Flooring and paint. The %s walls are painted in modern soft white. New high-end flooring (matching %s usage) is being laid out. Bright natural morning light. No furniture yet.", subject, subject)
	case StageFinalDecor:
		return fmt.Sprintf("Stage 4: Final luxury décor. A stunning, high-end modern %s. ONLY use furniture and decor appropriate for a %s. If it is a Bathroom, add luxury vanity and shower, NO BED. If it is a Kitchen, add modern cabinets and island, NO TOILET. Ultra-realistic, interior design magazine style, cinematic lighting, aesthetic and attractive.", subject, subject)
	default:
		return ""
	}
}

// RegenPrompt is the stage prompt plus a variation directive.
func RegenPrompt(stage Stage, subject string) string {
	prompt := StagePrompt(stage, subject)
	if prompt == "" {
		return ""
	}
	return prompt + variationSuffix
}

// CleanSubject reduces a classification response to a single usable
// label word, falling back to DefaultSubject.
func CleanSubject(raw string) string {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return DefaultSubject
	}
	return strings.Trim(fields[0], ".,!?\"'")
}

// TimelapsePrompt is one copy-ready video generation instruction for a
// stage-to-stage transition.
type TimelapsePrompt struct {
	StageLabel string
	Text       string
}

// TimelapsePrompts returns the four timelapse video prompts covering
// the full renovation progression for the given subject.
func TimelapsePrompts(subject string) []TimelapsePrompt {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}

	return []TimelapsePrompt{
		{
			StageLabel: "Video 1: Original → Stage 1 (Demolition)",
			Text:       fmt.Sprintf("%s demolition timelapse: construction workers in hard hats and work gear actively removing old cabinets, appliances, peeling wallpaper, and debris. Camera remains perfectly still in doorway POV. Window position stays exact. Realistic construction site activity.", subject),
		},
		{
			StageLabel: "Video 2: Stage 1 → Stage 2 (Prep)",
			Text:       fmt.Sprintf("%s drywall installation timelapse: construction workers in work gear measuring, cutting, and installing fresh drywall sheets on walls and ceiling. Professional contractors working efficiently. Camera remains perfectly still in doorway POV.", subject),
		},
		{
			StageLabel: "Video 3: Stage 2 → Stage 3 (Flooring & Paint)",
			Text:       fmt.Sprintf("%s flooring and painting timelapse: construction workers installing flooring planks piece by piece. Other workers on ladders painting walls and ceiling white with rollers. Walls transform from bare drywall to painted white.", subject),
		},
		{
			StageLabel: "Video 4: Stage 3 → Stage 4 (Decor)",
			Text:       fmt.Sprintf("%s final installation timelapse: construction workers mounting final fixtures, cabinets, and furniture appropriate for a %s. Connecting appliances, final decor placement. Professional finish work. Stunning modern transformation.", subject, subject),
		},
	}
}

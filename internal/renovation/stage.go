package renovation

// Stage is one of the five ordered renovation phases. StageOriginal is
// never generated, only ingested from the user's upload.
type Stage string

const (
	StageOriginal      Stage = "ORIGINAL"
	StageDemolition    Stage = "DEMOLITION"
	StageWallPrep      Stage = "WALL_PREP"
	StageFlooringPaint Stage = "FLOORING_PAINT"
	StageFinalDecor    Stage = "FINAL_DECOR"
)

var stageLabels = map[Stage]string{
	StageOriginal:      "Original photo",
	StageDemolition:    "Stage 1: Demolition",
	StageWallPrep:      "Stage 2: Wall prep",
	StageFlooringPaint: "Stage 3: Flooring & paint",
	StageFinalDecor:    "Stage 4: Final decor",
}

// GeneratedStages returns the four generated stages in their fixed
// pipeline order. The order is a correctness property: each stage's
// prompt depends on the subject resolved once at run start, and the
// stages form a narrative progression.
func GeneratedStages() []Stage {
	return []Stage{StageDemolition, StageWallPrep, StageFlooringPaint, StageFinalDecor}
}

func (s Stage) Label() string {
	return stageLabels[s]
}

func (s Stage) Valid() bool {
	_, ok := stageLabels[s]
	return ok
}

// Ordinal returns the 1-based position among generated stages, or 0
// for StageOriginal and unknown values. Used for compact callback data.
func (s Stage) Ordinal() int {
	for i, st := range GeneratedStages() {
		if st == s {
			return i + 1
		}
	}
	return 0
}

func StageByOrdinal(n int) (Stage, bool) {
	stages := GeneratedStages()
	if n < 1 || n > len(stages) {
		return "", false
	}
	return stages[n-1], true
}

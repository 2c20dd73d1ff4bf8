package domain

import "fmt"

// Stage is a step in the production pipeline or one of the checkpoints.
type Stage string

const (
	StageDesign        Stage = "Design"
	StageCutting       Stage = "Cutting"
	StageBending       Stage = "Bending"
	StagePunching      Stage = "Punching"
	StageFabrication   Stage = "Fabrication"
	StagePowderCoating Stage = "Powder-Coating"
	StageAssembly      Stage = "Assembly"
	StageDispatch      Stage = "Dispatch"

	// Checkpoints are not pipeline steps and have no successor.
	CheckpointQualityControl Stage = "Quality Control"
	CheckpointReturns        Stage = "Returns"
)

var pipeline = []Stage{
	StageDesign,
	StageCutting,
	StageBending,
	StagePunching,
	StageFabrication,
	StagePowderCoating,
	StageAssembly,
	StageDispatch,
}

var checkpoints = []Stage{
	CheckpointQualityControl,
	CheckpointReturns,
}

// Stages returns the production pipeline in order.
func Stages() []Stage {
	out := make([]Stage, len(pipeline))
	copy(out, pipeline)
	return out
}

// Checkpoints returns the non-pipeline checkpoints.
func Checkpoints() []Stage {
	out := make([]Stage, len(checkpoints))
	copy(out, checkpoints)
	return out
}

// FirstStage is the entry stage of every new job.
func FirstStage() Stage { return pipeline[0] }

// LastStage is the final pipeline stage.
func LastStage() Stage { return pipeline[len(pipeline)-1] }

// Index returns the pipeline position of s, or -1 for checkpoints and
// unknown values.
func (s Stage) Index() int {
	for i, st := range pipeline {
		if st == s {
			return i
		}
	}
	return -1
}

// IsProduction reports whether s is a pipeline stage.
func (s Stage) IsProduction() bool { return s.Index() >= 0 }

// IsCheckpoint reports whether s is Quality Control or Returns.
func (s Stage) IsCheckpoint() bool {
	for _, c := range checkpoints {
		if c == s {
			return true
		}
	}
	return false
}

// IsValid reports whether s belongs to the catalog.
func (s Stage) IsValid() bool { return s.IsProduction() || s.IsCheckpoint() }

// Next returns the stage after s. It returns false for the last stage and
// for anything that is not a pipeline stage.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(pipeline) {
		return "", false
	}
	return pipeline[i+1], true
}

// UnmarshalText rejects stages outside the catalog.
func (s *Stage) UnmarshalText(text []byte) error {
	v := Stage(text)
	if !v.IsValid() {
		return fmt.Errorf("unknown stage %q", string(text))
	}
	*s = v
	return nil
}

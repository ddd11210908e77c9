package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// Checkpoint file names written by the trainer inside a run directory.
const (
	BestCheckpointName = "model_best.pth"
)

// CheckpointName returns the file name of the checkpoint saved at the
// given training iteration.
func CheckpointName(iteration int) string {
	return fmt.Sprintf("model_%d.pth", iteration)
}

// formatFloat renders a float in scientific notation with a two-digit
// exponent, the way learning rates are conventionally written in run
// names: 0.0001 becomes "1e-04". Zero stays "0".
func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'e', -1, 64)
}

// Group returns the run-directory prefix shared by all repeats of one
// hyperparameter setting. Every swept knob appears in the name, so two
// settings that differ in any field land in different directories and a
// re-resolved sweep lands in exactly the same ones.
func (rc RunConfig) Group() string {
	setting := fmt.Sprintf("lr%s_%s_%s_wd%s_%d-%dx%d_mem%d_bs%d-%d_%s",
		formatFloat(rc.LearningRate),
		rc.Scheduler,
		strings.ToLower(rc.Optimizer),
		formatFloat(rc.WeightDecay),
		rc.InputSeqLen,
		rc.SegmentCount,
		rc.InputSize,
		rc.MemorySize,
		rc.BatchSize,
		rc.TargetBatchSize,
		rc.MemoryLayout,
	)
	return rc.Task + "/" + rc.Model + "/" + setting
}

// ID returns the unique relative run path: the setting group plus the run
// index. Resolving the same sweep twice yields byte-identical IDs.
func (rc RunConfig) ID() string {
	return fmt.Sprintf("%s/run_%d", rc.Group(), rc.RunIndex)
}

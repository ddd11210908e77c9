package sweep

import (
	"fmt"
)

// Memory layouts supported by the recurrent-memory models. In the plain
// layout every input token of a segment carries payload; in the overlap
// layout each segment reserves memory_size read and memory_size write slots,
// so only input_size - 2*memory_size tokens carry payload.
const (
	LayoutPlain   = "plain"
	LayoutOverlap = "overlap"
)

// RunConfig is one fully resolved training run: the swept knobs plus every
// derived field the external trainer is invoked with. Constructed by
// Resolve, consumed by the launcher, never persisted beyond the run path.
type RunConfig struct {
	Task  string
	Model string

	// Swept dimensions.
	LearningRate    float64
	Scheduler       string
	SegmentCount    int
	InputSize       int
	MemorySize      int
	BatchSize       int
	TargetBatchSize int
	RunIndex        int

	// Fixed per experiment.
	Optimizer    string
	WeightDecay  float64
	MemoryLayout string
	NumProcesses int

	// Derived.
	InputSeqLen        int
	GradAccumSteps     int
	PerWorkerBatchSize int
	GlobalBatchSize    int
	Seed               int

	// Relative path of the checkpoint a chained run warm-starts from,
	// empty when the run starts from the pretrained backbone.
	InitCheckpoint string
}

// SegmentPayload returns the number of payload tokens one segment carries
// under the given memory layout.
func SegmentPayload(inputSize, memorySize int, layout string) (int, error) {
	switch layout {
	case LayoutPlain:
		return inputSize, nil
	case LayoutOverlap:
		payload := inputSize - 2*memorySize
		if payload <= 0 {
			return 0, fmt.Errorf("input size %d leaves no payload tokens with memory size %d", inputSize, memorySize)
		}
		return payload, nil
	default:
		return 0, fmt.Errorf("unknown memory layout: %s", layout)
	}
}

// DeriveSeqLen computes the total input sequence length fed to the model:
// per-segment payload times the number of segments.
func DeriveSeqLen(inputSize, memorySize, segmentCount int, layout string) (int, error) {
	if segmentCount <= 0 {
		return 0, fmt.Errorf("segment count must be positive, got %d", segmentCount)
	}
	payload, err := SegmentPayload(inputSize, memorySize, layout)
	if err != nil {
		return 0, err
	}
	return payload * segmentCount, nil
}

// DeriveAccumSteps computes gradient-accumulation steps from the target
// batch size. The division must be exact: a target batch that cannot be
// assembled from whole per-device batches is a configuration error, not
// something to round.
func DeriveAccumSteps(targetBatchSize, batchSize, numProcesses int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("per-device batch size must be positive, got %d", batchSize)
	}
	if numProcesses <= 0 {
		return 0, fmt.Errorf("process count must be positive, got %d", numProcesses)
	}
	if targetBatchSize <= 0 {
		return 0, fmt.Errorf("target batch size must be positive, got %d", targetBatchSize)
	}
	perStep := batchSize * numProcesses
	if targetBatchSize%perStep != 0 {
		return 0, fmt.Errorf("target batch size %d is not divisible by batch_size*processes = %d*%d", targetBatchSize, batchSize, numProcesses)
	}
	return targetBatchSize / perStep, nil
}

// derive fills every computed field of the run from its swept knobs.
func (rc *RunConfig) derive(seedBase, seedStride int) error {
	seqLen, err := DeriveSeqLen(rc.InputSize, rc.MemorySize, rc.SegmentCount, rc.MemoryLayout)
	if err != nil {
		return err
	}
	rc.InputSeqLen = seqLen

	steps, err := DeriveAccumSteps(rc.TargetBatchSize, rc.BatchSize, rc.NumProcesses)
	if err != nil {
		return err
	}
	rc.GradAccumSteps = steps

	rc.PerWorkerBatchSize = rc.BatchSize * rc.GradAccumSteps
	rc.GlobalBatchSize = rc.PerWorkerBatchSize * rc.NumProcesses
	if rc.GlobalBatchSize != rc.TargetBatchSize {
		return fmt.Errorf("global batch size %d does not reconstruct target %d", rc.GlobalBatchSize, rc.TargetBatchSize)
	}

	rc.Seed = seedBase + seedStride*(rc.RunIndex-1)
	return nil
}

package sweep

import (
	"fmt"
)

// Default seed schedule. Run 1 trains with the base seed, every further
// repeat shifts by the stride so repeats never share a seed with any
// other run of the experiment.
const (
	DefaultSeedBase   = 42
	DefaultSeedStride = 100
)

// Sweep describes one experiment: a set of paired hyperparameter lists, the
// models to train them on and the number of repeated runs per setting.
//
// The paired lists advance together by index. Every list must either have
// the full pairing width or exactly one element, in which case that value
// is broadcast across all pairs. Lists of any other length are rejected so
// a truncated sweep never launches silently.
type Sweep struct {
	Task   string
	Models []string
	Runs   int

	// Paired dimensions.
	LearningRates    []float64
	Schedulers       []string
	SegmentCounts    []int
	InputSizes       []int
	MemorySizes      []int
	BatchSizes       []int
	TargetBatchSizes []int

	// Fixed per experiment.
	Optimizer    string
	WeightDecay  float64
	MemoryLayout string
	NumProcesses int

	SeedBase   int
	SeedStride int

	// ChainCheckpoints warm-starts pair i from the best checkpoint of
	// pair i-1 of the same model and run index, turning the paired lists
	// into a curriculum.
	ChainCheckpoints bool
}

// pick resolves a paired list at index i, broadcasting single-element lists.
func pick[T any](list []T, i int) T {
	if len(list) == 1 {
		return list[0]
	}
	return list[i]
}

// PairWidth returns the number of paired settings in the sweep: the longest
// paired list, or zero when every list is empty.
func (s *Sweep) PairWidth() int {
	width := 0
	for _, n := range []int{
		len(s.LearningRates),
		len(s.Schedulers),
		len(s.SegmentCounts),
		len(s.InputSizes),
		len(s.MemorySizes),
		len(s.BatchSizes),
		len(s.TargetBatchSizes),
	} {
		if n > width {
			width = n
		}
	}
	return width
}

// RunCount returns the total number of runs the sweep expands to.
func (s *Sweep) RunCount() int {
	return len(s.Models) * s.PairWidth() * s.Runs
}

// Validate checks pairing discipline and the fixed fields. It does not
// derive anything, so a valid sweep can still produce per-run derivation
// errors from Resolve.
func (s *Sweep) Validate() error {
	if s.Task == "" {
		return fmt.Errorf("sweep has no task")
	}
	if len(s.Models) == 0 {
		return fmt.Errorf("sweep has no models")
	}
	if s.Runs <= 0 {
		return fmt.Errorf("runs per setting must be positive, got %d", s.Runs)
	}
	if s.NumProcesses <= 0 {
		return fmt.Errorf("process count must be positive, got %d", s.NumProcesses)
	}
	if s.MemoryLayout != LayoutPlain && s.MemoryLayout != LayoutOverlap {
		return fmt.Errorf("unknown memory layout: %s", s.MemoryLayout)
	}
	if s.Optimizer == "" {
		return fmt.Errorf("sweep has no optimizer")
	}

	width := s.PairWidth()
	if width == 0 {
		return fmt.Errorf("sweep has no paired dimensions")
	}
	for _, dim := range []struct {
		name string
		len  int
	}{
		{"learning_rates", len(s.LearningRates)},
		{"schedulers", len(s.Schedulers)},
		{"segment_counts", len(s.SegmentCounts)},
		{"input_sizes", len(s.InputSizes)},
		{"memory_sizes", len(s.MemorySizes)},
		{"batch_sizes", len(s.BatchSizes)},
		{"target_batch_sizes", len(s.TargetBatchSizes)},
	} {
		if dim.len == 0 {
			return fmt.Errorf("paired list %s is empty", dim.name)
		}
		if dim.len != 1 && dim.len != width {
			return fmt.Errorf("paired list %s has %d values, want 1 or %d", dim.name, dim.len, width)
		}
	}
	return nil
}

// Resolve expands the sweep into the full ordered list of run configs:
// models outermost, paired settings next, repeated runs innermost. The
// order is deterministic, so run N of a resolved sweep always means the
// same training job.
func (s *Sweep) Resolve() ([]RunConfig, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	seedBase := s.SeedBase
	seedStride := s.SeedStride
	if seedBase == 0 {
		seedBase = DefaultSeedBase
	}
	if seedStride == 0 {
		seedStride = DefaultSeedStride
	}

	width := s.PairWidth()
	runs := make([]RunConfig, 0, s.RunCount())
	for _, model := range s.Models {
		// Best-checkpoint IDs from the previous paired setting, one
		// per run index, used when chaining is on.
		prev := make([]string, s.Runs)
		for i := 0; i < width; i++ {
			cur := make([]string, s.Runs)
			for r := 1; r <= s.Runs; r++ {
				rc := RunConfig{
					Task:            s.Task,
					Model:           model,
					LearningRate:    pick(s.LearningRates, i),
					Scheduler:       pick(s.Schedulers, i),
					SegmentCount:    pick(s.SegmentCounts, i),
					InputSize:       pick(s.InputSizes, i),
					MemorySize:      pick(s.MemorySizes, i),
					BatchSize:       pick(s.BatchSizes, i),
					TargetBatchSize: pick(s.TargetBatchSizes, i),
					RunIndex:        r,
					Optimizer:       s.Optimizer,
					WeightDecay:     s.WeightDecay,
					MemoryLayout:    s.MemoryLayout,
					NumProcesses:    s.NumProcesses,
				}
				if err := rc.derive(seedBase, seedStride); err != nil {
					return nil, fmt.Errorf("model %s pair %d run %d: %w", model, i+1, r, err)
				}
				if s.ChainCheckpoints && i > 0 {
					rc.InitCheckpoint = prev[r-1] + "/" + BestCheckpointName
				}
				cur[r-1] = rc.ID()
				runs = append(runs, rc)
			}
			prev = cur
		}
	}
	return runs, nil
}

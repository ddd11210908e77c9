package sweep

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func resolvedRun(t *testing.T, mutate func(*Sweep)) RunConfig {
	t.Helper()
	s := baseSweep()
	if mutate != nil {
		mutate(&s)
	}
	runs, err := s.Resolve()
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	return runs[0]
}

func TestFormatFloat(t *testing.T) {
	require.Equal(t, "1e-04", formatFloat(1e-4))
	require.Equal(t, "3e-05", formatFloat(3e-5))
	require.Equal(t, "1.5e-04", formatFloat(1.5e-4))
	require.Equal(t, "1e-02", formatFloat(0.01))
	require.Equal(t, "0", formatFloat(0))
}

func TestRunID(t *testing.T) {
	rc := resolvedRun(t, nil)
	require.Equal(t, "arxiv/gpt2/lr1e-04_linear_adamw_wd1e-03_256-2x128_mem16_bs8-32_plain/run_1", rc.ID())
}

func TestRunIDIdempotent(t *testing.T) {
	a := resolvedRun(t, nil)
	b := resolvedRun(t, nil)
	require.Equal(t, a.ID(), b.ID())
}

func TestRunIDDistinctPerField(t *testing.T) {
	base := resolvedRun(t, nil)
	mutations := map[string]func(*Sweep){
		"task":          func(s *Sweep) { s.Task = "wikitext-2-v1" },
		"model":         func(s *Sweep) { s.Models = []string{"gpt2-medium"} },
		"learning_rate": func(s *Sweep) { s.LearningRates = []float64{3e-5} },
		"scheduler":     func(s *Sweep) { s.Schedulers = []string{"constant_with_warmup"} },
		"segments":      func(s *Sweep) { s.SegmentCounts = []int{4} },
		"input_size":    func(s *Sweep) { s.InputSizes = []int{64}; s.TargetBatchSizes = []int{32} },
		"memory_size":   func(s *Sweep) { s.MemorySizes = []int{32} },
		"batch_size":    func(s *Sweep) { s.BatchSizes = []int{16} },
		"target_batch":  func(s *Sweep) { s.TargetBatchSizes = []int{64} },
		"optimizer":     func(s *Sweep) { s.Optimizer = "Adafactor" },
		"weight_decay":  func(s *Sweep) { s.WeightDecay = 1e-2 },
		"layout":        func(s *Sweep) { s.MemoryLayout = LayoutOverlap },
	}
	seen := map[string]string{base.ID(): "base"}
	for name, mutate := range mutations {
		rc := resolvedRun(t, mutate)
		id := rc.ID()
		require.NotEqual(t, base.ID(), id, "mutating %s must change the run ID", name)
		prev, dup := seen[id]
		require.False(t, dup, "mutations %s and %s collide on %s", name, prev, id)
		seen[id] = name
	}
}

func TestRunIDEncodesRunIndex(t *testing.T) {
	s := baseSweep()
	s.Runs = 2
	runs, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, runs[0].Group(), runs[1].Group())
	require.NotEqual(t, runs[0].ID(), runs[1].ID())
}

func TestCheckpointName(t *testing.T) {
	require.Equal(t, "model_2500.pth", CheckpointName(2500))
	require.Equal(t, "model_best.pth", BestCheckpointName)
}

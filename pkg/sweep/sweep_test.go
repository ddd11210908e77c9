package sweep

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseSweep() Sweep {
	return Sweep{
		Task:             "arxiv",
		Models:           []string{"gpt2"},
		Runs:             1,
		LearningRates:    []float64{1e-4},
		Schedulers:       []string{"linear"},
		SegmentCounts:    []int{2},
		InputSizes:       []int{128},
		MemorySizes:      []int{16},
		BatchSizes:       []int{8},
		TargetBatchSizes: []int{32},
		Optimizer:        "AdamW",
		WeightDecay:      1e-3,
		MemoryLayout:     LayoutPlain,
		NumProcesses:     2,
	}
}

func TestDeriveAccumSteps(t *testing.T) {
	cases := []struct {
		target, batch, procs int
		want                 int
		wantErr              bool
	}{
		{256, 128, 2, 1, false},
		{32, 8, 2, 2, false},
		{64, 8, 4, 2, false},
		{1024, 32, 4, 8, false},
		{100, 8, 2, 0, true},
		{32, 12, 2, 0, true},
		{0, 8, 2, 0, true},
		{32, 0, 2, 0, true},
		{32, 8, 0, 0, true},
		{-32, 8, 2, 0, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_%d_%d", tc.target, tc.batch, tc.procs), func(t *testing.T) {
			got, err := DeriveAccumSteps(tc.target, tc.batch, tc.procs)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDeriveSeqLen(t *testing.T) {
	cases := []struct {
		name      string
		input     int
		memory    int
		segments  int
		layout    string
		want      int
		wantErr   bool
	}{
		{"plain", 231, 10, 10, LayoutPlain, 2310, false},
		{"plain_single_segment", 512, 0, 1, LayoutPlain, 512, false},
		{"overlap", 128, 16, 4, LayoutOverlap, 384, false},
		{"overlap_consumed_by_memory", 32, 16, 2, LayoutOverlap, 0, true},
		{"zero_segments", 128, 16, 0, LayoutPlain, 0, true},
		{"bad_layout", 128, 16, 2, "ring", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeriveSeqLen(tc.input, tc.memory, tc.segments, tc.layout)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveDerivedFields(t *testing.T) {
	s := baseSweep()
	runs, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	rc := runs[0]
	require.Equal(t, 256, rc.InputSeqLen)
	require.Equal(t, 2, rc.GradAccumSteps)
	require.Equal(t, 16, rc.PerWorkerBatchSize)
	require.Equal(t, 32, rc.GlobalBatchSize)
	require.Equal(t, rc.TargetBatchSize, rc.GlobalBatchSize)
	require.Equal(t, DefaultSeedBase, rc.Seed)
	require.Empty(t, rc.InitCheckpoint)
}

func TestResolveRejectsInexactDivision(t *testing.T) {
	s := baseSweep()
	s.TargetBatchSizes = []int{100}
	_, err := s.Resolve()
	require.Error(t, err)
	require.ErrorContains(t, err, "not divisible")
}

func TestResolvePairing(t *testing.T) {
	s := baseSweep()
	s.LearningRates = []float64{1e-4, 3e-5, 1e-5}
	s.SegmentCounts = []int{2, 4, 8}
	s.TargetBatchSizes = []int{64}

	runs, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, runs, 3)

	for i, rc := range runs {
		require.Equal(t, s.LearningRates[i], rc.LearningRate)
		require.Equal(t, s.SegmentCounts[i], rc.SegmentCount)
		// Broadcast dimensions repeat across all pairs.
		require.Equal(t, 64, rc.TargetBatchSize)
		require.Equal(t, "linear", rc.Scheduler)
	}
}

func TestResolveRejectsMismatchedPairing(t *testing.T) {
	s := baseSweep()
	s.LearningRates = []float64{1e-4, 3e-5, 1e-5}
	s.SegmentCounts = []int{2, 4}
	_, err := s.Resolve()
	require.Error(t, err)
	require.ErrorContains(t, err, "segment_counts")
}

func TestResolveExpansionOrder(t *testing.T) {
	s := baseSweep()
	s.Models = []string{"gpt2", "gpt2-medium"}
	s.SegmentCounts = []int{2, 4}
	s.Runs = 2

	runs, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, runs, 8)
	require.Equal(t, s.RunCount(), len(runs))

	// Models outermost, paired settings next, run index innermost.
	require.Equal(t, "gpt2", runs[0].Model)
	require.Equal(t, 2, runs[0].SegmentCount)
	require.Equal(t, 1, runs[0].RunIndex)
	require.Equal(t, 2, runs[1].RunIndex)
	require.Equal(t, 4, runs[2].SegmentCount)
	require.Equal(t, "gpt2-medium", runs[4].Model)

	again, err := s.Resolve()
	require.NoError(t, err)
	require.Equal(t, runs, again)
}

func TestResolveSeedSchedule(t *testing.T) {
	s := baseSweep()
	s.Runs = 3

	runs, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, 42, runs[0].Seed)
	require.Equal(t, 142, runs[1].Seed)
	require.Equal(t, 242, runs[2].Seed)

	s.SeedBase = 7
	s.SeedStride = 10
	runs, err = s.Resolve()
	require.NoError(t, err)
	require.Equal(t, 7, runs[0].Seed)
	require.Equal(t, 17, runs[1].Seed)
	require.Equal(t, 27, runs[2].Seed)
}

func TestResolveChainCheckpoints(t *testing.T) {
	s := baseSweep()
	s.SegmentCounts = []int{2, 4, 8}
	s.TargetBatchSizes = []int{64}
	s.Runs = 2
	s.ChainCheckpoints = true

	runs, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, runs, 6)

	// First paired setting trains from scratch.
	require.Empty(t, runs[0].InitCheckpoint)
	require.Empty(t, runs[1].InitCheckpoint)

	// Later settings warm-start from the best checkpoint of the previous
	// setting with the same run index.
	require.Equal(t, runs[0].ID()+"/"+BestCheckpointName, runs[2].InitCheckpoint)
	require.Equal(t, runs[1].ID()+"/"+BestCheckpointName, runs[3].InitCheckpoint)
	require.Equal(t, runs[2].ID()+"/"+BestCheckpointName, runs[4].InitCheckpoint)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Sweep)
	}{
		{"no_task", func(s *Sweep) { s.Task = "" }},
		{"no_models", func(s *Sweep) { s.Models = nil }},
		{"zero_runs", func(s *Sweep) { s.Runs = 0 }},
		{"zero_processes", func(s *Sweep) { s.NumProcesses = 0 }},
		{"bad_layout", func(s *Sweep) { s.MemoryLayout = "ring" }},
		{"no_optimizer", func(s *Sweep) { s.Optimizer = "" }},
		{"empty_paired_list", func(s *Sweep) { s.LearningRates = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := baseSweep()
			tc.mutate(&s)
			require.Error(t, s.Validate())
		})
	}
	s := baseSweep()
	require.NoError(t, s.Validate())
}

package launcher

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/config"
)

// BuildEnv assembles the environment variables layered on top of the
// inherited environment for every launched run: device visibility, numeric
// determinism, thread caps, plus user extras. Extras are emitted in sorted
// key order so invocations stay reproducible.
func BuildEnv(launch *config.Backend) []string {
	env := []string{}

	if len(launch.Devices) > 0 {
		env = append(env, "CUDA_VISIBLE_DEVICES="+deviceList(launch.Devices))
	}
	if launch.Deterministic {
		// Required by cuBLAS for deterministic matmul results.
		env = append(env, "CUBLAS_WORKSPACE_CONFIG=:4096:2")
	}
	if launch.OMPNumThreads > 0 {
		env = append(env, fmt.Sprintf("OMP_NUM_THREADS=%d", launch.OMPNumThreads))
	}
	env = append(env, "TOKENIZERS_PARALLELISM=false")

	keys := make([]string, 0, len(launch.ExtraEnv))
	for k := range launch.ExtraEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+launch.ExtraEnv[k])
	}

	return env
}

func deviceList(devices []int) string {
	parts := make([]string, len(devices))
	for i, d := range devices {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/sweep"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/tasks"
	"gopkg.in/yaml.v3"
)

var DebugLog func(string, ...interface{})

// Config is one experiment file: the task, the sweep over hyperparameters,
// fixed trainer knobs, the launch backend and the tracking sinks.
type Config struct {
	Task       string     `yaml:"task"`
	CustomTask CustomTask `yaml:"custom_task"`
	Model      Model      `yaml:"model"`
	Sweep      Sweep      `yaml:"sweep"`
	Training   Training   `yaml:"training"`
	Backend    Backend    `yaml:"backend"`
	Output     Output     `yaml:"output"`
	Database   Database   `yaml:"database"`
	Elastic    Elastic    `yaml:"elastic"`
}

// CustomTask declares a task inline instead of naming one from the catalog.
type CustomTask struct {
	Name        string   `yaml:"name"`
	Script      string   `yaml:"script"`
	DatasetArgs []string `yaml:"dataset_args"`
	Metric      string   `yaml:"metric"`
	Mode        string   `yaml:"mode"`
}

// Model holds backbone settings shared by every run of the experiment. The
// backbone names themselves are swept (sweep.models).
type Model struct {
	Tokenizer   string `yaml:"tokenizer"`
	BackboneCls string `yaml:"backbone_cls"`
	ModelCls    string `yaml:"model_cls"`
}

// Sweep lists candidate values per tunable dimension. The paired lists
// advance together by index; single-element lists broadcast.
type Sweep struct {
	Models           []string  `yaml:"models"`
	Runs             int       `yaml:"runs"`
	LearningRates    []float64 `yaml:"learning_rates"`
	Schedulers       []string  `yaml:"schedulers"`
	SegmentCounts    []int     `yaml:"segment_counts"`
	InputSizes       []int     `yaml:"input_sizes"`
	MemorySizes      []int     `yaml:"memory_sizes"`
	BatchSizes       []int     `yaml:"batch_sizes"`
	TargetBatchSizes []int     `yaml:"target_batch_sizes"`
	MemoryLayout     string    `yaml:"memory_layout"`
	SeedBase         int       `yaml:"seed_base"`
	SeedStride       int       `yaml:"seed_stride"`
	ChainCheckpoints bool      `yaml:"chain_checkpoints"`
}

// Training holds trainer knobs passed through to every run unchanged.
type Training struct {
	Iters            int     `yaml:"iters"`
	Optimizer        string  `yaml:"optimizer"`
	WeightDecay      float64 `yaml:"weight_decay"`
	NumWarmupSteps   int     `yaml:"num_warmup_steps"`
	NumTrainingSteps int     `yaml:"num_training_steps"`
	LogInterval      int     `yaml:"log_interval"`
	ValidInterval    int     `yaml:"valid_interval"`
	SaveInterval     int     `yaml:"save_interval"`
	SaveBest         bool    `yaml:"save_best"`
	OptimizeMetric   string  `yaml:"optimize_metric"`
	OptimizeMode     string  `yaml:"optimize_mode"`
	ClipGradNorm     float64 `yaml:"clip_grad_norm"`
	ClipGradValue    float64 `yaml:"clip_grad_value"`
	DataNWorkers     int     `yaml:"data_n_workers"`
	FP16             bool    `yaml:"fp16"`
	FP16Allreduce    bool    `yaml:"fp16_allreduce"`
	ApexOptLvl       string  `yaml:"apex_opt_lvl"`
	MinLossScale     float64 `yaml:"min_loss_scale"`
	SkipUsedData     bool    `yaml:"skip_used_data"`
	ResetLR          bool    `yaml:"reset_lr"`
	ResetOptimizer   bool    `yaml:"reset_optimizer"`
	InitCheckpoint   string  `yaml:"init_checkpoint"`
}

// Backend selects and parametrizes the external process launcher.
type Backend struct {
	Name             string            `yaml:"name"`
	Devices          []int             `yaml:"devices"`
	NumProcesses     int               `yaml:"num_processes"`
	Deterministic    bool              `yaml:"deterministic"`
	AccelerateConfig string            `yaml:"accelerate_config"`
	WorkDir          string            `yaml:"work_dir"`
	Python           string            `yaml:"python"`
	Script           string            `yaml:"script"`
	OMPNumThreads    int               `yaml:"omp_num_threads"`
	ExtraEnv         map[string]string `yaml:"extra_env"`
}

// Processes returns the effective process count: explicit value, else one
// per visible device, else a single process.
func (b *Backend) Processes() int {
	if b.NumProcesses > 0 {
		return b.NumProcesses
	}
	if len(b.Devices) > 0 {
		return len(b.Devices)
	}
	return 1
}

type Output struct {
	BaseDir string `yaml:"base_dir"`
}

type Database struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Elastic struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

type Manager struct {
	config     *Config
	configPath string
}

func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
	}
}

func (m *Manager) LoadConfig() error {
	if m.configPath == "" {
		m.configPath = m.findConfigFile()
	}

	if DebugLog != nil {
		DebugLog("loading experiment config from %s", m.configPath)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		return fmt.Errorf("experiment file not found at %s. Please create one based on experiment.yaml.example", m.configPath)
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read experiment file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse experiment file: %w", err)
	}

	config.applyDefaults()
	if err := m.validateConfig(&config); err != nil {
		return fmt.Errorf("experiment validation failed: %w", err)
	}

	if DebugLog != nil {
		m.logSweepShape(&config)
	}

	m.config = &config
	return nil
}

func (m *Manager) logSweepShape(config *Config) {
	s := config.BuildSweep()
	DebugLog("sweep over %d model(s), %d paired setting(s), %d run(s) each: %d runs total",
		len(s.Models), s.PairWidth(), s.Runs, s.RunCount())
}

func (m *Manager) GetConfig() *Config {
	return m.config
}

func (m *Manager) ConfigPath() string {
	return m.configPath
}

func (m *Manager) findConfigFile() string {
	if _, err := os.Stat("experiment.yaml"); err == nil {
		return "experiment.yaml"
	}

	if _, err := os.Stat("experiments/experiment.yaml"); err == nil {
		return "experiments/experiment.yaml"
	}

	if _, err := os.Stat(GetDefaultConfigPath()); err == nil {
		return GetDefaultConfigPath()
	}

	return "experiment.yaml"
}

// applyDefaults fills the fields an experiment file may omit.
func (c *Config) applyDefaults() {
	if c.Sweep.Runs == 0 {
		c.Sweep.Runs = 1
	}
	if c.Sweep.MemoryLayout == "" {
		c.Sweep.MemoryLayout = sweep.LayoutPlain
	}
	if c.Training.Optimizer == "" {
		c.Training.Optimizer = "AdamW"
	}
	if c.Backend.Name == "" {
		c.Backend.Name = "horovod"
	}
	if c.Backend.Python == "" {
		c.Backend.Python = "python3"
	}
	if c.Output.BaseDir == "" {
		c.Output.BaseDir = "runs"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Elastic.Index == "" {
		c.Elastic.Index = "armt_runs"
	}
}

func (m *Manager) validateConfig(config *Config) error {
	if _, err := config.ResolveTask(); err != nil {
		return err
	}

	if config.Training.ClipGradNorm != 0 && config.Training.ClipGradValue != 0 {
		return fmt.Errorf("clip_grad_norm and clip_grad_value are mutually exclusive")
	}
	if len(config.Sweep.Schedulers) > 0 && len(config.Sweep.LearningRates) == 0 {
		return fmt.Errorf("schedulers are set but no learning_rates given")
	}
	if mode := config.Training.OptimizeMode; mode != "" && mode != "min" && mode != "max" {
		return fmt.Errorf("optimize_mode must be min or max, got %q", mode)
	}

	switch config.Backend.Name {
	case "horovod", "accelerate":
	default:
		return fmt.Errorf("unknown backend %q, available backends: horovod, accelerate", config.Backend.Name)
	}
	if config.Backend.Processes() < 1 {
		return fmt.Errorf("process count must be at least 1")
	}
	for _, d := range config.Backend.Devices {
		if d < 0 {
			return fmt.Errorf("device ids must be non-negative, got %d", d)
		}
	}

	return config.BuildSweep().Validate()
}

// ResolveTask returns the task the experiment trains on: the inline custom
// task when declared, otherwise a catalog lookup.
func (c *Config) ResolveTask() (tasks.Task, error) {
	if c.CustomTask.Script != "" {
		name := c.CustomTask.Name
		if name == "" {
			name = c.Task
		}
		return tasks.Custom(name, c.CustomTask.Script, c.CustomTask.DatasetArgs, c.CustomTask.Metric, c.CustomTask.Mode)
	}
	if c.Task == "" {
		return tasks.Task{}, fmt.Errorf("experiment has no task")
	}
	return tasks.Lookup(c.Task)
}

// BuildSweep assembles the resolver input from the experiment's sweep block
// plus the fixed training and backend settings.
func (c *Config) BuildSweep() sweep.Sweep {
	task := c.Task
	if task == "" {
		task = c.CustomTask.Name
	}
	return sweep.Sweep{
		Task:             task,
		Models:           c.Sweep.Models,
		Runs:             c.Sweep.Runs,
		LearningRates:    c.Sweep.LearningRates,
		Schedulers:       c.Sweep.Schedulers,
		SegmentCounts:    c.Sweep.SegmentCounts,
		InputSizes:       c.Sweep.InputSizes,
		MemorySizes:      c.Sweep.MemorySizes,
		BatchSizes:       c.Sweep.BatchSizes,
		TargetBatchSizes: c.Sweep.TargetBatchSizes,
		Optimizer:        c.Training.Optimizer,
		WeightDecay:      c.Training.WeightDecay,
		MemoryLayout:     c.Sweep.MemoryLayout,
		NumProcesses:     c.Backend.Processes(),
		SeedBase:         c.Sweep.SeedBase,
		SeedStride:       c.Sweep.SeedStride,
		ChainCheckpoints: c.Sweep.ChainCheckpoints,
	}
}

// Override applies a command-line override on top of the loaded experiment.
func (m *Manager) Override(setting, value string) error {
	if m.config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	switch setting {
	case "runs":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid runs override: %s", value)
		}
		m.config.Sweep.Runs = n
	case "backend":
		if value != "horovod" && value != "accelerate" {
			return fmt.Errorf("unknown backend %q, available backends: horovod, accelerate", value)
		}
		m.config.Backend.Name = value
	case "output":
		if value == "" {
			return fmt.Errorf("output override is empty")
		}
		m.config.Output.BaseDir = value
	case "devices":
		devices, err := parseDeviceList(value)
		if err != nil {
			return err
		}
		m.config.Backend.Devices = devices
		m.config.Backend.NumProcesses = 0
	default:
		return fmt.Errorf("unknown setting: %s", setting)
	}

	return nil
}

func parseDeviceList(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	devices := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid device list: %s", value)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

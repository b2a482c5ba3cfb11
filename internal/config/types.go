package config

// Config is the top-level configuration parsed from scenesmith YAML.
type Config struct {
	Run    RunConfig    `yaml:"run"`
	LLM    LLMConfig    `yaml:"llm"`
	Bridge BridgeConfig `yaml:"bridge"`
	Limits LimitsConfig `yaml:"limits"`
}

// RunConfig controls the refinement loop itself.
type RunConfig struct {
	MaxIterations  int     `yaml:"max_iterations"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	StateDir       string  `yaml:"state_dir"` // defaults to ~/.scenesmith/runs
	Parallel       bool    `yaml:"parallel"`  // dispatch independent sub-tasks concurrently
}

// LLMConfig configures the three agent capabilities. The API key itself is
// never stored in the file; it is read from the named environment variable.
type LLMConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	PlannerModel string  `yaml:"planner_model"`
	CodegenModel string  `yaml:"codegen_model"`
	JudgeModel   string  `yaml:"judge_model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// BridgeConfig configures the connection to the scene host.
type BridgeConfig struct {
	Address string `yaml:"address"`
	Timeout string `yaml:"timeout"` // per-call deadline, Go duration string
}

// LimitsConfig holds retry bounds and fan-out guards.
type LimitsConfig struct {
	PlanningRetries int `yaml:"planning_retries"`
	CodegenRetries  int `yaml:"codegen_retries"`
	MaxSubTasks     int `yaml:"max_sub_tasks"` // upper bound on one planning batch
}

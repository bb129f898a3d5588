package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level novelgen configuration: one or more LLM providers,
// how the router picks between them, gateway-level resilience knobs, output
// paths, and pipeline limits.
type Config struct {
	Providers []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	Router    RouterConfig     `yaml:"router" validate:"required"`
	Gateway   GatewayConfig    `yaml:"gateway" validate:"required"`
	Paths     PathsConfig      `yaml:"paths" validate:"required"`
	Limits    Limits           `yaml:"limits" validate:"required"`
}

// ProviderConfig describes one configured LLM backend and its capability
// scores for the router's balanced-strategy weighting.
type ProviderConfig struct {
	Name              string   `yaml:"name" validate:"required"`
	Type              string   `yaml:"type" validate:"required,oneof=openai anthropic ollama custom"`
	APIKey            string   `yaml:"api_key"`
	BaseURL           string   `yaml:"base_url"`
	Model             string   `yaml:"model" validate:"required"`
	TimeoutSeconds    int      `yaml:"timeout_seconds" validate:"required,min=5,max=600"`
	RequestsPerMinute int      `yaml:"requests_per_minute" validate:"min=0,max=10000"`
	Burst             int      `yaml:"burst" validate:"min=0,max=1000"`
	QualityScore      float64  `yaml:"quality_score" validate:"min=0,max=1"`
	SpeedScore        float64  `yaml:"speed_score" validate:"min=0,max=1"`
	ReliabilityScore  float64  `yaml:"reliability_score" validate:"min=0,max=1"`
	CostScore         float64  `yaml:"cost_score" validate:"min=0,max=1"`
	SupportedTasks    []string `yaml:"supported_tasks"`
}

// RouterConfig selects which provider is primary, the fallback order, and
// the default selection strategy (§4.10).
type RouterConfig struct {
	Primary   string `yaml:"primary" validate:"required"`
	Fallbacks []string `yaml:"fallbacks"`
	Strategy  string `yaml:"strategy" validate:"required,oneof=quality-first speed-first cost-first balanced round-robin failover"`
}

// GatewayConfig mirrors llm.GatewayConfig in wire-friendly form (§4.9/§6).
type GatewayConfig struct {
	MinCallSpacingSeconds  int  `yaml:"min_call_spacing_seconds" validate:"min=0,max=60"`
	PerProviderConcurrency int  `yaml:"per_provider_concurrency" validate:"required,min=1,max=64"`
	CacheEnabled           bool `yaml:"cache_enabled"`
	CacheMaxEntries        int  `yaml:"cache_max_entries" validate:"min=0"`
	DefaultTimeoutSeconds  int  `yaml:"default_timeout_seconds" validate:"required,min=5,max=600"`
	BatchConcurrency       int  `yaml:"batch_concurrency" validate:"min=0,max=64"`
}

// PathsConfig is where manuscripts and generation logs are written.
type PathsConfig struct {
	OutputDir string `yaml:"output_dir" validate:"required,dirpath"`
	LogsDir   string `yaml:"logs_dir" validate:"required,dirpath"`
}

// Load reads novelgen's config file, creating one interactively if it does
// not exist yet, and resolves provider API keys from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := getConfigPath()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		cfg, createErr := createConfigInteractively(configPath)
		if createErr != nil {
			return nil, fmt.Errorf("creating config: %w", createErr)
		}
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	resolveAPIKeysFromEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// resolveAPIKeysFromEnv fills in ${ENV_VAR}-style placeholders and empty
// API keys from the provider's conventional environment variable.
func resolveAPIKeysFromEnv(cfg *Config) {
	envVarByType := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.APIKey != "" && !strings.HasPrefix(p.APIKey, "${") {
			continue
		}
		if envVar, ok := envVarByType[p.Type]; ok {
			if v := os.Getenv(envVar); v != "" {
				p.APIKey = v
			}
		}
	}
}

func getConfigPath() string {
	if path := os.Getenv("NOVELGEN_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "novelgen", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "novelgen", "config.yaml")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) validate() error {
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = defaultXDGPath("XDG_DATA_HOME", "output")
	} else {
		c.Paths.OutputDir = expandTilde(c.Paths.OutputDir)
	}
	if c.Paths.LogsDir == "" {
		c.Paths.LogsDir = defaultXDGPath("XDG_DATA_HOME", "logs")
	} else {
		c.Paths.LogsDir = expandTilde(c.Paths.LogsDir)
	}

	if c.Limits.MaxConcurrentWriters == 0 {
		c.Limits = DefaultLimits()
	}
	if c.Gateway.PerProviderConcurrency == 0 {
		c.Gateway = DefaultGatewayConfig()
	}

	validate := validator.New()
	validate.RegisterValidation("dirpath", func(fl validator.FieldLevel) bool {
		return true
	})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	names := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		names[p.Name] = true
	}
	if !names[c.Router.Primary] {
		return fmt.Errorf("router.primary %q does not match any configured provider", c.Router.Primary)
	}
	for _, fb := range c.Router.Fallbacks {
		if !names[fb] {
			return fmt.Errorf("router.fallbacks entry %q does not match any configured provider", fb)
		}
	}

	return nil
}

func defaultXDGPath(envVar, leaf string) string {
	if xdg := os.Getenv(envVar); xdg != "" {
		return filepath.Join(xdg, "novelgen", leaf)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "novelgen", leaf)
}

// DefaultGatewayConfig mirrors llm.DefaultGatewayConfig's numbers in their
// wire-config form (§6).
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MinCallSpacingSeconds:  10,
		PerProviderConcurrency: 3,
		CacheEnabled:           true,
		CacheMaxEntries:        10000,
		DefaultTimeoutSeconds:  60,
		BatchConcurrency:       2,
	}
}

func createConfigInteractively(configPath string) (*Config, error) {
	fmt.Printf("Welcome to novelgen. Let's set up your configuration.\n\n")

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	fmt.Printf("Which AI provider would you like to use as primary?\n")
	fmt.Printf("1. OpenAI\n2. Anthropic\n3. Ollama (local)\n")
	fmt.Printf("Enter choice (1-3): ")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	choice := strings.TrimSpace(scanner.Text())

	var provider ProviderConfig
	switch choice {
	case "2":
		provider = defaultAnthropicProvider()
	case "3":
		provider = defaultOllamaProvider()
	default:
		provider = defaultOpenAIProvider()
	}

	if provider.Type != "ollama" {
		apiKey, err := promptForAPIKey()
		if err != nil {
			return nil, err
		}
		provider.APIKey = apiKey
	}

	cfg := Config{
		Providers: []ProviderConfig{provider},
		Router:    RouterConfig{Primary: provider.Name, Strategy: "balanced"},
		Gateway:   DefaultGatewayConfig(),
		Limits:    DefaultLimits(),
	}
	cfg.setupDefaultPaths()

	if err := os.MkdirAll(cfg.Paths.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}

	if err := saveConfig(&cfg, configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to: %s\n", configPath)
	return &cfg, nil
}

func defaultOpenAIProvider() ProviderConfig {
	return ProviderConfig{
		Name: "openai", Type: "openai", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1",
		TimeoutSeconds: 60, RequestsPerMinute: 60, Burst: 1,
		QualityScore: 0.85, SpeedScore: 0.75, ReliabilityScore: 0.9, CostScore: 0.6,
	}
}

func defaultAnthropicProvider() ProviderConfig {
	return ProviderConfig{
		Name: "anthropic", Type: "anthropic", Model: "claude-3-5-sonnet-20241022", BaseURL: "https://api.anthropic.com/v1",
		TimeoutSeconds: 60, RequestsPerMinute: 60, Burst: 1,
		QualityScore: 0.9, SpeedScore: 0.7, ReliabilityScore: 0.9, CostScore: 0.5,
	}
}

func defaultOllamaProvider() ProviderConfig {
	return ProviderConfig{
		Name: "ollama", Type: "ollama", Model: "llama3", BaseURL: "http://localhost:11434",
		TimeoutSeconds: 120, RequestsPerMinute: 0, Burst: 0,
		QualityScore: 0.6, SpeedScore: 0.5, ReliabilityScore: 0.6, CostScore: 1.0,
	}
}

func promptForAPIKey() (string, error) {
	fmt.Printf("\nPlease enter your API key: ")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	apiKey := strings.TrimSpace(scanner.Text())

	if apiKey == "" {
		return "", fmt.Errorf("API key is required")
	}
	if len(apiKey) < 20 {
		return "", fmt.Errorf("API key seems too short (minimum 20 characters)")
	}
	return apiKey, nil
}

func (c *Config) setupDefaultPaths() {
	c.Paths.OutputDir = defaultXDGPath("XDG_DATA_HOME", "output")
	c.Paths.LogsDir = defaultXDGPath("XDG_DATA_HOME", "logs")
}

func saveConfig(cfg *Config, configPath string) error {
	cfgToSave := *cfg
	for i := range cfgToSave.Providers {
		if cfgToSave.Providers[i].APIKey != "" {
			cfgToSave.Providers[i].APIKey = fmt.Sprintf("${%s_API_KEY}", strings.ToUpper(cfgToSave.Providers[i].Type))
		}
	}

	data, err := yaml.Marshal(&cfgToSave)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

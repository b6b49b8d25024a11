package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/itstheanurag/snipexec/internal/executor"
	"github.com/itstheanurag/snipexec/internal/languages"
	"github.com/itstheanurag/snipexec/internal/sandbox"
	"github.com/itstheanurag/snipexec/internal/tracing"
)

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // seconds
}

type DbConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type EngineConfig struct {
	Sandbox                string        `mapstructure:"sandbox"`
	WorkspaceRoot          string        `mapstructure:"workspace_root"`
	RunTimeout             time.Duration `mapstructure:"run_timeout"`
	CompileTimeout         time.Duration `mapstructure:"compile_timeout"`
	KillGrace              time.Duration `mapstructure:"kill_grace"`
	MemoryLimitKb          int           `mapstructure:"memory_limit_kb"`
	FileSizeLimitKb        int           `mapstructure:"file_size_limit_kb"`
	MaxOutputChars         int           `mapstructure:"max_output_chars"`
	IncludeStdoutOnFailure bool          `mapstructure:"include_stdout_on_failure"`
	PreserveTimeoutOutput  bool          `mapstructure:"preserve_timeout_output"`
}

type DockerConfig struct {
	Image     string `mapstructure:"image"`
	PidsLimit int64  `mapstructure:"pids_limit"`
}

type FirejailConfig struct {
	Binary string `mapstructure:"binary"`
}

type WorkersConfig struct {
	Count         int `mapstructure:"count"`
	QueueCapacity int `mapstructure:"queue_capacity"`
}

type LimiterConfig struct {
	GlobalRPS       float64       `mapstructure:"global_rps"`
	PerIPRPS        float64       `mapstructure:"per_ip_rps"`
	PerIPBurst      int           `mapstructure:"per_ip_burst"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Db       DbConfig       `mapstructure:"db"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Firejail FirejailConfig `mapstructure:"firejail"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// LoadConfig reads snipexec.yaml from the working directory or
// /etc/snipexec, or the file at path when it is non-empty. A missing default
// file is not an error. SNIPEXEC_* environment variables override both, e.g.
// SNIPEXEC_ENGINE_RUN_TIMEOUT=10s.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("snipexec")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("snipexec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/snipexec")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 90)
	v.SetDefault("server.idle_timeout", 60)

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "snipexec")
	v.SetDefault("db.sslmode", "disable")

	opts := executor.DefaultOptions()
	v.SetDefault("engine.sandbox", sandbox.KindFirejail)
	v.SetDefault("engine.workspace_root", "")
	v.SetDefault("engine.run_timeout", opts.RunTimeout)
	v.SetDefault("engine.compile_timeout", opts.CompileTimeout)
	v.SetDefault("engine.kill_grace", opts.KillGrace)
	v.SetDefault("engine.memory_limit_kb", 2000000)
	v.SetDefault("engine.file_size_limit_kb", 100)
	v.SetDefault("engine.max_output_chars", opts.MaxOutputChars)
	v.SetDefault("engine.include_stdout_on_failure", opts.IncludeStdoutOnFailure)
	v.SetDefault("engine.preserve_timeout_output", opts.PreserveTimeoutOutput)

	v.SetDefault("docker.image", "snipexec/runtime:latest")
	v.SetDefault("docker.pids_limit", 64)
	v.SetDefault("firejail.binary", "firejail")

	v.SetDefault("workers.count", 5)
	v.SetDefault("workers.queue_capacity", 100)

	v.SetDefault("limiter.global_rps", 100.0)
	v.SetDefault("limiter.per_ip_rps", 10.0)
	v.SetDefault("limiter.per_ip_burst", 20)
	v.SetDefault("limiter.max_concurrent", 50)
	v.SetDefault("limiter.cleanup_interval", 5*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", tracing.DefaultServiceName)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Engine.Sandbox {
	case sandbox.KindFirejail, sandbox.KindDocker, sandbox.KindNone:
	default:
		errs = append(errs, fmt.Errorf("engine.sandbox: unknown sandbox %q", c.Engine.Sandbox))
	}
	if c.Engine.RunTimeout <= 0 {
		errs = append(errs, errors.New("engine.run_timeout must be positive"))
	}
	if c.Engine.CompileTimeout <= 0 {
		errs = append(errs, errors.New("engine.compile_timeout must be positive"))
	}
	if c.Engine.KillGrace <= 0 {
		errs = append(errs, errors.New("engine.kill_grace must be positive"))
	}
	if c.Engine.MaxOutputChars < executor.MinOutputChars {
		errs = append(errs, fmt.Errorf("engine.max_output_chars must be at least %d", executor.MinOutputChars))
	}
	if c.Engine.MemoryLimitKb < 0 || c.Engine.FileSizeLimitKb < 0 {
		errs = append(errs, errors.New("engine memory and file size limits must not be negative"))
	}
	if c.Server.WriteTimeout > 0 {
		write := time.Duration(c.Server.WriteTimeout) * time.Second
		if budget := c.ExecutionBudget(); write <= budget {
			errs = append(errs, fmt.Errorf("server.write_timeout (%s) must exceed the worst-case execution time (%s)", write, budget))
		}
	}
	if c.Workers.Count <= 0 {
		errs = append(errs, errors.New("workers.count must be positive"))
	}
	if c.Workers.QueueCapacity <= 0 {
		errs = append(errs, errors.New("workers.queue_capacity must be positive"))
	}
	if c.Limiter.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("limiter.max_concurrent must be positive"))
	}
	if c.Limiter.CleanupInterval <= 0 {
		errs = append(errs, errors.New("limiter.cleanup_interval must be positive"))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be between 0 and 1"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ExecutionBudget is the longest a request can spend being built and run:
// every compile step of the slowest language at its full budget plus the run
// budget, each followed by the kill grace. Time spent queued is not included.
func (c *Config) ExecutionBudget() time.Duration {
	steps := 0
	for _, l := range languages.Default().List() {
		steps = max(steps, len(l.CompileSteps))
	}
	return time.Duration(steps)*(c.Engine.CompileTimeout+c.Engine.KillGrace) +
		c.Engine.RunTimeout + c.Engine.KillGrace
}

// ExecutorOptions maps the engine section onto executor options.
func (c *Config) ExecutorOptions() executor.Options {
	return executor.Options{
		RunTimeout:             c.Engine.RunTimeout,
		CompileTimeout:         c.Engine.CompileTimeout,
		KillGrace:              c.Engine.KillGrace,
		MemoryLimitKb:          c.Engine.MemoryLimitKb,
		FileSizeLimitKb:        c.Engine.FileSizeLimitKb,
		MaxOutputChars:         c.Engine.MaxOutputChars,
		IncludeStdoutOnFailure: c.Engine.IncludeStdoutOnFailure,
		PreserveTimeoutOutput:  c.Engine.PreserveTimeoutOutput,
	}
}

func (c *Config) TracingOptions() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

func (c *Config) SandboxOptions() sandbox.Options {
	return sandbox.Options{
		FirejailBinary:  c.Firejail.Binary,
		DockerImage:     c.Docker.Image,
		DockerPidsLimit: c.Docker.PidsLimit,
	}
}

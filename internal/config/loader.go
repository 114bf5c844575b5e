package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultMaxSentenceLen    = 4096
	DefaultMaxBatchSize      = 256
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultModelName         = "ollama"
	DefaultModel             = "phi4-mini"
	DefaultModelTimeout      = 60 * time.Second
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultCachePath         = ".spelling_cache.json"
	DefaultSQLitePath        = "phonospell.db"
	DefaultServiceName       = "phonospell"
	DefaultPhoneticThreshold = 0.70
)

// ValidProviderNames lists the model backends known to the built-in registry.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Default returns the configuration used when no config file exists: a local
// Ollama model and a JSON cache file in the working directory.
func Default() *Config {
	cfg := &Config{}
	cfg.Model.Name = DefaultModelName
	cfg.Model.Model = DefaultModel
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader]. A missing file yields
// an error wrapping [os.ErrNotExist].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults and validates the result. An empty document
// yields the defaults with the model stage disabled.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.MaxSentenceLen == 0 {
		s.MaxSentenceLen = DefaultMaxSentenceLen
	}
	if s.MaxBatchSize == 0 {
		s.MaxBatchSize = DefaultMaxBatchSize
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	m := &cfg.Model
	if m.Timeout == 0 {
		m.Timeout = DefaultModelTimeout
	}
	if m.Retries > 0 && m.RetryDelay == 0 {
		m.RetryDelay = DefaultRetryDelay
	}
	if m.PhoneticThreshold == 0 {
		m.PhoneticThreshold = DefaultPhoneticThreshold
	}

	c := &cfg.Cache
	if c.Backend == "" {
		c.Backend = CacheFile
	}
	if c.Path == "" {
		switch c.Backend {
		case CacheFile:
			c.Path = DefaultCachePath
		case CacheSQLite:
			c.Path = DefaultSQLitePath
		}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxSentenceLen < 0 {
		errs = append(errs, fmt.Errorf("server.max_sentence_len %d must not be negative", cfg.Server.MaxSentenceLen))
	}
	if cfg.Server.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("server.max_batch_size %d must not be negative", cfg.Server.MaxBatchSize))
	}
	if cfg.Server.BatchParallelism < 0 {
		errs = append(errs, fmt.Errorf("server.batch_parallelism %d must not be negative", cfg.Server.BatchParallelism))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Model
	m := cfg.Model
	if m.Enabled() {
		validateProviderName("model", m.Name)
	} else if len(m.Fallbacks) > 0 {
		errs = append(errs, errors.New("model.fallbacks requires model.name to be set"))
	}
	if m.Temperature != nil && (*m.Temperature < 0 || *m.Temperature > 2) {
		errs = append(errs, fmt.Errorf("model.temperature %.2f is out of range [0, 2]", *m.Temperature))
	}
	if m.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens %d must not be negative", m.MaxTokens))
	}
	if m.Timeout < 0 {
		errs = append(errs, fmt.Errorf("model.timeout %s must not be negative", m.Timeout))
	}
	if m.Retries < 0 {
		errs = append(errs, fmt.Errorf("model.retries %d must not be negative", m.Retries))
	}
	if m.PhoneticThreshold < 0 || m.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("model.phonetic_threshold %.2f is out of range [0, 1]", m.PhoneticThreshold))
	}
	for i, fb := range m.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("model.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fmt.Sprintf("model.fallbacks[%d]", i), fb.Name)
	}

	// Cache
	switch c := cfg.Cache; {
	case !c.Backend.IsValid():
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: file, sqlite, postgres, memory", c.Backend))
	case c.Backend == CachePostgres && c.DSN == "":
		errs = append(errs, errors.New("cache.dsn is required when backend is postgres"))
	case (c.Backend == CacheFile || c.Backend == CacheSQLite) && c.Path == "":
		errs = append(errs, fmt.Errorf("cache.path is required when backend is %s", c.Backend))
	}
	if cfg.Cache.Backend == CacheMemory {
		slog.Warn("cache.backend is memory; learned corrections are lost on exit")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not one of
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in value.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func expandEnv(cfg *Config) {
	expand := func(e *ProviderEntry) {
		e.APIKey = ResolveEnvVars(e.APIKey)
		e.BaseURL = ResolveEnvVars(e.BaseURL)
	}
	expand(&cfg.Model.ProviderEntry)
	for i := range cfg.Model.Fallbacks {
		expand(&cfg.Model.Fallbacks[i])
	}
	cfg.Cache.DSN = ResolveEnvVars(cfg.Cache.DSN)
}

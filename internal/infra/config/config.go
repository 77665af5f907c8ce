package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
	Provider    ProviderConfig    `yaml:"provider"`
	Stream      StreamConfig      `yaml:"stream"`
	Translation TranslationConfig `yaml:"translation"`
	Session     SessionConfig     `yaml:"session"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ProviderConfig holds the question-answering endpoint settings.
type ProviderConfig struct {
	Name           string               `yaml:"name"`
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"` // may be "enc:..." (see ASKBOX_CONFIG_KEY)
	Model          string               `yaml:"model"`
	SystemPrompt   string               `yaml:"system_prompt"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// PoolConfig configures HTTP connection pooling.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig configures the circuit breaker around provider calls.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// StreamConfig holds rendering and replay pacing.
type StreamConfig struct {
	MinRenderInterval   time.Duration `yaml:"min_render_interval"`   // default 100ms
	DeferredRenderDelay time.Duration `yaml:"deferred_render_delay"` // default 50ms
	ReplayStep          int           `yaml:"replay_step"`           // runes per tick, 0 = instant
	ReplayTick          time.Duration `yaml:"replay_tick"`
	ReadBufferSize      int           `yaml:"read_buffer_size"`
}

// TranslationConfig holds display-language settings. An empty TargetLanguage
// disables translation.
type TranslationConfig struct {
	TargetLanguage string        `yaml:"target_language"` // BCP 47, e.g. "fr", "zh-CN"
	SourceLanguage string        `yaml:"source_language"` // BCP 47, default "en"
	Model          string        `yaml:"model"`           // empty = provider model
	Timeout        time.Duration `yaml:"timeout"`
}

// Languages returns the display/source language pair as a lookup the stream
// pipeline can query.
func (t TranslationConfig) Languages() Languages {
	return Languages{target: strings.TrimSpace(t.TargetLanguage), source: strings.TrimSpace(t.SourceLanguage)}
}

// Languages is a fixed target/source language pair.
type Languages struct {
	target string
	source string
}

// TargetLanguage returns the configured display language, if any.
func (l Languages) TargetLanguage() (string, bool) { return l.target, l.target != "" }

// SourceLanguage returns the language answers are produced in.
func (l Languages) SourceLanguage() string {
	if l.source == "" {
		return "en"
	}
	return l.source
}

// SessionConfig holds conversation history settings.
type SessionConfig struct {
	Key        string `yaml:"key"`
	MaxEntries int    `yaml:"max_entries"`
	Persist    bool   `yaml:"persist"`
	DBPath     string `yaml:"db_path"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. "127.0.0.1:9464"; empty = no listener
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.askbox.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".askbox")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Provider: ProviderConfig{
			Name:         "openai",
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful assistant. Answer concisely.",
			ConnTimeout:  30 * time.Second,
			RespTimeout:  120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Stream: StreamConfig{
			MinRenderInterval:   100 * time.Millisecond,
			DeferredRenderDelay: 50 * time.Millisecond,
			ReplayStep:          8,
			ReplayTick:          16 * time.Millisecond,
			ReadBufferSize:      4096,
		},
		Translation: TranslationConfig{
			SourceLanguage: "en",
			Timeout:        30 * time.Second,
		},
		Session: SessionConfig{
			Key:        "default",
			MaxEntries: 6,
			Persist:    true,
			DBPath:     filepath.Join(defaultDataDir(), "history.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Load reads a YAML config from path, applies ASKBOX_* env overrides,
// decrypts "enc:" secrets when ASKBOX_CONFIG_KEY is set and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("ASKBOX_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies ASKBOX_* environment variables to cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASKBOX_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ASKBOX_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("ASKBOX_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("ASKBOX_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("ASKBOX_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("ASKBOX_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ASKBOX_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("ASKBOX_STREAM_MIN_RENDER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Stream.MinRenderInterval = d
		}
	}
	if v := os.Getenv("ASKBOX_STREAM_REPLAY_STEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Stream.ReplayStep = n
		}
	}
	if v, ok := os.LookupEnv("ASKBOX_TRANSLATION_TARGET_LANGUAGE"); ok {
		cfg.Translation.TargetLanguage = v
	}
	if v := os.Getenv("ASKBOX_TRANSLATION_SOURCE_LANGUAGE"); v != "" {
		cfg.Translation.SourceLanguage = v
	}
	if v := os.Getenv("ASKBOX_TRANSLATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Translation.Timeout = d
		}
	}
	if v := os.Getenv("ASKBOX_SESSION_KEY"); v != "" {
		cfg.Session.Key = v
	}
	if v := os.Getenv("ASKBOX_SESSION_PERSIST"); v == "false" {
		cfg.Session.Persist = false
	}
	if v := os.Getenv("ASKBOX_SESSION_DB_PATH"); v != "" {
		cfg.Session.DBPath = v
	}
	if v := os.Getenv("ASKBOX_METRICS_ADDR"); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
}

// decryptSecrets finds "enc:..." values and decrypts them in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.Provider.APIKey, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.Provider.APIKey, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.Provider.Name, err)
		}
		cfg.Provider.APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

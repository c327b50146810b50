package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrNoConfig is returned by ResolveConfigPath when no config file exists.
var ErrNoConfig = errors.New("no config file found")

type Config struct {
	Extraction Extraction `yaml:"extraction"`
	Generation Generation `yaml:"generation"`
	Spellcheck Spellcheck `yaml:"spellcheck"`
	Images     Images     `yaml:"images"`
	History    History    `yaml:"history"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Extraction struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Generation struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	OllamaURL      string  `yaml:"ollama_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type Spellcheck struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Language       string `yaml:"language"`
	UsernameEnv    string `yaml:"username_env"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Images struct {
	Endpoint           string `yaml:"endpoint"`
	Model              string `yaml:"model"`
	APIKeyEnv          string `yaml:"api_key_env"`
	DefaultAspectRatio string `yaml:"default_aspect_ratio"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

type History struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for reviewgen.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "reviewgen")
}

// DataDir returns the XDG data directory for reviewgen.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "reviewgen")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/reviewgen/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n  ./config.yaml", ErrNoConfig, xdgConfig)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Extraction: Extraction{
			TimeoutSeconds: 15,
			UserAgent:      "Mozilla/5.0 (compatible; reviewgen/1.0; +https://github.com/TobiSchelling/reviewgen)",
			MaxBodyBytes:   5 << 20,
		},
		Generation: Generation{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			OllamaURL:      "http://localhost:11434",
			APIKeyEnv:      "OPENAI_API_KEY",
			Temperature:    0.4,
			MaxTokens:      1800,
			TimeoutSeconds: 120,
		},
		Spellcheck: Spellcheck{
			Enabled:        true,
			Endpoint:       "https://api.languagetool.org",
			Language:       "auto",
			UsernameEnv:    "LANGUAGETOOL_USERNAME",
			APIKeyEnv:      "LANGUAGETOOL_API_KEY",
			TimeoutSeconds: 20,
		},
		Images: Images{
			Endpoint:           "https://api.nanobanana.dev",
			Model:              "gemini-2.5-flash-image",
			APIKeyEnv:          "NANO_BANANA_API_KEY",
			DefaultAspectRatio: "16:9",
			TimeoutSeconds:     30,
		},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective history directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.History.DataDir != "" {
		return c.History.DataDir
	}
	return DataDir()
}

func (e Extraction) Timeout() time.Duration { return seconds(e.TimeoutSeconds, 15) }
func (g Generation) Timeout() time.Duration { return seconds(g.TimeoutSeconds, 120) }
func (s Spellcheck) Timeout() time.Duration { return seconds(s.TimeoutSeconds, 20) }
func (i Images) Timeout() time.Duration     { return seconds(i.TimeoutSeconds, 30) }

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Package config loads STELLA's layered configuration and persists the
// model selection made by switch_model.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when no --config flag is given.
const DefaultPath = "stella.yaml"

// EnvPrefix namespaces environment overrides, e.g. STELLA_LOOP_MAX_TURNS.
const EnvPrefix = "STELLA"

// Config is an immutable snapshot of the merged configuration.
type Config struct {
	Provider  string     `mapstructure:"provider"`
	ModelName string     `mapstructure:"model_name"`
	BaseURL   string     `mapstructure:"base_url"`
	Loop      LoopConfig `mapstructure:"loop"`
	Log       LogConfig  `mapstructure:"log"`

	// Path is the file the configuration was read from and Save writes to.
	Path string `mapstructure:"-"`
}

// LoopConfig tunes the decision loop and its tools.
type LoopConfig struct {
	SendTimeout         time.Duration `mapstructure:"send_timeout"`
	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	AskTimeout          time.Duration `mapstructure:"ask_timeout"`
	MaxTurns            int           `mapstructure:"max_turns"`
	MaxRetries          int           `mapstructure:"max_retries"`
	LoopDetectionWindow int           `mapstructure:"loop_detection_window"`
	MaxOutputChars      int           `mapstructure:"max_output_chars"`
}

// LogConfig selects the diagnostic log level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("model_name", "")
	v.SetDefault("base_url", "")

	v.SetDefault("loop.send_timeout", 2*time.Minute)
	v.SetDefault("loop.command_timeout", 2*time.Minute)
	v.SetDefault("loop.ask_timeout", time.Duration(0))
	v.SetDefault("loop.max_turns", 0)
	v.SetDefault("loop.max_retries", 2)
	v.SetDefault("loop.loop_detection_window", 6)
	v.SetDefault("loop.max_output_chars", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load merges defaults, the YAML file at path and STELLA_* environment
// variables, in increasing order of precedence. A missing file is not an
// error. Variables from a .env file in the working directory are loaded
// first and never override the real environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the loop cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Loop.SendTimeout < 0:
		return fmt.Errorf("loop.send_timeout must not be negative")
	case c.Loop.CommandTimeout < 0:
		return fmt.Errorf("loop.command_timeout must not be negative")
	case c.Loop.AskTimeout < 0:
		return fmt.Errorf("loop.ask_timeout must not be negative")
	case c.Loop.MaxTurns < 0:
		return fmt.Errorf("loop.max_turns must not be negative")
	case c.Loop.MaxRetries < 0:
		return fmt.Errorf("loop.max_retries must not be negative")
	case c.Loop.LoopDetectionWindow < 0:
		return fmt.Errorf("loop.loop_detection_window must not be negative")
	case c.Loop.MaxOutputChars < 0:
		return fmt.Errorf("loop.max_output_chars must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Save merges updates into the top level of the YAML document at path and
// rewrites it. Keys, values and comments not named in updates are kept. The
// file is created when it does not exist.
func Save(path string, updates map[string]string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		setScalar(root, k, updates[k])
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFileAtomic(path, out, 0o640)
}

// SaveModel persists a provider and model selection.
func SaveModel(path, provider, model string) error {
	return Save(path, map[string]string{
		"provider":   provider,
		"model_name": model,
	})
}

// ModelOverrides lists the set environment variables that outrank the
// provider and model written by SaveModel.
func ModelOverrides() []string {
	var set []string
	for _, key := range []string{"provider", "model_name"} {
		name := EnvPrefix + "_" + strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			set = append(set, name)
		}
	}
	return set
}

func setScalar(mapping *yaml.Node, key, value string) {
	val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			val.HeadComment = mapping.Content[i+1].HeadComment
			val.LineComment = mapping.Content[i+1].LineComment
			mapping.Content[i+1] = val
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		val,
	)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

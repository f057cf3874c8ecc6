package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/scipunch/campusfeed/dedup"
	"github.com/scipunch/campusfeed/event"
	"github.com/scipunch/campusfeed/parser"
	"github.com/scipunch/campusfeed/state"
)

const baseCfgPath = "campusfeed/config.toml"

// Environment variables overriding the config file
const (
	EnvTaskType       = "TASK_TYPE"
	EnvFeedURL        = "EVENTS_RSS_URL"
	EnvInternshipsURL = "INTERNSHIPS_MARKDOWN_URL"
	EnvJobsURL        = "JOBS_RSS_URL"
	EnvDatasetPath    = "EVENTS_DATASET_PATH"
	EnvStatePath   = "CAMPUSFEED_STATE_PATH"
	EnvLogLevel    = "CAMPUSFEED_LOG_LEVEL"
)

type Config struct {
	TaskType     string            `toml:"task_type" yaml:"task_type"` // events, jobs or internships
	FeedURL      string            `toml:"feed_url" yaml:"feed_url"`
	DatasetPath  string            `toml:"dataset_path" yaml:"dataset_path"`
	StatePath    string            `toml:"state_path" yaml:"state_path"`     // sqlite run history, empty disables it
	MetricsPath  string            `toml:"metrics_path" yaml:"metrics_path"` // node-exporter textfile, empty disables it
	FetchTimeout time.Duration     `toml:"fetch_timeout" yaml:"fetch_timeout"`
	UserAgent    string            `toml:"user_agent" yaml:"user_agent"`
	SubType      string            `toml:"sub_type" yaml:"sub_type"`   // category stamped on new event rows
	DedupKey     []string          `toml:"dedup_key" yaml:"dedup_key"` // empty selects the default key of the task type
	Parser       parser.Options    `toml:"parser" yaml:"parser"`
	Filters      map[string]Filter `toml:"filters" yaml:"filters"`             // Named filters that can be referenced by apply_filters
	FilterNames  []string          `toml:"apply_filters" yaml:"apply_filters"` // Names of filters to apply (pipeline)
	Log          Log               `toml:"log" yaml:"log"`
}

type Log struct {
	Level  string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format string `toml:"format" yaml:"format"` // auto, text, json, zap
}

// Filter defines rules for filtering extracted events
type Filter struct {
	MinLength         int      `toml:"min_length" yaml:"min_length"`                 // Minimum character count (0 = no limit)
	MinWords          int      `toml:"min_words" yaml:"min_words"`                   // Minimum word count (0 = no limit)
	IncludePatterns   []string `toml:"include_patterns" yaml:"include_patterns"`     // Regex patterns of which at least one must match
	ExcludePatterns   []string `toml:"exclude_patterns" yaml:"exclude_patterns"`     // Regex patterns to exclude
	RequireFields     []string `toml:"require_fields" yaml:"require_fields"`         // Event fields that must be non-empty, e.g. ["when"]
	RequireParagraphs bool     `toml:"require_paragraphs" yaml:"require_paragraphs"` // Description must have multiple lines
}

// Read decodes the config at path on top of the defaults. Files ending in
// .yaml or .yml are decoded as YAML, anything else as TOML. Environment
// overrides are applied afterwards.
func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if isYAML(path) {
		err = yaml.Unmarshal(dat, &conf)
	} else {
		_, err = toml.Decode(string(dat), &conf)
	}
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	conf.ApplyEnv()
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	var blob []byte
	var err error
	if isYAML(cfgPath) {
		blob, err = yaml.Marshal(cfg)
	} else {
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		blob = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := path.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	return Config{
		TaskType:     "events",
		DatasetPath:  path.Join("data_collections", "runningCSV.csv"),
		StatePath:    state.DefaultPath(),
		FetchTimeout: 30 * time.Second,
		UserAgent:    "campusfeed/1.0",
		SubType:      "campus",
		Parser:       parser.DefaultOptions(),
		Filters:      map[string]Filter{},
		Log:          Log{Level: "info", Format: "auto"},
	}
}

// ApplyEnv overrides config values with non-empty environment variables.
// The feed URL variable depends on the task type.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvTaskType); v != "" {
		c.TaskType = v
	}
	if v := os.Getenv(c.feedURLEnv()); v != "" {
		c.FeedURL = v
	}
	if v := os.Getenv(EnvDatasetPath); v != "" {
		c.DatasetPath = v
	}
	if v, ok := os.LookupEnv(EnvStatePath); ok {
		c.StatePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate reports every problem that would make a run fail later
func (c Config) Validate() error {
	var errs []error
	if _, err := event.ParseKind(c.TaskType); err != nil {
		errs = append(errs, fmt.Errorf("task_type is invalid: %w", err))
	}
	if c.FeedURL == "" {
		errs = append(errs, fmt.Errorf("feed_url is empty, set it in the config or via %s", c.feedURLEnv()))
	} else if u, err := url.Parse(c.FeedURL); err != nil {
		errs = append(errs, fmt.Errorf("feed_url is invalid: %w", err))
	} else if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
		errs = append(errs, fmt.Errorf("feed_url scheme '%s' is not supported", u.Scheme))
	}
	if c.DatasetPath == "" {
		errs = append(errs, errors.New("dataset_path is empty"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout))
	}
	if _, err := dedup.New(c.DedupFields()); err != nil {
		errs = append(errs, fmt.Errorf("dedup_key is invalid: %w", err))
	}
	if _, err := parser.New(c.Parser); err != nil {
		errs = append(errs, fmt.Errorf("parser options are invalid: %w", err))
	}
	for name, f := range c.Filters {
		for _, field := range f.RequireFields {
			if !event.IsKnown(field) {
				errs = append(errs, fmt.Errorf("filter '%s' requires unknown field '%s'", name, field))
			}
		}
	}
	for _, name := range c.FilterNames {
		if _, ok := c.Filters[name]; !ok {
			errs = append(errs, fmt.Errorf("filter '%s' is applied but not defined", name))
		}
	}
	return errors.Join(errs...)
}

// Kind returns the row kind selected by TaskType
func (c Config) Kind() (event.Kind, error) {
	return event.ParseKind(c.TaskType)
}

// DedupFields returns the configured dedup key or the default one of the
// task type
func (c Config) DedupFields() []string {
	if len(c.DedupKey) > 0 {
		return c.DedupKey
	}
	kind, err := c.Kind()
	if err != nil {
		return dedup.DefaultKey
	}
	return dedup.KeyFor(kind)
}

func (c Config) feedURLEnv() string {
	kind, _ := c.Kind()
	switch kind {
	case event.KindInternship:
		return EnvInternshipsURL
	case event.KindJob:
		return EnvJobsURL
	}
	return EnvFeedURL
}

func DefaultPath() string {
	var xdgHome = os.Getenv("XDG_CONFIG_HOME")
	if xdgHome != "" {
		return path.Join(xdgHome, baseCfgPath)
	}

	var home = os.Getenv("HOME")
	if home != "" {
		return path.Join(home, ".config", baseCfgPath)
	}

	panic("unclear where to search for the config fie")
}

func isYAML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

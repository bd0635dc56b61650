package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/pelletier/go-toml/v2"

	_ "embed"
)

const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	BackendSQLite = "sqlite"
	BackendBadger = "badger"

	MinConcurrency = 1
	MaxConcurrency = 3

	appName = "spacedl"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	General  General  `json:"general" yaml:"general"`
	Download Download `json:"download" yaml:"download"`
	Advanced Advanced `json:"advanced" yaml:"advanced"`
	Log      Log      `json:"log" yaml:"log"`
	History  History  `json:"history" yaml:"history"`
}

type General struct {
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Download holds the per-job defaults captured at admission.
type Download struct {
	Format      AudioFormat `json:"format" yaml:"format"`
	MaxRetries  int         `json:"max_retries" yaml:"max_retries"`
	Timeout     int         `json:"timeout" yaml:"timeout"` // seconds, 0 = unlimited
	Concurrency int         `json:"concurrency" yaml:"concurrency"`
}

type Advanced struct {
	YtDlpPath  string   `json:"yt_dlp_path" yaml:"yt_dlp_path"`
	FFmpegPath string   `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	CookieFile string   `json:"cookie_file" yaml:"cookie_file"`
	ExtraArgs  []string `json:"extra_args" yaml:"extra_args"`
}

type Log struct {
	Level  string `json:"level" yaml:"level"`   // "error"|"warn"|"info"|"debug"
	Output string `json:"output" yaml:"output"` // "stderr"|"stdout"|"discard"|path
}

// History selects the durable job record backend.
type History struct {
	Backend   string `json:"backend" yaml:"backend"`
	Path      string `json:"path" yaml:"path"`
	Retention string `json:"retention" yaml:"retention"` // e.g. 30d, 12h30m
	Prune     string `json:"prune" yaml:"prune"`         // cron expression or macro
}

// EffectiveConcurrency is the permit pool capacity for c.
func (c Config) EffectiveConcurrency() int {
	return min(max(c.Download.Concurrency, MinConcurrency), MaxConcurrency)
}

// DownloadTimeout returns zero when no limit is configured.
func (c Config) DownloadTimeout() time.Duration {
	if c.Download.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Download.Timeout) * time.Second
}

// Clone returns a deep copy safe to hand to a running job.
func (c Config) Clone() Config {
	c.Advanced.ExtraArgs = append([]string(nil), c.Advanced.ExtraArgs...)
	return c
}

// ResolvePaths fills the output directory and the history location when
// they were left empty.
func (c *Config) ResolvePaths() {
	c.General.OutputDir = ExpandPath(c.General.OutputDir)
	c.Advanced.YtDlpPath = ExpandPath(c.Advanced.YtDlpPath)
	c.Advanced.FFmpegPath = ExpandPath(c.Advanced.FFmpegPath)
	c.Advanced.CookieFile = ExpandPath(c.Advanced.CookieFile)
	c.History.Path = ExpandPath(c.History.Path)

	if c.General.OutputDir == "" {
		c.General.OutputDir = DefaultDownloadDir()
	}
	if c.History.Path == "" {
		name := "history.db"
		if c.History.Backend == BackendBadger {
			name = "history.badger"
		}
		c.History.Path = filepath.Join(DataDir(), name)
	}
}

// Validate checks c against the schema, e.g. after environment or flag
// overrides were applied to a loaded configuration.
func (c Config) Validate() error {
	if c.Advanced.ExtraArgs == nil {
		c.Advanced.ExtraArgs = []string{}
	}
	_, err := decode(cueCtx.Encode(c))
	return err
}

// DefaultConfig returns the schema defaults.
func DefaultConfig() Config {
	cfg, err := LoadConfig(strings.NewReader("version: 0\n"))
	if err != nil {
		panic(err)
	}
	return *cfg
}

// LoadConfigFile loads YAML or, for a .toml extension, TOML.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return LoadConfigTOML(f)
	}
	return LoadConfig(f)
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	return decode(cueCtx.BuildFile(yamlFile))
}

// LoadConfigTOML is LoadConfig for TOML documents.
func LoadConfigTOML(r io.Reader) (*Config, error) {
	var doc map[string]any
	if err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing toml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("parsing toml: empty document")
	}
	return decode(cueCtx.Encode(doc))
}

func decode(value cue.Value) (*Config, error) {
	if value.Err() != nil {
		return nil, value.Err()
	}
	unified := schema.Unify(value)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	if out.Version != 0 {
		return nil, fmt.Errorf("%w: %d", ErrVersion, out.Version)
	}
	return &out, nil
}

// DefaultDownloadDir is ~/Downloads when it exists, the working
// directory otherwise.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, "Downloads")
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir
		}
	}
	return "."
}

// DataDir is where history and bundled binaries live.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, ".local", "share", appName)
}

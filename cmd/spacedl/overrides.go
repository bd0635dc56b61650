package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/space-downloader/spacedl/internal/model"
)

// flag name -> configuration key
var flagKeys = map[string]string{
	"format":      "download.format",
	"output-dir":  "general.output_dir",
	"cookies":     "advanced.cookie_file",
	"concurrency": "download.concurrency",
	"retries":     "download.max_retries",
	"timeout":     "download.timeout",
}

// newViper binds SPACEDL_<SECTION>_<KEY> environment variables and the
// flags of cmd that override configuration keys.
func newViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SPACEDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if cmd == nil {
		return v
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
	return v
}

type setter func(cfg *model.Config, value string) error

func str(field func(*model.Config) *string) setter {
	return func(cfg *model.Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func num(field func(*model.Config) *int) setter {
	return func(cfg *model.Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

var overrides = []struct {
	key string
	set setter
}{
	{"general.output_dir", str(func(c *model.Config) *string { return &c.General.OutputDir })},
	{"download.format", func(cfg *model.Config, value string) error {
		f, err := model.ParseAudioFormat(value)
		if err != nil {
			return err
		}
		cfg.Download.Format = f
		return nil
	}},
	{"download.max_retries", num(func(c *model.Config) *int { return &c.Download.MaxRetries })},
	{"download.timeout", num(func(c *model.Config) *int { return &c.Download.Timeout })},
	{"download.concurrency", num(func(c *model.Config) *int { return &c.Download.Concurrency })},
	{"advanced.yt_dlp_path", str(func(c *model.Config) *string { return &c.Advanced.YtDlpPath })},
	{"advanced.ffmpeg_path", str(func(c *model.Config) *string { return &c.Advanced.FFmpegPath })},
	{"advanced.cookie_file", str(func(c *model.Config) *string { return &c.Advanced.CookieFile })},
	{"log.level", str(func(c *model.Config) *string { return &c.Log.Level })},
	{"log.output", str(func(c *model.Config) *string { return &c.Log.Output })},
	{"history.backend", str(func(c *model.Config) *string { return &c.History.Backend })},
	{"history.path", str(func(c *model.Config) *string { return &c.History.Path })},
	{"history.retention", str(func(c *model.Config) *string { return &c.History.Retention })},
	{"history.prune", str(func(c *model.Config) *string { return &c.History.Prune })},
}

// applyOverrides copies every key set in the environment or on the
// command line into cfg. Flags win over the environment.
func applyOverrides(v *viper.Viper, cfg *model.Config) error {
	for _, o := range overrides {
		if !v.IsSet(o.key) {
			continue
		}
		if err := o.set(cfg, v.GetString(o.key)); err != nil {
			return fmt.Errorf("overriding %s: %w", o.key, err)
		}
	}
	return nil
}

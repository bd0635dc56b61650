package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/space-downloader/spacedl/internal/log"
	"github.com/space-downloader/spacedl/internal/model"
)

var (
	userConfigPath string // /default/config/path/spacedl on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logCloser      io.Closer

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "spacedl")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is spacedl.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initSpacedl
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	}

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("spacedl failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "spacedl",
	Short:        "Audio downloader driving yt-dlp",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a spacedl",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("spacedl: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:  %s\n", configPath)
		}
		fmt.Printf("spacedl: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:   %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initSpacedl(cmd *cobra.Command, _ []string) error {
	// a missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	if envConfig, ok := os.LookupEnv("SPACEDLCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		configPath = findConfig(userConfigPath, ".")
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "spacedl.yaml")
		if err := writeDefault(configPath, config); err != nil {
			return err
		}
	} else {
		loaded, err := model.LoadConfigFile(configPath)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid configuration", "detail", d)
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		config = *loaded
	}

	if err := applyOverrides(newViper(cmd), &config); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid override", "detail", d)
		}
		return fmt.Errorf("validating config: %w", err)
	}
	config.ResolvePaths()

	// initialize logging
	logger, closer, err := log.New(log.Settings{
		Level:   config.Log.Level,
		Output:  config.Log.Output,
		Verbose: flagVerbose,
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	slog.SetDefault(logger)
	logCloser = closer

	slog.Debug("spacedl run", "configPath", configPath)
	slog.Debug("spacedl run", "config", config)
	return nil
}

func findConfig(dirs ...string) string {
	for _, d := range dirs {
		for _, name := range []string{"spacedl.yaml", "spacedl.yml", "spacedl.toml"} {
			path := filepath.Join(d, name)
			if exists(path) {
				return path
			}
		}
	}
	return ""
}

func writeDefault(path string, cfg model.Config) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return enc.Close()
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

package internal

import (
	"fmt"
	"path/filepath"

	"github.com/fjmorton/trackforge/internal/api"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const trackforgeUserDirSuffix = "trackforge"

// TrackforgeConfig is the struct used to contain the various user config
// supplied by file, environment, or manually inside the code.
type TrackforgeConfig struct {
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Tools       ToolConfig        `yaml:"tools"`
	OutputPath  string            `yaml:"output_dir" env:"OUTPUT_DIR"`
	WorkingDir  string            `yaml:"working_dir" env:"WORKING_DIR"`
	RestConfig  api.RestConfig    `yaml:"api"`
}

// ConcurrencyConfig is the subset of the configuration that focuses only on
// the concurrency related configs: how many runs may be processed at once,
// how many tracks of one run may be processed in parallel, and a global cap
// on simultaneous external tool processes.
type ConcurrencyConfig struct {
	RunWorkers       int   `yaml:"run_workers" env:"CONCURRENCY_RUN_WORKERS" env-default:"2"`
	TrackThreads     int   `yaml:"track_threads" env:"CONCURRENCY_TRACK_THREADS" env-default:"2"`
	MaxToolProcesses int64 `yaml:"max_tool_processes" env:"CONCURRENCY_MAX_TOOL_PROCESSES" env-default:"4"`
}

// ToolConfig holds the binary paths for the external tools the pipeline
// shells out to. The bare binary names resolve via PATH by default.
type ToolConfig struct {
	YtdlpBinPath   string `yaml:"ytdlp" env:"YTDLP_BIN" env-default:"yt-dlp"`
	Mp3gainBinPath string `yaml:"mp3gain" env:"MP3GAIN_BIN" env-default:"mp3gain"`
	FfmpegBinPath  string `yaml:"ffmpeg" env:"FFMPEG_BIN" env-default:"ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe" env:"FFPROBE_BIN" env-default:"ffprobe"`
}

// LoadFromFile loads a configuration file formatted in YAML in to a
// TrackforgeConfig struct, with environment variables taking precedence.
func (config *TrackforgeConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from '%s': %w", configPath, err)
	}

	return nil
}

// LoadFromEnv populates the config purely from environment variables and
// defaults; used when the user supplies no config file.
func (config *TrackforgeConfig) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return nil
}

// getOutputDir returns the caller-facing directory that finished outputs are
// placed in. It will first look in the config for a value; if none is found a
// default under the users home directory is derived. If the default cannot be
// derived due to an error, a panic will occur.
func (config *TrackforgeConfig) getOutputDir() string {
	if config.OutputPath != "" {
		return config.OutputPath
	}

	home, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user home dir: %s", err))
	}

	return filepath.Join(home, trackforgeUserDirSuffix, "output")
}

// getWorkingDir returns the scratch directory that per-run working
// directories are created under, deriving a home directory default when the
// config does not name one.
func (config *TrackforgeConfig) getWorkingDir() string {
	if config.WorkingDir != "" {
		return config.WorkingDir
	}

	home, err := homedir.Dir()
	if err != nil {
		panic(fmt.Sprintf("FAILURE to derive user home dir: %s", err))
	}

	return filepath.Join(home, trackforgeUserDirSuffix, "work")
}

package config

import (
	"runtime"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/e2immu/e2build/pkg/aggregate"
)

// DefaultFile is read from the working directory if it exists
const DefaultFile = "buildsys.toml"

// Config describes all configuration options
type Config struct {
	Script string `default:"tasks.star" usage:"File name of the build scripts"`
	Debug  bool   `default:"false" usage:"Print all log fields and full error traces"`
	Log    struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Scheduler struct {
		Parallelism int  `default:"1" usage:"Number of included builds to run at once (0 uses one per CPU)"`
		Continue    bool `default:"false" usage:"Keep running the remaining builds after a failure"`
	}
	Cache struct {
		Enabled bool   `default:"true" usage:"Cache the configuration of included builds"`
		Dir     string `default:".buildsys" usage:"Cache directory, relative to the root script"`
	}
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Flags are handled by the CLI, so the loader only reads the given files (DefaultFile if
// none are passed) and BUILDSYS_* environment variables.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "BUILDSYS",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if cfg.Script == "" {
		return eris.New("Invalid value for script: can't be empty")
	}

	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf("Invalid value for log.level: %s", cfg.Log.Level)
	}

	if cfg.Scheduler.Parallelism < 0 {
		return eris.Errorf("Invalid value for scheduler.parallelism: %d (must be 0 or more)", cfg.Scheduler.Parallelism)
	}

	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		return eris.New("Invalid value for cache.dir: can't be empty while the cache is enabled")
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// CacheDir returns the configured cache directory or "" if caching is disabled
func (cfg *Config) CacheDir() string {
	if !cfg.Cache.Enabled {
		return ""
	}
	return cfg.Cache.Dir
}

// SchedulerPolicy converts the .Scheduler fields into the policy composites run with
func (cfg *Config) SchedulerPolicy() aggregate.Scheduler {
	parallelism := cfg.Scheduler.Parallelism
	if parallelism == 0 {
		parallelism = runtime.NumCPU()
	}

	return aggregate.Scheduler{
		Parallelism: parallelism,
		Continue:    cfg.Scheduler.Continue,
	}
}

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/recorder"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys use a double underscore: FLASHSTUDY_SCHEDULER__CORRECT_STEP.
const EnvPrefix = "FLASHSTUDY_"

// Config is the application configuration.
type Config struct {
	DB       string `koanf:"db" validate:"required"`
	Listen   string `koanf:"listen" validate:"required"`
	ReposDir string `koanf:"repos_dir" validate:"required"`
	// SessionTTL is how long an untouched study session is kept.
	SessionTTL time.Duration   `koanf:"session_ttl" validate:"gt=0"`
	Log        LogConfig       `koanf:"log"`
	Scheduler  SchedulerConfig `koanf:"scheduler"`
	Recorder   RecorderConfig  `koanf:"recorder"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// SchedulerConfig holds the difficulty model parameters.
type SchedulerConfig struct {
	CorrectStep    float64       `koanf:"correct_step" validate:"gt=0,lte=3.7"`
	IncorrectStep  float64       `koanf:"incorrect_step" validate:"gt=0,lte=3.7"`
	RelearnDelay   time.Duration `koanf:"relearn_delay" validate:"gt=0"`
	FirstInterval  time.Duration `koanf:"first_interval" validate:"gt=0"`
	SecondInterval time.Duration `koanf:"second_interval" validate:"gtefield=FirstInterval"`
	MaxInterval    time.Duration `koanf:"max_interval" validate:"gtefield=SecondInterval"`
}

// RecorderConfig sizes the background review writer.
type RecorderConfig struct {
	Workers        int           `koanf:"workers" validate:"min=1,max=64"`
	QueueSize      int           `koanf:"queue_size" validate:"min=1"`
	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1,max=20"`
	InitialBackoff time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `koanf:"max_backoff" validate:"gtefield=InitialBackoff"`
}

// Params converts the scheduler section for the difficulty model.
func (c SchedulerConfig) Params() difficulty.Params {
	return difficulty.Params{
		CorrectStep:    c.CorrectStep,
		IncorrectStep:  c.IncorrectStep,
		RelearnDelay:   c.RelearnDelay,
		FirstInterval:  c.FirstInterval,
		SecondInterval: c.SecondInterval,
		MaxInterval:    c.MaxInterval,
	}
}

// Config converts the recorder section for the review writer.
func (c RecorderConfig) Config() recorder.Config {
	return recorder.Config{
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db":                        "db",
	"listen":                    "listen",
	"repos-dir":                 "repos_dir",
	"session-ttl":               "session_ttl",
	"log-level":                 "log.level",
	"scheduler-correct-step":    "scheduler.correct_step",
	"scheduler-incorrect-step":  "scheduler.incorrect_step",
	"scheduler-relearn-delay":   "scheduler.relearn_delay",
	"scheduler-first-interval":  "scheduler.first_interval",
	"scheduler-second-interval": "scheduler.second_interval",
	"scheduler-max-interval":    "scheduler.max_interval",
	"recorder-workers":          "recorder.workers",
	"recorder-queue-size":       "recorder.queue_size",
	"recorder-max-attempts":     "recorder.max_attempts",
	"recorder-initial-backoff":  "recorder.initial_backoff",
	"recorder-max-backoff":      "recorder.max_backoff",
}

// RegisterFlags defines every configuration flag on fs. Flag defaults are the
// configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := difficulty.DefaultParams()
	r := recorder.DefaultConfig()

	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", "flashstudy.db", "Path to the SQLite database file")
	fs.String("listen", ":8080", "Address for the HTTP server")
	fs.String("repos-dir", "repos", "Directory git sources are cloned into")
	fs.Duration("session-ttl", 12*time.Hour, "Evict study sessions untouched for this long")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")

	fs.Float64("scheduler-correct-step", d.CorrectStep, "Difficulty added on a correct answer")
	fs.Float64("scheduler-incorrect-step", d.IncorrectStep, "Difficulty removed on an incorrect answer")
	fs.Duration("scheduler-relearn-delay", d.RelearnDelay, "Delay before a missed card is due again")
	fs.Duration("scheduler-first-interval", d.FirstInterval, "Interval after the first correct answer")
	fs.Duration("scheduler-second-interval", d.SecondInterval, "Interval after the second correct answer")
	fs.Duration("scheduler-max-interval", d.MaxInterval, "Longest interval between reviews")

	fs.Int("recorder-workers", r.Workers, "Goroutines writing reviews")
	fs.Int("recorder-queue-size", r.QueueSize, "Reviews buffered before new ones are dropped")
	fs.Int("recorder-max-attempts", r.MaxAttempts, "Attempts per review before giving up")
	fs.Duration("recorder-initial-backoff", r.InitialBackoff, "First retry delay")
	fs.Duration("recorder-max-backoff", r.MaxBackoff, "Longest retry delay")
}

// Load builds the configuration from, in increasing precedence, the flag
// defaults, the YAML file named by --config, FLASHSTUDY_ environment variables
// and flags set on the command line.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns FLASHSTUDY_SCHEDULER__CORRECT_STEP into scheduler.correct_step.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger returns a text logger on stderr at the configured level.
func (c LogConfig) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

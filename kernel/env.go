package kernel

import (
	"os"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
)

var Env = DefaultEnv()

type EnvConfig struct {
	LogPath     string `yaml:"log_path"` //如果为空，则不会输出到文件
	WriteLogStd bool   `yaml:"write_log_std"`
	LogLevel    string `yaml:"log_level"`

	TickMS             int64 `yaml:"tick_ms"`
	DeleteTicks        int32 `yaml:"delete_ticks"`
	SnapshotHistory    int   `yaml:"snapshot_history"`
	SnapshotIntervalMS int64 `yaml:"snapshot_interval_ms"`
	UpdatePoolSize     int   `yaml:"update_pool_size"`

	QuantizeRotations bool   `yaml:"quantize_rotations"`
	DecimalPrecision  int    `yaml:"decimal_precision"`
	StringEncoding    string `yaml:"string_encoding"`

	Gate        GateEnv  `yaml:"gate"`
	MetricsAddr string   `yaml:"metrics_addr"`
	ConsoleAddr string   `yaml:"console_addr"` //为空不开启远程控制台
	MySQL       MySQLEnv `yaml:"mysql"`
}

type GateEnv struct {
	Addr    string `yaml:"addr"`
	UseNbio bool   `yaml:"use_nbio"`
	Head    int    `yaml:"head"`
	MaxRead int    `yaml:"max_read"` // 单帧上限，0取默认1M
}

type MySQLEnv struct {
	DSN               string `yaml:"dsn"`
	ConnNum           int    `yaml:"conn_num"`
	PersistIntervalMS int64  `yaml:"persist_interval_ms"`
}

func DefaultEnv() *EnvConfig {
	return &EnvConfig{
		WriteLogStd:        true,
		LogLevel:           "error",
		TickMS:             50,
		DeleteTicks:        3,
		SnapshotHistory:    32,
		SnapshotIntervalMS: 100,
		UpdatePoolSize:     1024,
		QuantizeRotations:  true,
		DecimalPrecision:   4,
		StringEncoding:     "utf-8",
		Gate:               GateEnv{Addr: "0.0.0.0:7400", Head: 2},
		ConsoleAddr:        "127.0.0.1:7401",
		MySQL:              MySQLEnv{ConnNum: 4, PersistIntervalMS: 5000},
	}
}

// LoadEnv reads a yaml file over the defaults and makes it the process Env
func LoadEnv(path string) (*EnvConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read env file")
	}
	cfg := DefaultEnv()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse env file")
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	Apply(cfg)
	return cfg, nil
}

// Apply installs cfg as Env and rebuilds the logger from it
func Apply(cfg *EnvConfig) {
	Env = cfg
	switch cfg.LogLevel {
	case "debug":
		SetLogLevel(LogLevelDebug)
	default:
		SetLogLevel(LogLevelError)
	}
	resetLogger()
}

func (e *EnvConfig) Validate() error {
	if e.TickMS <= 0 || Millisecond%e.TickMS != 0 {
		return errors.Errorf("tick_ms must divide 1000, got %d", e.TickMS)
	}
	if e.DeleteTicks < 1 {
		return errors.Errorf("delete_ticks must be positive, got %d", e.DeleteTicks)
	}
	if e.SnapshotHistory < 1 {
		return errors.Errorf("snapshot_history must be positive, got %d", e.SnapshotHistory)
	}
	if e.DecimalPrecision < 0 || e.DecimalPrecision > 9 {
		return errors.Errorf("decimal_precision out of range(0-9): %d", e.DecimalPrecision)
	}
	if e.UpdatePoolSize < 1 {
		return errors.Errorf("update_pool_size must be positive, got %d", e.UpdatePoolSize)
	}
	if e.Gate.Head != 2 && e.Gate.Head != 4 {
		return errors.Errorf("not support gate head = %d", e.Gate.Head)
	}
	switch e.LogLevel {
	case "", "debug", "error":
	default:
		return errors.Errorf("unknown log_level %q", e.LogLevel)
	}
	return nil
}

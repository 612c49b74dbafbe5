package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"MetaGate/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Data struct {
		Source string `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
		CSV    struct {
			Signals string `yaml:"signals" default:"data/trade_log.csv"`
			Prices  string `yaml:"prices" default:"data/price_data.csv"`
			Metrics string `yaml:"metrics" default:"data/glassnode_metrics.csv"`
		} `yaml:"csv"`
		Tables struct {
			Signals string `yaml:"signals" default:"metagate.signals"`
			Prices  string `yaml:"prices" default:"metagate.prices"`
			Metrics string `yaml:"metrics" default:"metagate.onchain_metrics"`
		} `yaml:"tables"`
	} `yaml:"data"`
	Features struct {
		ReturnWindows   []int    `yaml:"return_windows" default:"[1,8,56,224]"`
		VolWindows      []int    `yaml:"vol_windows" default:"[56,224]"`
		MAWindows       []int    `yaml:"ma_windows" default:"[56,224,672]"`
		RSIWindow       int      `yaml:"rsi_window" default:"112" validate:"gte=2"`
		BBWindow        int      `yaml:"bb_window" default:"160" validate:"gte=2"`
		BBStd           float64  `yaml:"bb_std" default:"2" validate:"gt=0"`
		MomentumWindows []int    `yaml:"momentum_windows" default:"[8,56,224]"`
		IncludeSignal   bool     `yaml:"include_signal" default:"true"`
		Metrics         []string `yaml:"metrics"`
	} `yaml:"features"`
	Labels struct {
		Kind      string  `yaml:"kind" default:"forward" validate:"oneof=forward cost_adjusted risk_adjusted"`
		Horizon   int     `yaml:"horizon" default:"8" validate:"gte=1"`
		Threshold float64 `yaml:"threshold"`
		EntryCost float64 `yaml:"entry_cost" default:"0.001" validate:"gte=0"`
		ExitCost  float64 `yaml:"exit_cost" default:"0.001" validate:"gte=0"`
		VolWindow int     `yaml:"vol_window" default:"56" validate:"gte=2"`
	} `yaml:"labels"`
	WalkForward struct {
		Train     int  `yaml:"train" default:"2920" validate:"gte=1"`
		Test      int  `yaml:"test" default:"730" validate:"gte=1"`
		Step      int  `yaml:"step" validate:"gte=0"`
		Embargo   int  `yaml:"embargo" validate:"gte=0"`
		Expanding bool `yaml:"expanding"`
	} `yaml:"walkforward"`
	Model struct {
		Classifiers  []string  `yaml:"classifiers" default:"[\"logistic\",\"naive_bayes\"]" validate:"min=1"`
		Fallback     string    `yaml:"fallback" default:"logistic"`
		Thresholds   []float64 `yaml:"thresholds" default:"[0.5,0.55,0.6]" validate:"min=1,dive,gte=0,lte=1"`
		LearningRate float64   `yaml:"learning_rate" default:"0.1" validate:"gt=0"`
		Epochs       int       `yaml:"epochs" default:"300" validate:"gte=1"`
		L2           float64   `yaml:"l2" default:"0.001" validate:"gte=0"`
		Remote       struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout" default:"30s"`
			Models  []string      `yaml:"models" default:"[\"xgboost\",\"lightgbm\"]"`
			Retries int           `yaml:"retries" default:"2" validate:"gte=0"`
		} `yaml:"remote"`
	} `yaml:"model"`
	Regime struct {
		Enabled   bool     `yaml:"enabled" default:"true"`
		Asset     string   `yaml:"asset" default:"BTC"`
		States    int      `yaml:"states" default:"3" validate:"gte=2,lte=8"`
		Allowed   []string `yaml:"allowed" default:"[\"bull\",\"sideways\"]"`
		Decode    string   `yaml:"decode" default:"filter" validate:"oneof=filter viterbi"`
		VolWindow int      `yaml:"vol_window" default:"56" validate:"gte=2"`
		MaxIter   int      `yaml:"max_iter" default:"100" validate:"gte=1"`
		Tolerance float64  `yaml:"tolerance" default:"0.0001" validate:"gt=0"`
	} `yaml:"regime"`
	Backtest struct {
		TransactionCost float64 `yaml:"transaction_cost" default:"0.001" validate:"gte=0"`
		PeriodsPerYear  int     `yaml:"periods_per_year" default:"2920" validate:"gte=1"`
	} `yaml:"backtest"`
	Storage struct {
		SQLitePath       string `yaml:"sqlite_path" default:"metagate.db"`
		ClickHouseSignal bool   `yaml:"clickhouse_signals"`
		SignalsTable     string `yaml:"signals_table" default:"metagate.gated_signals"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"metagate"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		SignalsTopic  string   `yaml:"signals_topic" default:"metagate.gated_signals"`
		RequestsTopic string   `yaml:"requests_topic" default:"metagate.run_requests"`
		Compression   string   `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		Producer      struct {
			BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"100ms"`
			MaxAttempts  int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"metagate"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			RetryMax   int           `yaml:"retry_max" default:"3" validate:"gte=0"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl" default:"24h"`
	} `yaml:"redis"`
	Schedule struct {
		Cron    string        `yaml:"cron"`
		Timeout time.Duration `yaml:"timeout" default:"1h"`
	} `yaml:"schedule"`
}

var validate = validator.New()

// Default returns a config populated only with struct-tag defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Values missing from the file
// keep their struct-tag defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("METAGATE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.WalkForward.Step != 0 && c.WalkForward.Step < c.WalkForward.Test {
		return fmt.Errorf("walkforward.step (%d) must be >= walkforward.test (%d)", c.WalkForward.Step, c.WalkForward.Test)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Regime.Enabled && len(c.Regime.Allowed) == 0 {
		return fmt.Errorf("regime.allowed cannot be empty when regime filter is enabled")
	}
	if c.Storage.ClickHouseSignal && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for clickhouse_signals")
	}
	return nil
}

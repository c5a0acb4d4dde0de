package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"QuantWatch/internal/service/alerting"
	"QuantWatch/internal/service/rules"
	"QuantWatch/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required,oneof=development staging production"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Monitor     MonitorConfig    `yaml:"monitor"`
	Source      SourceConfig     `yaml:"source"`
	Snapshot    SnapshotConfig   `yaml:"snapshot"`
	Redis       RedisConfig      `yaml:"redis"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	WebSocket   WebSocketConfig  `yaml:"websocket"`
	Notify      NotifyConfig     `yaml:"notify"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format" default:"2006-01-02T15:04:05.000Z07:00"`
	// Ship aggregates warn/error lines and publishes them to Kafka.
	Ship struct {
		Enabled   bool          `yaml:"enabled"`
		Topic     string        `yaml:"topic" default:"quantwatch.logs"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		MaxUnique int           `yaml:"max_unique" default:"100" validate:"gte=1"`
	} `yaml:"ship"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

// SymbolsConfig lists the startup watch list per market class.
type SymbolsConfig struct {
	Stock  []string `yaml:"stock" default:"[\"AAPL\",\"MSFT\",\"GOOGL\",\"AMZN\",\"TSLA\",\"NVDA\",\"META\"]"`
	Crypto []string `yaml:"crypto" default:"[\"BTC/USDT\",\"ETH/USDT\",\"BNB/USDT\",\"SOL/USDT\",\"XRP/USDT\"]"`
	Index  []string `yaml:"index" default:"[\"^GSPC\",\"^IXIC\",\"^DJI\"]"`
}

// All returns every symbol as "class:code".
func (s SymbolsConfig) All() []string {
	out := make([]string, 0, len(s.Stock)+len(s.Crypto)+len(s.Index))
	for _, c := range s.Stock {
		out = append(out, "stock:"+c)
	}
	for _, c := range s.Crypto {
		out = append(out, "crypto:"+c)
	}
	for _, c := range s.Index {
		out = append(out, "index:"+c)
	}
	return out
}

type TierConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Period   time.Duration `yaml:"period"`
	Capacity int           `yaml:"capacity"`
}

type TiersConfig struct {
	Realtime TierConfig `yaml:"realtime"`
	Minute   TierConfig `yaml:"minute"`
	Hour     TierConfig `yaml:"hour"`
	Day      TierConfig `yaml:"day"`
}

// ByName returns the tiers keyed by tier name.
func (t TiersConfig) ByName() map[string]TierConfig {
	return map[string]TierConfig{
		"realtime": t.Realtime,
		"minute":   t.Minute,
		"hour":     t.Hour,
		"day":      t.Day,
	}
}

func defaultTiers() TiersConfig {
	return TiersConfig{
		Realtime: TierConfig{Enabled: true, Period: 5 * time.Second, Capacity: 1000},
		Minute:   TierConfig{Enabled: true, Period: time.Minute, Capacity: 1000},
		Hour:     TierConfig{Enabled: true, Period: time.Hour, Capacity: 500},
		Day:      TierConfig{Enabled: true, Period: 24 * time.Hour, Capacity: 365},
	}
}

type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"1s" validate:"gt=0"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"30s" validate:"gt=0"`
	Jitter     float64       `yaml:"jitter" default:"0.2" validate:"gte=0,lte=1"`
}

type AlertsConfig struct {
	Cooldown     time.Duration `yaml:"cooldown" default:"60s" validate:"gte=0"`
	RecentSize   int           `yaml:"recent_size" default:"1000" validate:"gte=1"`
	ActiveWindow time.Duration `yaml:"active_window" default:"15m" validate:"gt=0"`
}

type BusConfig struct {
	QueueSize      int           `yaml:"queue_size" default:"256" validate:"gte=1"`
	DeliverTimeout time.Duration `yaml:"deliver_timeout" default:"5s"`
}

type MonitorConfig struct {
	AutoStart  bool                    `yaml:"auto_start" default:"true"`
	Symbols    SymbolsConfig           `yaml:"symbols"`
	Tiers      TiersConfig             `yaml:"tiers"`
	Workers    int                     `yaml:"workers" default:"10" validate:"gte=1,lte=256"`
	Fetch      FetchConfig             `yaml:"fetch"`
	Thresholds rules.Thresholds        `yaml:"thresholds"`
	Severity   alerting.SeverityPolicy `yaml:"severity"`
	Alerts     AlertsConfig            `yaml:"alerts"`
	Bus        BusConfig               `yaml:"bus"`
}

type SourceConfig struct {
	Type        string        `yaml:"type" default:"simulator" validate:"oneof=simulator live"`
	HTTPTimeout time.Duration `yaml:"http_timeout" default:"10s"`
	Finnhub     struct {
		APIKey       string        `yaml:"api_key"`
		BaseURL      string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
		Stream       bool          `yaml:"stream"`
		StreamURL    string        `yaml:"stream_url" default:"wss://ws.finnhub.io"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		Burst        float64       `yaml:"burst" default:"30" validate:"gt=0"`
		PerSecond    float64       `yaml:"per_second" default:"1" validate:"gt=0"`
	} `yaml:"finnhub"`
	Binance struct {
		BaseURL   string  `yaml:"base_url" default:"https://api.binance.com"`
		Burst     float64 `yaml:"burst" default:"20" validate:"gt=0"`
		PerSecond float64 `yaml:"per_second" default:"10" validate:"gt=0"`
	} `yaml:"binance"`
	Simulator struct {
		Seed        int64         `yaml:"seed"`
		FailureRate float64       `yaml:"failure_rate" validate:"gte=0,lte=1"`
		Latency     time.Duration `yaml:"latency"`
	} `yaml:"simulator"`
	// Cache shares one quote between tiers fetched within TTL.
	Cache struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		TTL     time.Duration `yaml:"ttl" default:"2s"`
	} `yaml:"cache"`
}

type SnapshotConfig struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	TTL     time.Duration `yaml:"ttl" default:"300s"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"6379" validate:"gt=0,lte=65535"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"gte=0"`
	PoolSize    int           `yaml:"pool_size" default:"20"`
	MinIdle     int           `yaml:"min_idle" default:"2"`
	PoolTimeout time.Duration `yaml:"pool_timeout" default:"4s"`
	Prefix      string        `yaml:"prefix" default:"quantwatch"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	AlertsTopic   string   `yaml:"alerts_topic" default:"quantwatch.alerts"`
	UpdatesTopic  string   `yaml:"updates_topic"`
	CommandsTopic string   `yaml:"commands_topic" default:"quantwatch.commands"`
	Producer      struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
		AutoCreate   bool          `yaml:"auto_create_topics" default:"true"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID     string        `yaml:"group_id" default:"quantwatch"`
		OffsetReset string        `yaml:"offset_reset" default:"latest" validate:"oneof=earliest latest"`
		Workers     int           `yaml:"workers" default:"2" validate:"gte=1"`
		BufferSize  int           `yaml:"buffer_size" default:"100"`
		RetryMax    int           `yaml:"retry_max" default:"3"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic    string        `yaml:"dlq_topic" default:"quantwatch.commands.dlq"`
		MaxBytes    int           `yaml:"max_message_bytes" default:"65536"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000" validate:"gt=0,lte=65535"`
	Database         string        `yaml:"database" default:"default"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	Table            string        `yaml:"table" default:"alerts"`
	TTLDays          int           `yaml:"ttl_days" default:"7" validate:"gte=1"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
}

type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" default:"true"`
	SummaryInterval time.Duration `yaml:"summary_interval" default:"30s"`
	SendBuffer      int           `yaml:"send_buffer" default:"64" validate:"gte=1"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// NotifyConfig drives the Redis-backed alert notification queue.
type NotifyConfig struct {
	Enabled     bool              `yaml:"enabled"`
	MinSeverity string            `yaml:"min_severity" default:"medium" validate:"oneof=high medium low"`
	WebhookURL  string            `yaml:"webhook_url" validate:"omitempty,url"`
	Headers     map[string]string `yaml:"headers"`
	Workers     int               `yaml:"workers" default:"2" validate:"gte=1"`
	RetryLimit  int               `yaml:"retry_limit" default:"5" validate:"gte=0"`
	RetryDelay  time.Duration     `yaml:"retry_delay" default:"2s"`
	RetryMax    time.Duration     `yaml:"retry_max" default:"1m"`
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.Monitor.Tiers = defaultTiers()
	return c, nil
}

func load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and validates a YAML configuration file over the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, overrides it with environment variables, then validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("QW_SYMBOLS"); v != "" {
		syms, err := parseSymbolList(v)
		if err != nil {
			return fmt.Errorf("QW_SYMBOLS: %w", err)
		}
		c.Monitor.Symbols = syms
	}
	if v := getenv("QW_SOURCE"); v != "" {
		c.Source.Type = v
	}
	if v := getenv("QW_WORKERS"); v != "" {
		c.Monitor.Workers = util.ParseIntDefault(v, c.Monitor.Workers)
	}
	if v := getenv("SERVER_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Source.Finnhub.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port := util.SplitHostPort(v, c.Redis.Port)
		c.Redis.Host, c.Redis.Port = host, port
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		host, port := util.SplitHostPort(v, c.ClickHouse.Port)
		c.ClickHouse.Host, c.ClickHouse.Port = host, port
		c.ClickHouse.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// parseSymbolList reads "stock:AAPL,crypto:BTC/USDT,MSFT"; a bare code is a stock.
func parseSymbolList(v string) (SymbolsConfig, error) {
	var s SymbolsConfig
	for _, item := range util.SplitList(v) {
		class, code, ok := strings.Cut(item, ":")
		if !ok {
			class, code = "stock", item
		}
		if code == "" {
			return s, fmt.Errorf("empty code in %q", item)
		}
		switch strings.ToLower(class) {
		case "stock":
			s.Stock = append(s.Stock, code)
		case "crypto":
			s.Crypto = append(s.Crypto, strings.ToUpper(code))
		case "index":
			s.Index = append(s.Index, code)
		default:
			return s, fmt.Errorf("unknown market class %q", class)
		}
	}
	return s, nil
}

var validate = validator.New()

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	th := c.Monitor.Thresholds
	if th.RSIOversold >= th.RSIOverbought {
		errs = append(errs, fmt.Errorf("monitor.thresholds: rsi_oversold (%v) must be below rsi_overbought (%v)", th.RSIOversold, th.RSIOverbought))
	}

	enabled := 0
	for name, t := range c.Monitor.Tiers.ByName() {
		if !t.Enabled {
			continue
		}
		enabled++
		if t.Period <= 0 {
			errs = append(errs, fmt.Errorf("monitor.tiers.%s.period must be positive", name))
		}
		// the longest indicator window is SMA(50)
		if t.Capacity < 50 {
			errs = append(errs, fmt.Errorf("monitor.tiers.%s.capacity must be at least 50, got %d", name, t.Capacity))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("monitor.tiers: at least one tier must be enabled"))
	}

	if c.Monitor.Fetch.BackoffMin > c.Monitor.Fetch.BackoffMax {
		errs = append(errs, errors.New("monitor.fetch: backoff_min must not exceed backoff_max"))
	}
	if c.Source.Type == "live" && c.Source.Finnhub.APIKey == "" && len(c.Monitor.Symbols.Stock)+len(c.Monitor.Symbols.Index) > 0 {
		errs = append(errs, errors.New("source.finnhub.api_key is required for stock and index symbols in live mode"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers cannot be empty when kafka is enabled"))
	}
	if c.Log.Ship.Enabled && !c.Kafka.Enabled {
		errs = append(errs, errors.New("log.ship requires kafka.enabled"))
	}
	if c.Notify.Enabled && !c.Redis.Enabled {
		errs = append(errs, errors.New("notify requires redis.enabled"))
	}
	return errors.Join(errs...)
}

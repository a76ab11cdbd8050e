// Package config настройки узла повторной инициализации.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirkon/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sirkon/repinit/internal/pagecache"
	"github.com/sirkon/repinit/internal/transport"
	"github.com/sirkon/repinit/internal/wire"
)

// Роли узла.
const (
	RoleProvider = "provider"
	RoleClient   = "client"
)

// Транспорты.
const (
	TransportUDP   = "udp"
	TransportRedis = "redis"
)

// Хранилища отметок о полученных страницах.
const (
	ReceiptsMemory = "memory"
	ReceiptsSQLite = "sqlite"
)

// Config настройки узла.
type Config struct {
	Home     string   `yaml:"home"`
	DataDirs []string `yaml:"data_dirs"`

	PeerID   uint32 `yaml:"peer_id"`
	Role     string `yaml:"role"`
	Provider uint32 `yaml:"provider"` // Ноль означает рассылку всем узлам.

	Transport   string            `yaml:"transport"`
	Listen      string            `yaml:"listen"`
	Peers       map[uint32]string `yaml:"peers"`
	RedisURL    string            `yaml:"redis_url"`
	RedisPrefix string            `yaml:"redis_prefix"`
	Workers     int               `yaml:"workers"`

	Receipts        string   `yaml:"receipts"`
	Bulk            bool     `yaml:"bulk"`
	BulkSize        int      `yaml:"bulk_size"`
	RequestGapMin   Duration `yaml:"request_gap_min"`
	RequestGapMax   Duration `yaml:"request_gap_max"`
	TickInterval    Duration `yaml:"tick_interval"`
	QueueBatchPages int      `yaml:"queue_batch_pages"`
	PageCachePages  int      `yaml:"page_cache_pages"`
	LogFileLimit    int64    `yaml:"log_file_limit"`

	LogLevel string `yaml:"log_level"`
}

// Duration time.Duration в виде строки "10ms".
type Duration struct {
	time.Duration
}

// UnmarshalYAML для реализации yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Wrap(err, "decode duration string")
	}
	if s == "" {
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrap(err, "parse duration").Str("duration", s)
	}

	d.Duration = v
	return nil
}

// MarshalYAML для реализации yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Defaults настройки по умолчанию.
func Defaults() *Config {
	return &Config{
		Role:            RoleClient,
		Transport:       TransportUDP,
		Listen:          "127.0.0.1:7070",
		RedisPrefix:     transport.DefaultRedisPrefix,
		Workers:         4,
		Receipts:        ReceiptsSQLite,
		Bulk:            true,
		BulkSize:        32 * 1024,
		RequestGapMin:   Duration{40 * time.Millisecond},
		RequestGapMax:   Duration{1280 * time.Millisecond},
		TickInterval:    Duration{20 * time.Millisecond},
		QueueBatchPages: 64,
		PageCachePages:  4096,
		LogFileLimit:    10 * 1024 * 1024,
		LogLevel:        "info",
	}
}

// Load чтение настроек из YAML файла поверх значений по умолчанию
// с подстановкой переменных окружения.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file").Str("path", path)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
		return nil, errors.Wrap(err, "decode config").Str("path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config").Str("path", path)
	}

	return cfg, nil
}

// Validate проверка согласованности настроек.
func (c *Config) Validate() error {
	if c.Home == "" {
		return errors.New("home directory is required")
	}
	for _, dir := range c.DataDirs {
		if !filepath.IsLocal(dir) {
			return errors.New("data directory must be relative to home and stay inside it").Str("data-dir", dir)
		}
	}

	switch c.Role {
	case RoleProvider, RoleClient:
	default:
		return errors.New("unknown role").Str("role", c.Role)
	}

	switch c.Transport {
	case TransportUDP:
		if c.Listen == "" {
			return errors.New("udp transport requires listen address")
		}
	case TransportRedis:
		if c.RedisURL == "" {
			return errors.New("redis transport requires redis url")
		}
	default:
		return errors.New("unknown transport").Str("transport", c.Transport)
	}

	switch c.Receipts {
	case ReceiptsMemory, ReceiptsSQLite:
	default:
		return errors.New("unknown receipts storage").Str("receipts", c.Receipts)
	}

	if transport.PeerID(c.PeerID) == transport.Broadcast || transport.PeerID(c.PeerID) == transport.Anywhere {
		return errors.New("reserved peer id").Uint32("peer-id", c.PeerID)
	}

	if c.RequestGapMin.Duration <= 0 {
		return errors.New("request gap must be positive").Str("request-gap-min", c.RequestGapMin.String())
	}
	if c.RequestGapMax.Duration < c.RequestGapMin.Duration {
		return errors.New("maximal request gap is less than minimal").
			Str("request-gap-min", c.RequestGapMin.String()).
			Str("request-gap-max", c.RequestGapMax.String())
	}
	if c.TickInterval.Duration <= 0 {
		return errors.New("tick interval must be positive").Str("tick-interval", c.TickInterval.String())
	}

	if c.Bulk {
		if c.BulkSize < pagecache.MinPageSize {
			return errors.New("bulk size is less than a page").
				Int("bulk-size", c.BulkSize).
				Int("page-size", pagecache.MinPageSize)
		}
		if c.Transport == TransportUDP && c.BulkSize > transport.MaxDatagramSize/2 {
			return errors.New("bulk does not fit into datagram").
				Int("bulk-size", c.BulkSize).
				Int("bulk-size-limit", transport.MaxDatagramSize/2)
		}
	}

	if c.QueueBatchPages < 0 {
		return errors.New("negative queue batch").Int("queue-batch-pages", c.QueueBatchPages)
	}
	if c.PageCachePages <= 0 {
		return errors.New("page cache must hold at least one page").Int("page-cache-pages", c.PageCachePages)
	}
	if c.Workers <= 0 {
		return errors.New("at least one worker is required").Int("workers", c.Workers)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// PageSizeLimit наибольший размер страницы, который способен передать
// выбранный транспорт.
func (c *Config) PageSizeLimit() uint32 {
	if c.Transport == TransportUDP {
		return transport.MaxUDPPageSize
	}

	return wire.MaxPageSize
}

// Level уровень журналирования.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return level, errors.Wrap(err, "parse log level").Str("log-level", c.LogLevel)
	}

	return level, nil
}

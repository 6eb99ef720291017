package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const defaultConfigFile = "src/internal/config/cfg.yml"

type Configuration struct {
	Logs          LogsSettings       `mapstructure:"logs"`
	App           Application        `mapstructure:"app"`
	Database      Database           `mapstructure:"database"`
	Queue         QueueConfig        `mapstructure:"queue"`
	Redis         Redis              `mapstructure:"redis"`
	Security      SecuritySettings   `mapstructure:"security"`
	Server        ServerSettings     `mapstructure:"server"`
	Session       SessionSettings    `mapstructure:"session"`
	Cors          CorsSettings       `mapstructure:"cors"`
	Realtime      RealtimeSettings   `mapstructure:"realtime"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	Path             string `mapstructure:"log-path"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name    string `mapstructure:"name"`
	Timeout int    `mapstructure:"timeout"`
	Version string `mapstructure:"version"`
}

type Database struct {
	Url                    string `mapstructure:"url"`
	DbName                 string `mapstructure:"dbname"`
	NotificationCollection string `mapstructure:"notification-collection"`
	Timeout                int    `mapstructure:"timeout"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Url              string   `mapstructure:"url"`
	Exchange         string   `mapstructure:"exchange"`
	ExchangeType     string   `mapstructure:"exchange-type"`
	EventsQueue      string   `mapstructure:"events-queue"`
	EventRoutingKeys []string `mapstructure:"event-routing-keys"`
	ActivityKey      string   `mapstructure:"activity-routing-key"`
	PrefetchCount    int      `mapstructure:"prefetch-count"`
	Durable          bool     `mapstructure:"durable"`
	AutoDelete       bool     `mapstructure:"auto-delete"`
	Internal         bool     `mapstructure:"internal"`
	NoWait           bool     `mapstructure:"no-wait"`
	Exclusive        bool     `mapstructure:"exclusive"`
	Consumer         string   `mapstructure:"consumer"`
	Enabled          bool     `mapstructure:"enabled"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type SecuritySettings struct {
	JwtKey        string `mapstructure:"jwt-key"`
	SessionSecret string `mapstructure:"session-secret"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
	MaxBodyBytes int64  `mapstructure:"max-body-bytes"`
}

type SessionSettings struct {
	CookieName           string `mapstructure:"cookie-name"`
	KeyPrefix            string `mapstructure:"key-prefix"`
	TTLMinutes           int    `mapstructure:"ttl-minutes"`
	SweepIntervalMinutes int    `mapstructure:"sweep-interval-minutes"`
	TouchEnabled         bool   `mapstructure:"touch-enabled"`
	SecureCookie         bool   `mapstructure:"secure-cookie"`
}

type CorsSettings struct {
	AllowedOrigin string `mapstructure:"allowed-origin"`
}

type RealtimeSettings struct {
	HandshakeTimeoutSeconds int `mapstructure:"handshake-timeout-seconds"`
	SendBuffer              int `mapstructure:"send-buffer"`
	PingPeriodSeconds       int `mapstructure:"ping-period-seconds"`
	WriteTimeoutSeconds     int `mapstructure:"write-timeout-seconds"`
}

type NotificationConfig struct {
	DefaultPageSize int `mapstructure:"default-page-size"`
	MaxPageSize     int `mapstructure:"max-page-size"`
}

// TTL is the fixed session lifetime measured from creation.
func (s SessionSettings) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

func (s SessionSettings) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

func (r RealtimeSettings) HandshakeTimeout() time.Duration {
	return time.Duration(r.HandshakeTimeoutSeconds) * time.Second
}

func (r RealtimeSettings) PingPeriod() time.Duration {
	return time.Duration(r.PingPeriodSeconds) * time.Second
}

func (r RealtimeSettings) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutSeconds) * time.Second
}

func Load() *Configuration {
	return LoadFile(defaultConfigFile)
}

func LoadFile(path string) *Configuration {
	cfg := read(path)
	logrus.Info("Configuration loaded")

	applyDefaults(cfg)
	applyEnv(cfg)

	return cfg
}

// Default returns a configuration populated only with defaults. Used by tests
// and as a base when no config file is present.
func Default() *Configuration {
	cfg := &Configuration{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Configuration) {
	if cfg.App.Name == "" {
		cfg.App.Name = "challengehub-realtime-svc"
	}
	if cfg.App.Timeout <= 0 {
		cfg.App.Timeout = 10
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "4000"
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Database.NotificationCollection == "" {
		cfg.Database.NotificationCollection = "notifications"
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "connect.sid"
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "sess:"
	}
	if cfg.Session.TTLMinutes <= 0 {
		cfg.Session.TTLMinutes = 24 * 60
	}
	if cfg.Session.SweepIntervalMinutes <= 0 {
		cfg.Session.SweepIntervalMinutes = 15
	}
	if cfg.Realtime.HandshakeTimeoutSeconds <= 0 {
		cfg.Realtime.HandshakeTimeoutSeconds = 5
	}
	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = 64
	}
	if cfg.Realtime.PingPeriodSeconds <= 0 {
		cfg.Realtime.PingPeriodSeconds = 54
	}
	if cfg.Realtime.WriteTimeoutSeconds <= 0 {
		cfg.Realtime.WriteTimeoutSeconds = 10
	}
	if cfg.Notifications.DefaultPageSize <= 0 {
		cfg.Notifications.DefaultPageSize = 10
	}
	if cfg.Notifications.MaxPageSize <= 0 {
		cfg.Notifications.MaxPageSize = 100
	}
}

func applyEnv(cfg *Configuration) {
	// Override with environment variables
	if mongoUri := os.Getenv("MONGODB_URL"); mongoUri != "" {
		cfg.Database.Url = mongoUri
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.DbName = dbName
	}

	if redisUrl := os.Getenv("REDIS_URL"); redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	if rabbitmqUrl := os.Getenv("RABBITMQ_URL"); rabbitmqUrl != "" {
		cfg.Queue.RabbitMQ.Url = rabbitmqUrl
	}

	if jwtKey := os.Getenv("JWT_KEY"); jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		cfg.Security.SessionSecret = secret
	}

	if origin := os.Getenv("FRONTEND_URL"); origin != "" {
		cfg.Cors.AllowedOrigin = origin
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
}

func read(path string) *Configuration {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetConfigType("yml")

	var config Configuration

	if err := v.ReadInConfig(); err != nil {
		logrus.Panicf("Error reading config file, %s", err)
	}

	if err := v.Unmarshal(&config); err != nil {
		logrus.Panicf("Error unmarshalling config file, %s", err)
	}

	return &config
}

package configs

import (
	"fmt"
	"time"

	"github.com/fennwick/sotto/internal/infrastructure/env"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	Rooms       RoomsConfig       `koanf:"rooms"`
	RateLimiter RateLimiterConfig `koanf:"rateLimiter"`
	AMQP        AMQPConfig        `koanf:"amqp"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           uint16        `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	AllowedHeaders []string      `koanf:"allowed_headers"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

type RoomsConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	DisconnectGrace time.Duration `koanf:"disconnect_grace"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`
	Capacity        uint          `koanf:"capacity"`
}

type RateLimiterConfig struct {
	RequestsPerTimeFrame int           `koanf:"requestsPerTimeFrame"`
	TimeFrame            time.Duration `koanf:"timeFrame"`
}

type AMQPConfig struct {
	URI string `koanf:"uri"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load from YAML file if it exists
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Only return error if file was explicitly provided but failed to load
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply defaults and environment variable overrides
	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	// HTTP defaults
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 8080)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})
	setDefault(k, "http.allowed_headers", []string{"Content-Type", "Authorization"})

	// Room lifecycle defaults
	setDefault(k, "rooms.ttl", 20*time.Minute)
	setDefault(k, "rooms.disconnect_grace", 6*time.Second)
	setDefault(k, "rooms.sweep_interval", time.Minute)
	setDefault(k, "rooms.capacity", 1000)

	// Rate limiter defaults
	setDefault(k, "rateLimiter.requestsPerTimeFrame", 20)
	setDefault(k, "rateLimiter.timeFrame", 5*time.Second)

	// Event publishing is off unless an AMQP URI is configured
	setDefault(k, "amqp.uri", "")
}

func applyEnvOverrides(k *koanf.Koanf) {
	// HTTP config from env
	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if readTimeout := env.GetInt("HTTP_READ_TIMEOUT_SECONDS", 0); readTimeout > 0 {
		k.Set("http.read_timeout", time.Duration(readTimeout)*time.Second)
	}
	if writeTimeout := env.GetInt("HTTP_WRITE_TIMEOUT_SECONDS", 0); writeTimeout > 0 {
		k.Set("http.write_timeout", time.Duration(writeTimeout)*time.Second)
	}

	// Room lifecycle from env
	if ttl := env.GetDuration("ROOM_TTL", 0); ttl > 0 {
		k.Set("rooms.ttl", ttl)
	}
	if grace := env.GetDuration("ROOM_DISCONNECT_GRACE", 0); grace > 0 {
		k.Set("rooms.disconnect_grace", grace)
	}
	if sweep := env.GetDuration("ROOM_SWEEP_INTERVAL", 0); sweep > 0 {
		k.Set("rooms.sweep_interval", sweep)
	}
	if capacity := env.GetInt("ROOM_CAPACITY", 0); capacity > 0 {
		k.Set("rooms.capacity", uint(capacity))
	}

	// Rate limiter from env
	if requests := env.GetInt("RATE_LIMIT_REQUESTS_PER_TIMEFRAME", 0); requests > 0 {
		k.Set("rateLimiter.requestsPerTimeFrame", requests)
	}
	if frame := env.GetDuration("RATE_LIMIT_TIMEFRAME", 0); frame > 0 {
		k.Set("rateLimiter.timeFrame", frame)
	}

	if uri := env.GetString("AMQP_URI", ""); uri != "" {
		k.Set("amqp.uri", uri)
	}
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

// config предоставляет конфигурацию сервиса и её загрузку
// из файла и переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config - корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Ops      OpsConfig     `yaml:"ops"`
	Auth     AuthConfig    `yaml:"auth"`
	Storage  StorageConfig `yaml:"storage"`
	Redis    RedisConfig   `yaml:"redis"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig - таймауты сервиса.
type TimeoutConfig struct {
	Request  time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"5s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig - адрес публичного HTTP API.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH"`
}

// OpsConfig - адрес служебного сервера (/livez, /healthz, /metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Addr возвращает адрес в формате host:port.
func (c OpsConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// AuthConfig - параметры выпуска и проверки токенов.
// Загружается один раз при старте и дальше передаётся по значению.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	Algorithm       string        `yaml:"algorithm" env:"JWT_ALGORITHM" env-required:"true"`
	Issuer          string        `yaml:"issuer" env:"JWT_ISSUER" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-required:"true"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-required:"true"`
	// RevokeFamilyOnReuse - при повторном предъявлении отозванного refresh-токена
	// отозвать все активные refresh-токены этой identity.
	RevokeFamilyOnReuse bool `yaml:"revoke_family_on_reuse" env:"REVOKE_FAMILY_ON_REUSE" env-default:"false"`
	// BcryptCost - стоимость bcrypt для новых паролей.
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StorageConfig - основное хранилище identity и refresh-токенов.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
	SQLitePath  string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"auth.db"`
	Migrate     bool   `yaml:"migrate" env:"STORAGE_MIGRATE" env-default:"true"`
}

// RedisConfig - если RedisURL задан, refresh-токены хранятся в Redis.
//
// Retention > 0 ставит на запись TTL: через Retention после истечения токена
// Redis удаляет её физически. Предъявление такого токена даёт ErrInvalidToken
// вместо ErrTokenExpired, а его семейство нельзя отозвать при повторном
// использовании. Поэтому Retention требует явного AllowEviction.
type RedisConfig struct {
	RedisURL      string        `yaml:"redis_url" env:"REDIS_URL"`
	Prefix        string        `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:"`
	Retention     time.Duration `yaml:"retention" env:"REDIS_RETENTION" env-default:"0s"`
	AllowEviction bool          `yaml:"allow_eviction" env:"REDIS_ALLOW_EVICTION" env-default:"false"`
}

const localConfig = "local.yaml"

// Алгоритмы подписи access-токенов.
var supportedAlgorithms = map[string]struct{}{
	"HS256": {},
	"HS384": {},
	"HS512": {},
}

// Validate проверяет значения, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	if _, ok := supportedAlgorithms[c.Auth.Algorithm]; !ok {
		return fmt.Errorf("unsupported jwt algorithm %q", c.Auth.Algorithm)
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage.db_url is required for postgres driver")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Redis.Retention < 0 {
		return errors.New("redis.retention must not be negative")
	}

	if c.Redis.Retention > 0 && !c.Redis.AllowEviction {
		return errors.New("redis.retention deletes expired records; set redis.allow_eviction to confirm")
	}

	return nil
}

// MustLoad - обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	// Файл читается первым, ENV накладывается поверх.
	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %q: %w", p, err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	switch {
	case path != "":
		return readFile(path)
	case os.Getenv("CONFIG_PATH") != "":
		return readFile(os.Getenv("CONFIG_PATH"))
	}

	if _, err := os.Stat(localConfig); err == nil {
		return readFile(localConfig)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, %s or env vars: %w", localConfig, err)
	}

	return &cfg, nil
}

package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"proconnect_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"proconnect_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"proconnect_db"`

	JwtSecret string `env:"JWT_SECRET,required" validate:"min=16"`

	AccessCheckTimeout  time.Duration `env:"ACCESS_CHECK_TIMEOUT"  envDefault:"2s"    validate:"min=100ms"`
	OutboxSize          int           `env:"OUTBOX_SIZE"           envDefault:"256"   validate:"min=1,max=65536"`
	ReadLimit           int64         `env:"READ_LIMIT"            envDefault:"65536" validate:"min=512"`
	HistoryBuffer       int           `env:"HISTORY_BUFFER"        envDefault:"4096"  validate:"min=1"`
	HistoryStreamMaxLen int64         `env:"HISTORY_STREAM_MAXLEN" envDefault:"100000" validate:"min=1000"`
	OccupancyInterval   time.Duration `env:"OCCUPANCY_INTERVAL"    envDefault:"10s"   validate:"min=1s"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}

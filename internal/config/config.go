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
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"bidinsouk_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"bidinsouk_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"bidinsouk_db"`

	// Engine defaults; schedule-time values on an auction take precedence.
	Currency           string        `env:"AUCTION_CURRENCY"          envDefault:"MAD" validate:"len=3"`
	BidMinIncrement    int64         `env:"BID_MIN_INCREMENT"         envDefault:"100" validate:"min=1"`
	EndingSoonWindow   time.Duration `env:"ENDING_SOON_WINDOW"        envDefault:"1h"`
	AntiSnipeWindow    time.Duration `env:"ANTI_SNIPE_WINDOW"         envDefault:"2m"`
	AntiSnipeExtension time.Duration `env:"ANTI_SNIPE_EXTENSION"      envDefault:"5m"`
	MaxExtensions      int           `env:"ANTI_SNIPE_MAX_EXTENSIONS" envDefault:"10" validate:"min=1"`
	ScheduleGrace      time.Duration `env:"SCHEDULE_GRACE"            envDefault:"30s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL"            envDefault:"5s"`

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

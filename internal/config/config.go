package config

import (
	"strings"

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
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"chat_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"chat_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"chat_db"`

	JwtSecret     string `env:"JWT_SECRET"      envDefault:"dev-secret-change-me"`
	TokenTTLHours int    `env:"TOKEN_TTL_HOURS" envDefault:"168" validate:"min=1"`
	MentorCode    string `env:"MENTOR_CODE"     envDefault:""`

	RoomID string `env:"CHAT_ROOM_ID" envDefault:"superpaac-group"`

	// Comma-separated roles allowed to soft-delete messages. The message
	// schema structurally permits teachers too, so this is a deployment
	// policy rather than a constant.
	MessageDeleteRoles string `env:"MESSAGE_DELETE_ROLES" envDefault:"admin"`

	TypingTTLSeconds int `env:"TYPING_TTL_SECONDS" envDefault:"30" validate:"min=1"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
}

// DeleteRoleSet expands MessageDeleteRoles into a lookup set.
func (c *Config) DeleteRoleSet() map[string]bool {
	set := make(map[string]bool)
	for _, r := range strings.Split(c.MessageDeleteRoles, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = true
		}
	}
	return set
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

package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	CounterBackendBadger = "badger"
	CounterBackendRedis  = "redis"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080" validate:"gt=0,lt=65536"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	JWTSecret            string        `env:"JWT_SECRET,required=true" validate:"required,min=16"`
	InstanceID           string        `env:"INSTANCE_ID,default=chat-core-1"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256" validate:"gt=0"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4000" validate:"gt=0"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=50" validate:"gt=0"`
	IdempotencyWindow    time.Duration `env:"IDEMPOTENCY_WINDOW,default=10m" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=30s" validate:"gt=0"`
	DebugInspect         bool          `env:"DEBUG_INSPECT,default=false"`

	CensoredDir     string `env:"CENSORED_DIR"`
	CharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	CounterBackend string        `env:"COUNTER_BACKEND,default=badger" validate:"oneof=badger redis"`
	RedisAddr      string        `env:"REDIS_ADDR" validate:"required_if=CounterBackend redis"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB,default=0" validate:"gte=0"`
	PresenceTTL    time.Duration `env:"PRESENCE_TTL,default=2m" validate:"gt=0"`

	NatsURL string `env:"NATS_URL"`
}

// Validate checks the cross-field rules the env tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

// Address is the listen address of the websocket server.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

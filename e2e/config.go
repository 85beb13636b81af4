package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHAT_SERVER_URL points at a running server, e.g. ws://localhost:8080/ws.
	// The suites are skipped when it is empty.
	ServerURL string `envconfig:"CHAT_SERVER_URL"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	// E2E_CONVERSATION_ID must exist with Alice and Bob as participants (see cmd/tools)
	ConversationID string `envconfig:"E2E_CONVERSATION_ID" default:"general"`
	Alice          string `envconfig:"E2E_ALICE" default:"alice"`
	Bob            string `envconfig:"E2E_BOB" default:"bob"`
	// E2E_DEBUG_JSON dumps every frame sent and received
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

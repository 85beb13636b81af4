package main

import (
	"bufio"
	"chat-core/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL      string `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	Token          string `env:"CHAT_TOKEN,required=true"`
	ConversationID string `env:"CHAT_CONVERSATION_ID,default=general"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins one conversation, prints every inbound event and sends each stdin line as a message.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+config.Token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, header)
	if err != nil {
		if resp != nil {
			return exitRuntime, fmt.Errorf("could not connect to %s (%s): %w", config.ServerURL, resp.Status, err)
		}
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	if err := ws.WriteJSON(map[string]any{
		"event": "join_conversation",
		"data":  map[string]string{"conversationId": config.ConversationID},
	}); err != nil {
		return exitRuntime, fmt.Errorf("failed to join: %w", err)
	}
	log.Info(fmt.Sprintf(">>> Connected to %s, conversation %s (Ctrl+C to quit)", config.ServerURL, config.ConversationID))

	// stdin lines become messages; the gorilla connection allows one concurrent writer
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			err := ws.WriteJSON(map[string]any{
				"event": "send_message",
				"data":  map[string]string{"conversationId": config.ConversationID, "content": line},
			})
			if err != nil {
				log.Error("Send failed", "error", err)
				stop()
				return
			}
		}
	}()

	received := make(chan frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			var f frame
			if err := ws.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			received <- f
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		case f := <-received:
			render(log, f)
		}
	}
}

func render(log *slog.Logger, f frame) {
	switch f.Event {
	case event.NewMessageName:
		var e event.NewMessage
		if err := json.Unmarshal(f.Data, &e); err != nil {
			log.Warn("Unreadable message", "error", err)
			return
		}
		fmt.Printf("[%s] %s: %s\n",
			e.Message.CreatedAt.Local().Format(time.TimeOnly),
			color.Cyan.Render(e.Message.SenderID),
			e.Message.Content)
	case event.ErrorName:
		var e event.Error
		_ = json.Unmarshal(f.Data, &e)
		fmt.Println(color.Red.Sprintf("error on %q: %s", e.Event, e.Message))
	case event.UserOnlineName, event.UserOfflineName, event.JoinedConversationName:
		fmt.Println(color.Gray.Sprintf("* %s %s", f.Event, string(f.Data)))
	default:
		log.Debug("Event", "name", f.Event, "data", string(f.Data))
	}
}

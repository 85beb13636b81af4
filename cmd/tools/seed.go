package main

import (
	"chat-core/auth"
	"chat-core/domain"
	"chat-core/infrastructure/storage"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"

	apperrors "chat-core/errors"
)

type seedConfig struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
}

// Seeds one conversation and prints a token per participant, so that a
// local server can be exercised with the client right away.
func main() {
	conversation := flag.String("conversation", "general", "Conversation id")
	users := flag.String("users", "alice,bob", "Comma separated participants")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	var config seedConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := storage.NewConversationStore(db, logs.GetLoggerFromLevel(slog.LevelInfo), time.Minute, 0)
	participants := lo.Map(strings.Split(*users, ","), func(u string, _ int) domain.UserID {
		return domain.UserID(strings.TrimSpace(u))
	})

	id := domain.ConversationID(*conversation)
	if err := seed(ctx, store, id, participants); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	verifier := auth.NewTokenVerifier(config.JWTSecret)
	fmt.Printf("Conversation %q ready\n\n", id)
	for _, userID := range participants {
		token, err := verifier.GenerateToken(domain.Identity{UserID: userID}, *ttl)
		if err != nil {
			log.Fatalf("Token generation failed: %v", err)
		}
		fmt.Printf("%s\t%s\n", userID, token)
	}
}

// seed is idempotent: an existing conversation only gets the missing participants.
func seed(ctx context.Context, store *storage.ConversationStore, id domain.ConversationID, participants []domain.UserID) error {
	_, err := store.GetConversation(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return store.CreateConversation(ctx, id, participants...)
	case err != nil:
		return err
	}
	for _, userID := range participants {
		if err := store.AddParticipant(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"chat-core/domain"
	chatredis "chat-core/infrastructure/redis"
	"chat-core/infrastructure/storage"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	conversation := flag.String("conversation", "", "Conversation to detail, all conversations when empty")
	redisAddr := flag.String("redis", "", "Redis address holding the unread counters when COUNTER_BACKEND=redis")
	redisDB := flag.Int("redis-db", 0, "Redis database")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	ctx := context.Background()
	logger := logs.GetLoggerFromLevel(slog.LevelError)
	store := storage.NewConversationStore(db, logger, 0, 0)

	// Unread counters live in Redis for that backend, badger keeps zeros
	var reader conversationReader = store
	if *redisAddr != "" {
		client, err := chatredis.NewClient(ctx, *redisAddr, os.Getenv("REDIS_PASSWORD"), *redisDB)
		if err != nil {
			log.Fatal("Error while opening Redis: ", err)
		}
		defer client.Close()
		reader = chatredis.NewCounterStore(store, client, logger, 0)
	}

	if *conversation == "" {
		err = printConversations(ctx, store, reader)
	} else {
		err = printMessages(ctx, store, domain.ConversationID(*conversation))
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

type conversationReader interface {
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
}

func printConversations(ctx context.Context, store *storage.ConversationStore, reader conversationReader) error {
	ids, err := store.ListConversationIDs(ctx)
	if err != nil {
		return err
	}

	table := newTable([]string{"Conversation", "Created", "Messages", "Last message", "Participants", "Unread"})
	for _, id := range ids {
		c, err := reader.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		participants, err := store.ListParticipants(ctx, id)
		if err != nil {
			return err
		}

		last := "-"
		if c.LastMessageAt != nil {
			last = c.LastMessageAt.Format(time.DateTime)
		}
		table.Append([]string{
			string(c.ID),
			c.CreatedAt.Format(time.DateTime),
			strconv.FormatInt(c.MessageCount, 10),
			last,
			strconv.Itoa(len(participants)),
			formatUnread(c.Unread),
		})
	}
	table.Render()
	return nil
}

func printMessages(ctx context.Context, store *storage.ConversationStore, id domain.ConversationID) error {
	table := newTable([]string{"Time", "ID", "Sender", "Type", "Content"})
	var cursor *string
	for {
		page, next, err := store.ListMessages(ctx, id, cursor)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			// First 8 characters are enough to tell messages apart
			table.Append([]string{
				m.CreatedAt.Format("15:04:05.000"),
				m.ID.String()[:8],
				string(m.SenderID),
				string(m.Type),
				m.Content,
			})
		}
		if next == nil {
			break
		}
		cursor = next
	}
	table.Render()
	return nil
}

func formatUnread(unread map[domain.UserID]int64) string {
	users := make([]string, 0, len(unread))
	for userID, n := range unread {
		if n > 0 {
			users = append(users, fmt.Sprintf("%s:%d", userID, n))
		}
	}
	sort.Strings(users)
	return strings.Join(users, " ")
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}

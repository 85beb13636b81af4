package workers

import (
	"chat-core/contract"
	"chat-core/domain"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
)

type fixedState struct {
	connections []contract.Connection
	online      []domain.UserID
}

func (s fixedState) Connections() []contract.Connection { return s.connections }
func (s fixedState) OnlineUsers() []domain.UserID       { return s.online }

func TestHealthWorker_Snapshot(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	state := fixedState{
		connections: []contract.Connection{{ID: "x"}, {ID: "y"}, {ID: "z"}},
		online:      []domain.UserID{"alice", "bob"},
	}
	worker := NewHealthWorker(log, state, time.Second)

	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	report, err := worker.Snapshot(p)
	req.NoError(err)
	req.Equal(int32(os.Getpid()), report.PID)
	req.Positive(report.RSSBytes)
	req.Equal(3, report.Connections)
	req.Equal(2, report.OnlineUsers)
}

func TestHealthWorker_Stops_On_Cancel(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	worker := NewHealthWorker(log, fixedState{}, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, worker.Run(ctx))
}

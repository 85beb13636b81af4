package workers

import (
	"chat-core/contract"
	"chat-core/domain"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// LiveState is the read side of the connection registry.
type LiveState interface {
	Connections() []contract.Connection
	OnlineUsers() []domain.UserID
}

type HealthReport struct {
	PID         int32
	Status      string
	CPUPercent  float64
	RSSBytes    uint64
	Connections int
	OnlineUsers int
}

// HealthWorker periodically logs the resource usage of the process next to
// the size of the live connection registry.
type HealthWorker struct {
	log      *slog.Logger
	state    LiveState
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, state LiveState, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, state: state, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health reports")
			return nil
		case <-ticker.C:
			report, err := w.Snapshot(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.log.Info("Health",
				"pid", report.PID,
				"status", report.Status,
				"cpu_percent", report.CPUPercent,
				"rss_bytes", report.RSSBytes,
				"connections", report.Connections,
				"online_users", report.OnlineUsers)
		}
	}
}

func (w *HealthWorker) Snapshot(p *process.Process) (HealthReport, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return HealthReport{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return HealthReport{}, err
	}
	status, err := p.Status()
	if err != nil {
		return HealthReport{}, err
	}
	return HealthReport{
		PID:         p.Pid,
		Status:      status,
		CPUPercent:  cpu,
		RSSBytes:    memInfo.RSS,
		Connections: len(w.state.Connections()),
		OnlineUsers: len(w.state.OnlineUsers()),
	}, nil
}

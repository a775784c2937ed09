package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SCS-Technik/Assixx-sub005/internal/infrastructure/realtime"
)

const defaultHeartbeatInterval = 30 * time.Second

// HeartbeatWorker is the only mechanism that reclaims connections whose
// peer vanished without a clean close. Each sweep terminates connections
// that never answered the previous probe, then clears the flag and probes
// the rest. Termination runs the normal disconnect path in the connection's
// read loop, so the offline presence broadcast fires exactly once there.
type HeartbeatWorker struct {
	registry *realtime.Registry
	log      *slog.Logger
	interval time.Duration
}

func NewHeartbeatWorker(registry *realtime.Registry, log *slog.Logger) *HeartbeatWorker {
	return &HeartbeatWorker{
		registry: registry,
		log:      log,
		interval: defaultHeartbeatInterval,
	}
}

// WithInterval overrides the sweep cadence; zero keeps the default.
func (w *HeartbeatWorker) WithInterval(interval time.Duration) *HeartbeatWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Run blocks until ctx is canceled.
func (w *HeartbeatWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep performs one liveness pass over every tracked connection.
func (w *HeartbeatWorker) Sweep() {
	for _, conn := range w.registry.Snapshot() {
		if !conn.Alive() {
			w.log.Info("heartbeat: evicting dead connection", "user", conn.UserID)
			conn.Close(websocket.CloseGoingAway, "heartbeat timeout")
			continue
		}
		conn.ClearAlive()
		if err := conn.Ping(); err != nil {
			w.log.Warn("heartbeat: ping failed", "user", conn.UserID, "err", err)
		}
	}
}

package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/creality-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/creality-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/creality-bridge/internal/integration"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// recordTimeout bounds a single history insert.
const recordTimeout = 5 * time.Second

// MetricsWriter is the time-series side of the recorder.
type MetricsWriter interface {
	WritePrinterMetric(entryID, key string, value any, ts time.Time) bool
	WritePrinterStatus(entryID, status string, connected bool, ts time.Time)
}

var _ MetricsWriter = (*influxdb.Client)(nil)

// RecorderConfig wires the recorder's outputs. Either may be nil.
type RecorderConfig struct {
	Metrics MetricsWriter
	History HistoryRepository
	// HistoryInterval is the minimum gap between interval snapshots.
	// Zero records status changes only.
	HistoryInterval time.Duration
}

// Recorder is an integration.Sink persisting updates.
type Recorder struct {
	cfg    RecorderConfig
	logger *logging.Logger
	now    func() time.Time

	mu         sync.Mutex
	lastRecord map[string]time.Time
}

var _ integration.Sink = (*Recorder)(nil)

// NewRecorder creates a recorder.
func NewRecorder(cfg RecorderConfig, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		cfg:        cfg,
		logger:     logger.With("component", "telemetry"),
		now:        time.Now,
		lastRecord: make(map[string]time.Time),
	}
}

// Name identifies the sink in logs.
func (r *Recorder) Name() string { return "telemetry" }

// Attach subscribes the recorder to the runtime's broadcaster.
func (r *Recorder) Attach(rt *integration.Runtime) (integration.DetachFunc, error) {
	unsubscribe, err := rt.Bus.Subscribe("telemetry", r.Observe)
	if err != nil {
		return nil, err
	}
	id := rt.Entry.ID
	return func(bool) {
		unsubscribe()
		r.mu.Lock()
		delete(r.lastRecord, id)
		r.mu.Unlock()
	}, nil
}

// Observe handles one update. It is a printer.Observer.
func (r *Recorder) Observe(u printer.Update) {
	ts := u.Time
	if ts.IsZero() {
		ts = r.now()
	}

	if r.cfg.Metrics != nil {
		r.writeMetrics(u, ts)
	}
	if r.cfg.History != nil {
		r.recordHistory(u, ts)
	}
}

func (r *Recorder) writeMetrics(u printer.Update, ts time.Time) {
	if u.StatusChanged {
		r.cfg.Metrics.WritePrinterStatus(u.EntryID, u.Status, u.Status == printer.StatusConnected, ts)
	}
	for _, k := range u.Keys {
		if k == printer.StatusKey {
			continue
		}
		if v, ok := u.Snapshot[k]; ok {
			r.cfg.Metrics.WritePrinterMetric(u.EntryID, k, v, ts)
		}
	}
}

func (r *Recorder) recordHistory(u printer.Update, ts time.Time) {
	reason := r.historyReason(u, ts)
	if reason == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	rec := &HistoryRecord{
		EntryID:   u.EntryID,
		Status:    u.Status,
		State:     u.Snapshot,
		Reason:    reason,
		CreatedAt: ts,
	}
	if err := r.cfg.History.Record(ctx, rec); err != nil {
		r.logger.Warn("recording state history failed", "entry_id", u.EntryID, "error", err)
		return
	}

	r.mu.Lock()
	r.lastRecord[u.EntryID] = ts
	r.mu.Unlock()
}

// historyReason decides whether u is worth a snapshot.
func (r *Recorder) historyReason(u printer.Update, ts time.Time) string {
	if u.StatusChanged {
		return ReasonStatusChange
	}
	if r.cfg.HistoryInterval <= 0 {
		return ""
	}

	r.mu.Lock()
	last, seen := r.lastRecord[u.EntryID]
	r.mu.Unlock()

	if !seen || ts.Sub(last) >= r.cfg.HistoryInterval {
		return ReasonInterval
	}
	return ""
}

// RunPruner deletes history older than retention once at start and then
// every interval until ctx is done.
func RunPruner(ctx context.Context, repo HistoryRepository, retention, interval time.Duration, logger *logging.Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}
	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("pruning state history failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("pruned state history", "rows", n, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

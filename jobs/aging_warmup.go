package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridiandist/meridian/internal/ar"
	jobmetrics "github.com/meridiandist/meridian/internal/jobs"
	"github.com/meridiandist/meridian/internal/ledger"
)

// AgingWarmupJob pre-populates the AR report cache for the common report
// variants.
type AgingWarmupJob struct {
	AR      *ar.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAgingWarmupJob wires dependencies for the warmup handler.
func NewAgingWarmupJob(arSvc *ar.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgingWarmupJob {
	return &AgingWarmupJob{
		AR:      arSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes aging warmup tasks. Each requested mode is warmed in
// parallel; a failure on one mode does not stop the others, but fails the
// task so asynq retries.
func (j *AgingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.AR == nil {
		return errors.New("aging warmup: handler not configured")
	}
	var payload AgingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	modes := payload.Modes
	if len(modes) == 0 {
		modes = []string{string(ledger.ModeDue), string(ledger.ModeOutstanding)}
	}

	tracker := j.Metrics.Track(TaskReportAgingWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	asOf := j.clock()
	g, gctx := errgroup.WithContext(ctx)
	for _, raw := range modes {
		mode, err := ledger.ParseMode(raw)
		if err != nil {
			j.logger().Warn("aging warmup: skipping unknown mode", slog.String("mode", raw))
			continue
		}
		g.Go(func() error {
			_, err := j.AR.AgingReport(gctx, ar.ReportRequest{
				AsOf:    asOf,
				Mode:    mode,
				NetDays: payload.NetDays,
			})
			if err != nil {
				j.logger().Error("aging warmup failed",
					slog.String("mode", string(mode)),
					slog.Any("error", err))
			}
			return err
		})
	}
	resultErr = g.Wait()
	if resultErr == nil {
		j.logger().Info("aging warmup complete", slog.Any("modes", modes))
	}
	return resultErr
}

func (j *AgingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

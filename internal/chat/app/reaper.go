package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ephemeral_chat/internal/chat/repository"
	errprocess "ephemeral_chat/pkg/err"
	"ephemeral_chat/pkg/logger"
	"ephemeral_chat/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrCycleInProgress a reap cycle is already running
var ErrCycleInProgress = errors.New("reaper cycle already in progress")

// AttachmentRemover delete the file behind an attachment reference.
// repository.AttachmentStore removes directly, repository.CleanupQueue hands it to the worker.
type AttachmentRemover interface {
	Remove(ctx context.Context, ref string) error
}

// ReaperConfig reaper schedule
type ReaperConfig struct {
	Interval    time.Duration
	Concurrency int
	RunOnStart  bool
}

// CycleReport result of one reap cycle
type CycleReport struct {
	Cutoff       time.Time
	Deleted      int64
	Attachments  int
	FileFailures int
}

// Reaper 定期清除過期訊息與其附件
type Reaper struct {
	repo    repository.MessageRepository
	remover AttachmentRemover
	cfg     ReaperConfig
	now     func() time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReaper create Reaper
func NewReaper(repo repository.MessageRepository, remover AttachmentRemover, cfg ReaperConfig) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Reaper{
		repo:    repo,
		remover: remover,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start run a cycle every interval until Stop or ctx is done
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		logger.Log.Info("reaper started", zap.Duration("interval", r.cfg.Interval))
		if r.cfg.RunOnStart {
			r.tick(ctx)
		}
		for {
			select {
			case <-ticker.C:
				r.tick(ctx)
			case <-ctx.Done():
				logger.Log.Info("reaper stopped")
				return
			}
		}
	}()
}

// Stop cancel the schedule and wait for the running cycle to return
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Reaper) tick(ctx context.Context) {
	if _, err := r.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		logger.Log.Error("reaper cycle failed", zap.Error(err))
	}
}

// RunCycle capture expired attachments, delete every expired row, then remove the captured files.
// Removal failures are counted in the report, the rows stay deleted.
func (r *Reaper) RunCycle(ctx context.Context) (CycleReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		logger.Log.Warn("reaper cycle skipped, previous cycle still running")
		metrics.ReaperCycles.WithLabelValues("skipped").Inc()
		return CycleReport{}, ErrCycleInProgress
	}
	defer r.running.Store(false)

	report := CycleReport{Cutoff: r.now().UTC()}

	// 1. 先記下附件路徑, 刪除後就查不到了
	refs, err := r.repo.QueryExpiredAttachments(ctx, report.Cutoff)
	if err != nil {
		metrics.ReaperCycles.WithLabelValues("failed").Inc()
		return report, err
	}
	report.Attachments = len(refs)

	// 2. 刪除所有過期訊息 (文字與附件)
	deleted, err := r.repo.DeleteExpired(ctx, report.Cutoff)
	if err != nil {
		metrics.ReaperCycles.WithLabelValues("failed").Inc()
		return report, err
	}
	report.Deleted = deleted
	metrics.ReaperRowsDeleted.Add(float64(deleted))

	// 3. 各自刪檔, 失敗只記錄
	// rows are gone already, so removals run to completion even when ctx is cancelled
	var failures atomic.Int64
	rmCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			if err := r.remover.Remove(rmCtx, ref.Content); err != nil {
				failures.Add(1)
				metrics.ReaperFileFailures.Inc()
				logger.Log.Error("remove expired attachment failed",
					zap.Uint64("message_id", ref.ID),
					zap.String("ref", ref.Content),
					zap.Bool("filesystem", errprocess.IsFileSystem(err)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	g.Wait()
	report.FileFailures = int(failures.Load())

	metrics.ReaperCycles.WithLabelValues("ok").Inc()
	logger.Log.Info("reaper cycle done",
		zap.Time("cutoff", report.Cutoff),
		zap.Int64("deleted", report.Deleted),
		zap.Int("attachments", report.Attachments),
		zap.Int("file_failures", report.FileFailures),
	)
	return report, nil
}

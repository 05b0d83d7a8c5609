package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/model"
)

const jobTimeout = 30 * time.Minute

// PipelineRunner triggers a publishing pass.
type PipelineRunner interface {
	Run(ctx context.Context, scope model.Scope) ([]model.RunResult, error)
}

// ReplyQueuer proposes engagement replies for one account.
type ReplyQueuer interface {
	QueueReplies(ctx context.Context, accountID string) (int, error)
}

// Store is the subset of persistence the scheduler needs.
type Store interface {
	AccountsWithActiveTopic(ctx context.Context) ([]model.Account, error)
	DeleteExpiredSeen(ctx context.Context) (int, error)
}

// Runner maps configured cron expressions onto pipeline runs and
// engagement sweeps. Job failures are logged and never crash the
// scheduler; a slow job skips its next tick instead of piling up.
type Runner struct {
	cfg      *config.Config
	pipeline PipelineRunner
	replies  ReplyQueuer
	store    Store
	cron     *cron.Cron
}

// New creates a Runner. Start registers the jobs and begins ticking.
func New(cfg *config.Config, pipeline PipelineRunner, replies ReplyQueuer, st Store) *Runner {
	logger := &cronLogger{log: zap.L()}
	return &Runner{
		cfg:      cfg,
		pipeline: pipeline,
		replies:  replies,
		store:    st,
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
	}
}

// Start registers jobs for every configured expression and starts the
// scheduler. An empty expression disables its job.
func (r *Runner) Start() error {
	if expr := r.cfg.Schedule.PipelineCron; expr != "" {
		if _, err := r.cron.AddFunc(expr, r.runPipeline); err != nil {
			return eris.Wrapf(err, "schedule: pipeline cron %q", expr)
		}
	}
	if expr := r.cfg.Schedule.ReplyCron; expr != "" {
		if _, err := r.cron.AddFunc(expr, r.runReplySweep); err != nil {
			return eris.Wrapf(err, "schedule: reply cron %q", expr)
		}
	}
	if _, err := r.cron.AddFunc("@daily", r.purgeSeen); err != nil {
		return eris.Wrap(err, "schedule: purge cron")
	}

	r.cron.Start()
	zap.L().Info("schedule: started",
		zap.String("pipeline_cron", r.cfg.Schedule.PipelineCron),
		zap.String("reply_cron", r.cfg.Schedule.ReplyCron),
		zap.Int("jobs", len(r.cron.Entries())),
	)
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	zap.L().Info("schedule: stopped")
}

// Entries exposes the registered jobs.
func (r *Runner) Entries() []cron.Entry {
	return r.cron.Entries()
}

func (r *Runner) runPipeline() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	mode := r.cfg.Schedule.PipelineMode
	if mode == "" {
		mode = string(model.ScopeAllTopics)
	}
	scope := model.Scope{Kind: model.ScopeKind(mode)}

	results, err := r.pipeline.Run(ctx, scope)
	if err != nil {
		zap.L().Error("schedule: pipeline run failed", zap.Error(err))
		return
	}
	published := 0
	for _, res := range results {
		published += res.Published
	}
	zap.L().Info("schedule: pipeline run complete",
		zap.Int("runs", len(results)),
		zap.Int("published", published),
	)
}

func (r *Runner) runReplySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	accounts, err := r.store.AccountsWithActiveTopic(ctx)
	if err != nil {
		zap.L().Error("schedule: list accounts failed", zap.Error(err))
		return
	}

	total := 0
	for _, account := range accounts {
		queued, queueErr := r.replies.QueueReplies(ctx, account.UserID)
		if queueErr != nil {
			zap.L().Error("schedule: reply sweep failed for account",
				zap.String("account", account.UserID),
				zap.Error(queueErr),
			)
			continue
		}
		total += queued
	}
	zap.L().Info("schedule: reply sweep complete",
		zap.Int("accounts", len(accounts)),
		zap.Int("queued", total),
	)
}

func (r *Runner) purgeSeen() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := r.store.DeleteExpiredSeen(ctx)
	if err != nil {
		zap.L().Error("schedule: purge seen articles failed", zap.Error(err))
		return
	}
	if purged > 0 {
		zap.L().Info("schedule: purged expired seen articles", zap.Int("count", purged))
	}
}

// cronLogger adapts zap to the cron logging interface.
type cronLogger struct {
	log *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Infow("schedule: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw("schedule: "+msg, append(keysAndValues, "error", err)...)
}

package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/model"
	"github.com/quillworks/quill/internal/pacing"
	"github.com/quillworks/quill/internal/store"
)

// Crawler discovers articles from configured sources.
type Crawler interface {
	CrawlFirst(ctx context.Context, sources []model.Source) (*model.Article, error)
	CrawlAll(ctx context.Context, sources []model.Source) []model.Article
}

// Generator produces per-account post text. It never fails: generation
// errors fall back to templated content internally.
type Generator interface {
	ForAccount(ctx context.Context, article model.Article, account model.Account, topic *model.Topic) string
}

// Guard is the at-most-once-per-window duplicate gate.
type Guard interface {
	AlreadySeen(ctx context.Context, article model.Article) (bool, error)
	MarkSeen(ctx context.Context, article model.Article) error
}

// Publisher posts text to the platform on behalf of one account.
type Publisher interface {
	Publish(ctx context.Context, userID, token, text string) (string, error)
}

// Notifier receives fire-and-forget run outcome events.
type Notifier interface {
	PublishSuccess(ctx context.Context, topic, title string, published, total int)
	PublishFailure(ctx context.Context, topic, title string, total int)
	NoContent(ctx context.Context, topic string)
	DuplicateSkipped(ctx context.Context, topic, title string)
}

// Orchestrator sequences discover, guard, generate+publish and finalize
// for a single run scope. Runs hold no state across passes beyond the
// duplicate guard keys and account post counters.
type Orchestrator struct {
	cfg       *config.Config
	store     store.Store
	crawler   Crawler
	generator Generator
	guard     Guard
	publisher Publisher
	notifier  Notifier
}

// New creates an Orchestrator with all collaborators.
func New(
	cfg *config.Config,
	st store.Store,
	crawler Crawler,
	generator Generator,
	guard Guard,
	publisher Publisher,
	notifier Notifier,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		crawler:   crawler,
		generator: generator,
		guard:     guard,
		publisher: publisher,
		notifier:  notifier,
	}
}

// Run executes one pass for the given scope. Fan-out scopes (all-topics,
// cross-topic) return one RunResult per article processed; the single
// scopes return exactly one.
func (o *Orchestrator) Run(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	log := zap.L().With(zap.String("scope", string(scope.Kind)), zap.String("name", scope.Name))
	log.Info("pipeline: starting run")

	switch scope.Kind {
	case model.ScopeSource:
		return o.runSource(ctx, scope)
	case model.ScopeAllSources:
		return o.runAllSources(ctx, scope)
	case model.ScopeTopic:
		return o.runTopic(ctx, scope)
	case model.ScopeAllTopics:
		return o.runAllTopics(ctx, scope)
	case model.ScopeCrossTopic:
		return o.runCrossTopic(ctx, scope)
	case model.ScopeUniversal:
		return o.runUniversal(ctx, scope)
	default:
		return nil, eris.Errorf("pipeline: unknown scope kind %q", scope.Kind)
	}
}

// runSource crawls one named source and publishes to every account,
// the legacy single-source mode.
func (o *Orchestrator) runSource(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	sources, err := o.store.ActiveSources(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list sources")
	}
	var selected []model.Source
	for _, s := range sources {
		if s.Name == scope.Name {
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 {
		return nil, eris.Errorf("pipeline: no active source named %q", scope.Name)
	}

	accounts, err := o.store.ListAccounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list accounts")
	}
	result := o.runOnce(ctx, scope, scope.Name, selected, accounts, nil)
	return []model.RunResult{result}, nil
}

// runAllSources crawls every active source until one yields an article
// and publishes to every account.
func (o *Orchestrator) runAllSources(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	sources, err := o.store.ActiveSources(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list sources")
	}
	accounts, err := o.store.ListAccounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list accounts")
	}
	result := o.runOnce(ctx, scope, "all-sources", sources, accounts, nil)
	return []model.RunResult{result}, nil
}

// runTopic crawls one topic's sources and publishes to its accounts.
func (o *Orchestrator) runTopic(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	topic, err := o.store.GetTopic(ctx, scope.Name)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load topic")
	}
	if topic == nil {
		return nil, eris.Errorf("pipeline: topic %q not found", scope.Name)
	}
	result, err := o.runForTopic(ctx, scope, *topic)
	if err != nil {
		return nil, err
	}
	return []model.RunResult{result}, nil
}

// runAllTopics processes each active topic sequentially with isolated
// failure: one topic's error is captured in its result, never aborts
// the others.
func (o *Orchestrator) runAllTopics(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	topics, err := o.store.ListTopics(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list topics")
	}

	results := make([]model.RunResult, 0, len(topics))
	for _, topic := range topics {
		if ctx.Err() != nil {
			return results, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}
		result, runErr := o.runForTopic(ctx, model.Scope{Kind: model.ScopeTopic, Name: topic.Name}, topic)
		if runErr != nil {
			zap.L().Error("pipeline: topic run failed",
				zap.String("topic", topic.Name),
				zap.Error(runErr),
			)
			result = model.RunResult{
				Scope:   model.Scope{Kind: model.ScopeTopic, Name: topic.Name},
				Skipped: true,
				Reason:  runErr.Error(),
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// runCrossTopic crawls every topic's sources and processes each
// discovered article independently, committing the guard per article.
// Topics are independent, so they fan out concurrently; within a topic
// accounts are still paced strictly in order.
func (o *Orchestrator) runCrossTopic(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	topics, err := o.store.ListTopics(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list topics")
	}

	var mu sync.Mutex
	var results []model.RunResult

	g, gCtx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			sources, srcErr := o.store.ActiveSourcesByTopic(gCtx, topic.ID)
			if srcErr != nil {
				zap.L().Error("pipeline: list topic sources failed",
					zap.String("topic", topic.Name), zap.Error(srcErr))
				return nil
			}
			accounts, accErr := o.store.AccountsByTopic(gCtx, topic.ID)
			if accErr != nil {
				zap.L().Error("pipeline: list topic accounts failed",
					zap.String("topic", topic.Name), zap.Error(accErr))
				return nil
			}

			articles := o.crawler.CrawlAll(gCtx, sources)
			if len(articles) == 0 {
				o.notifier.NoContent(gCtx, topic.Name)
				mu.Lock()
				results = append(results, model.RunResult{Scope: scope, Skipped: true, Reason: "no content: " + topic.Name})
				mu.Unlock()
				return nil
			}
			topicsByID := map[int64]model.Topic{topic.ID: topic}
			for _, article := range articles {
				result := o.processArticle(gCtx, scope, topic.Name, article, accounts, topicsByID)
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// runUniversal discovers one article from the named topic (or the first
// active topic when unnamed) and fans it out to every account bound to
// an active topic.
func (o *Orchestrator) runUniversal(ctx context.Context, scope model.Scope) ([]model.RunResult, error) {
	topics, err := o.store.ListTopics(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list topics")
	}
	if len(topics) == 0 {
		return nil, eris.New("pipeline: no active topics")
	}

	primary := topics[0]
	if scope.Name != "" {
		found := false
		for _, t := range topics {
			if t.Name == scope.Name {
				primary = t
				found = true
				break
			}
		}
		if !found {
			return nil, eris.Errorf("pipeline: topic %q not found", scope.Name)
		}
	}

	sources, err := o.store.ActiveSourcesByTopic(ctx, primary.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list topic sources")
	}
	accounts, err := o.store.AccountsWithActiveTopic(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list accounts")
	}

	topicsByID := make(map[int64]model.Topic, len(topics))
	for _, t := range topics {
		topicsByID[t.ID] = t
	}

	result := o.runOnce(ctx, scope, primary.Name, sources, accounts, topicsByID)
	return []model.RunResult{result}, nil
}

func (o *Orchestrator) runForTopic(ctx context.Context, scope model.Scope, topic model.Topic) (model.RunResult, error) {
	sources, err := o.store.ActiveSourcesByTopic(ctx, topic.ID)
	if err != nil {
		return model.RunResult{}, eris.Wrap(err, "pipeline: list topic sources")
	}
	accounts, err := o.store.AccountsByTopic(ctx, topic.ID)
	if err != nil {
		return model.RunResult{}, eris.Wrap(err, "pipeline: list topic accounts")
	}
	return o.runOnce(ctx, scope, topic.Name, sources, accounts, map[int64]model.Topic{topic.ID: topic}), nil
}

// runOnce is the single-article state machine: discover, guard,
// generate+publish, finalize. A crawl failure counts as "no article".
func (o *Orchestrator) runOnce(
	ctx context.Context,
	scope model.Scope,
	label string,
	sources []model.Source,
	accounts []model.Account,
	topicsByID map[int64]model.Topic,
) model.RunResult {
	article, err := o.crawler.CrawlFirst(ctx, sources)
	if err != nil {
		zap.L().Error("pipeline: discovery failed", zap.String("label", label), zap.Error(err))
	}
	if article == nil {
		o.notifier.NoContent(ctx, label)
		return model.RunResult{Scope: scope, Skipped: true, Reason: "no content"}
	}
	return o.processArticle(ctx, scope, label, *article, accounts, topicsByID)
}

// processArticle handles guard, publish and finalize for one article.
func (o *Orchestrator) processArticle(
	ctx context.Context,
	scope model.Scope,
	label string,
	article model.Article,
	accounts []model.Account,
	topicsByID map[int64]model.Topic,
) model.RunResult {
	result := model.RunResult{Scope: scope, Article: &article}
	log := zap.L().With(zap.String("label", label), zap.String("title", article.Title))

	seen, err := o.guard.AlreadySeen(ctx, article)
	if err != nil {
		log.Warn("pipeline: duplicate check failed, proceeding", zap.Error(err))
	}
	if seen {
		log.Info("pipeline: duplicate skipped")
		o.notifier.DuplicateSkipped(ctx, label, article.Title)
		result.Skipped = true
		result.Reason = "duplicate"
		return result
	}

	if len(accounts) == 0 {
		log.Warn("pipeline: no accounts to publish to")
		o.notifier.PublishFailure(ctx, label, article.Title, 0)
		result.Skipped = true
		result.Reason = "no accounts"
		return result
	}

	result.Outcomes = o.publishToAccounts(ctx, article, accounts, topicsByID)
	for _, outcome := range result.Outcomes {
		if outcome.Success {
			result.Published++
		}
	}

	// At least one success commits the dedupe guard; a fully failed run
	// stays retryable.
	if result.Published > 0 {
		if markErr := o.guard.MarkSeen(ctx, article); markErr != nil {
			log.Warn("pipeline: mark seen failed", zap.Error(markErr))
		}
		o.notifier.PublishSuccess(ctx, label, article.Title, result.Published, len(accounts))
		log.Info("pipeline: run complete",
			zap.Int("published", result.Published),
			zap.Int("accounts", len(accounts)),
		)
	} else {
		o.notifier.PublishFailure(ctx, label, article.Title, len(accounts))
		log.Error("pipeline: all accounts failed", zap.Int("accounts", len(accounts)))
	}
	return result
}

// publishToAccounts generates and publishes per account through the
// paced executor. Outcomes are captured per account in source order.
func (o *Orchestrator) publishToAccounts(
	ctx context.Context,
	article model.Article,
	accounts []model.Account,
	topicsByID map[int64]model.Topic,
) []model.PublishOutcome {
	cfg := pacing.Config{
		ItemDelay:   o.cfg.Pipeline.AccountDelay(),
		MaxAttempts: o.cfg.Pipeline.MaxAttempts,
		Backoff:     o.cfg.Pipeline.Backoff(),
		OnRetry:     pacing.RetryLogger("threads", "publish"),
	}

	results := pacing.ForEach(ctx, cfg, accounts, func(ctx context.Context, account model.Account) (string, error) {
		text := o.generator.ForAccount(ctx, article, account, o.topicFor(account, topicsByID))
		return o.publisher.Publish(ctx, account.UserID, account.AccessToken, text)
	})

	outcomes := make([]model.PublishOutcome, 0, len(results))
	for _, r := range results {
		outcome := model.PublishOutcome{AccountID: r.Item.UserID}
		if t := o.topicFor(r.Item, topicsByID); t != nil {
			outcome.Topic = t.Name
		}
		if r.Err != nil {
			outcome.Error = r.Err.Error()
			zap.L().Error("pipeline: publish failed",
				zap.String("account", r.Item.UserID),
				zap.Error(r.Err),
			)
		} else {
			outcome.Success = true
			outcome.PostID = r.Value
			if incErr := o.store.IncrementPostCount(ctx, r.Item.UserID); incErr != nil {
				zap.L().Warn("pipeline: increment post count failed",
					zap.String("account", r.Item.UserID),
					zap.Error(incErr),
				)
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (o *Orchestrator) topicFor(account model.Account, topicsByID map[int64]model.Topic) *model.Topic {
	if account.TopicID == nil {
		return nil
	}
	if t, ok := topicsByID[*account.TopicID]; ok {
		return &t
	}
	return nil
}

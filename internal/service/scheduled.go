package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/publisher"
)

const (
	ItemStatusPublished = "published"
	ItemStatusFailed    = "failed"

	MessageNothingDue = "No scheduled content to publish"
)

// Dispatcher publishes one content item to its target platform.
type Dispatcher interface {
	Dispatch(ctx context.Context, content publisher.Content) (*publisher.Result, error)
}

// ItemResult summarizes one processed item in a RunReport. Status is the
// counted outcome; Success is what the platform reported.
type ItemResult struct {
	ContentID string `json:"id"`
	Platform  string `json:"platform"`
	Status    string `json:"status"`
	Success   bool   `json:"success"`
	URL       string `json:"url,omitempty"`
	PostID    string `json:"postId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type RunReport struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Published int          `json:"published"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

type ScheduledPublisherOptions struct {
	// BatchSize caps the due rows taken per run, zero means all.
	BatchSize int
	// Concurrency above one processes items in parallel, never two items of
	// the same (user, platform) at once.
	Concurrency int
	Lock        RunLock
	Metrics     *Metrics
	Now         func() time.Time
}

// ScheduledPublisher runs one publish pass over due scheduled content.
type ScheduledPublisher struct {
	store      ContentStore
	dispatcher Dispatcher
	recorder   *Recorder
	logger     *zap.Logger
	opts       ScheduledPublisherOptions
}

func NewScheduledPublisher(store ContentStore, dispatcher Dispatcher, recorder *Recorder, logger *zap.Logger, opts ScheduledPublisherOptions) *ScheduledPublisher {
	if opts.Lock == nil {
		opts.Lock = noopRunLock{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &ScheduledPublisher{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
		opts:       opts,
	}
}

// Run selects due items and publishes each one. Per-item failures are
// reported in the RunReport; only a lock or fetch failure returns an error.
func (s *ScheduledPublisher) Run(ctx context.Context) (*RunReport, error) {
	release, err := s.opts.Lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	rows, err := s.store.DueContent(ctx, s.opts.Now(), s.opts.BatchSize)
	if err != nil {
		s.opts.Metrics.ObserveRun(time.Since(start), 0, "error")
		s.logger.Error("Failed to fetch scheduled content", zap.Error(err))
		return nil, err
	}

	if len(rows) == 0 {
		s.opts.Metrics.ObserveRun(time.Since(start), 0, "empty")
		s.logger.Debug("No scheduled content due")
		return &RunReport{
			Success: true,
			Message: MessageNothingDue,
			Results: []ItemResult{},
		}, nil
	}

	s.logger.Info("Publishing scheduled content",
		zap.Int("due", len(rows)),
		zap.Int("concurrency", s.opts.Concurrency))

	results := make([]ItemResult, len(rows))
	if s.opts.Concurrency == 1 {
		for i := range rows {
			results[i] = s.processItem(ctx, &rows[i])
		}
	} else {
		s.processConcurrently(ctx, rows, results)
	}

	report := &RunReport{Success: true, Results: results}
	for _, item := range results {
		if item.Status == ItemStatusPublished {
			report.Published++
		} else {
			report.Failed++
		}
	}
	report.Message = fmt.Sprintf("Processed %d scheduled items: %d published, %d failed",
		len(results), report.Published, report.Failed)

	duration := time.Since(start)
	s.opts.Metrics.ObserveRun(duration, len(rows), "completed")
	s.logger.Info("Scheduled publish run completed",
		zap.Int("published", report.Published),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", duration))

	return report, nil
}

// processConcurrently keeps items of one (user, platform) pair in a single
// goroutine, in scheduled order, since they share an integration row.
func (s *ScheduledPublisher) processConcurrently(ctx context.Context, rows []models.ContentStrategy, results []ItemResult) {
	groups := make(map[string][]int)
	var order []string
	for i := range rows {
		key := rows[i].UserID + "/" + publisher.FromContentStrategy(&rows[i]).Platform
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			for _, i := range indexes {
				results[i] = s.processItem(ctx, &rows[i])
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *ScheduledPublisher) processItem(ctx context.Context, row *models.ContentStrategy) (item ItemResult) {
	content := publisher.FromContentStrategy(row)
	item = ItemResult{ContentID: row.ID, Platform: content.Platform}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic while publishing",
				append(content.LogFields(), zap.Any("panic", r), zap.Stack("stack"))...)
			item = s.fail(ctx, content, item, fmt.Errorf("panic while publishing: %v", r))
		}
	}()

	result, err := s.dispatcher.Dispatch(ctx, content)
	if err != nil {
		return s.fail(ctx, content, item, err)
	}

	// The platform call has happened, so the outcome is recorded even when the
	// run is being cancelled.
	if _, err := s.recorder.Record(context.WithoutCancel(ctx), row, content, result); err != nil {
		if errors.Is(err, ErrResultNotAccepted) && result.Error != "" {
			err = fmt.Errorf("%w: %s", err, result.Error)
		}
		return s.fail(ctx, content, item, err)
	}

	item.Status = ItemStatusPublished
	item.Success = result.Success
	item.URL = result.URL
	item.PostID = result.PostID
	item.Error = result.Error

	outcome := publisher.OutcomeSuccess
	if !result.Success {
		outcome = publisher.OutcomeFailure
	}
	s.opts.Metrics.ObserveItem(content.Platform, outcome)
	return item
}

func (s *ScheduledPublisher) fail(ctx context.Context, content publisher.Content, item ItemResult, err error) ItemResult {
	s.logger.Error("Failed to publish scheduled content", append(content.LogFields(), zap.Error(err))...)

	// The annotation must land even when the run is being cancelled.
	s.recorder.RecordFailure(context.WithoutCancel(ctx), content.ID, err)
	s.opts.Metrics.ObserveItem(content.Platform, publisher.OutcomeError)

	item.Status = ItemStatusFailed
	item.Success = false
	item.URL = ""
	item.PostID = ""
	item.Error = err.Error()
	return item
}

package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/expiration"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/model"
	"github.com/pedrocodesforcoffee/builder-api-sub000/pkg/observability"
)

// DefaultMaxWorkers bounds how many projects are swept at once
const DefaultMaxWorkers = 4

// ProjectLister enumerates the projects to sweep
type ProjectLister interface {
	ListProjectIDs(ctx context.Context) ([]string, error)
}

// ExpirationService finds due notifications and records sent ones
type ExpirationService interface {
	MembershipsRequiringNotification(ctx context.Context, projectID string) ([]expiration.Notification, error)
	MarkNotificationSent(ctx context.Context, userID, projectID string, kind model.NotificationKind) (bool, error)
}

// Notifier delivers one expiration notification
type Notifier interface {
	Notify(ctx context.Context, n expiration.Notification) error
}

// Result summarizes one sweep
type Result struct {
	RunID          string        `json:"run_id"`
	Projects       int           `json:"projects"`
	Sent           int           `json:"sent"`
	AlreadySent    int           `json:"already_sent"`
	Failed         int           `json:"failed"`
	FailedProjects []string      `json:"failed_projects,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Sweeper sends every due expiration notification across all projects
type Sweeper struct {
	projects   ProjectLister
	service    ExpirationService
	notifier   Notifier
	maxWorkers int
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithMaxWorkers bounds sweep concurrency
func WithMaxWorkers(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Sweeper) { s.metrics = metrics }
}

// NewSweeper creates a new sweeper
func NewSweeper(projects ProjectLister, service ExpirationService, notifier Notifier, opts ...Option) *Sweeper {
	s := &Sweeper{
		projects:   projects,
		service:    service,
		notifier:   notifier,
		maxWorkers: DefaultMaxWorkers,
		logger:     observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every project once. A notification is marked sent only after
// delivery succeeds, so failed deliveries are retried by the next run.
// Failures of single projects are counted and logged; Run itself fails only
// when projects cannot be listed or ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.New().String()}
	logger := s.logger.WithField("run_id", result.RunID)

	projectIDs, err := s.projects.ListProjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	result.Projects = len(projectIDs)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.maxWorkers)

	var mu sync.Mutex
	for _, projectID := range projectIDs {
		projectID := projectID
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			sent, already, failed, err := s.sweepProject(ctx, projectID)

			mu.Lock()
			defer mu.Unlock()
			result.Sent += sent
			result.AlreadySent += already
			result.Failed += failed
			if err != nil {
				result.FailedProjects = append(result.FailedProjects, projectID)
				logger.WithField("project_id", projectID).WithError(err).Error("failed to sweep project")
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	logger.WithFields(map[string]interface{}{
		"projects":     result.Projects,
		"sent":         result.Sent,
		"already_sent": result.AlreadySent,
		"failed":       result.Failed,
		"duration_ms":  result.Duration.Milliseconds(),
	}).Info("expiration notification sweep completed")
	return result, nil
}

func (s *Sweeper) sweepProject(ctx context.Context, projectID string) (sent, already, failed int, err error) {
	due, err := s.service.MembershipsRequiringNotification(ctx, projectID)
	if err != nil {
		return 0, 0, 0, err
	}

	for _, n := range due {
		kind := string(n.Kind)
		userID := n.Membership.UserID
		logger := s.logger.WithAccess(userID, projectID).WithField("kind", kind)

		if err := s.notifier.Notify(ctx, n); err != nil {
			failed++
			s.metrics.ObserveNotification(kind, "failed")
			logger.WithError(err).Warn("failed to deliver expiration notification")
			continue
		}

		changed, err := s.service.MarkNotificationSent(ctx, userID, projectID, n.Kind)
		if err != nil {
			failed++
			s.metrics.ObserveNotification(kind, "failed")
			logger.WithError(err).Warn("failed to record expiration notification")
			continue
		}
		if !changed {
			// another sweeper recorded it first
			already++
			s.metrics.ObserveNotification(kind, "duplicate")
			continue
		}
		sent++
		s.metrics.ObserveNotification(kind, "sent")
	}
	return sent, already, failed, nil
}

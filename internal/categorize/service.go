package categorize

import (
	"context"

	"github.com/oversight-hq/oversight/internal/logx"
)

// Job is one application awaiting a category.
type Job struct {
	ApplicationID string
	Name          string
	Scopes        []string
}

// Store is the write-back surface the service needs.
type Store interface {
	UpdateApplicationCategory(appID, category string) error
}

// Service consumes categorization jobs asynchronously and writes categories
// back to the store. Producers never block: when the queue is full the job
// is dropped and the next sync re-enqueues the application.
type Service struct {
	store   Store
	matcher *Matcher
	jobs    chan Job
	done    chan struct{}
}

// NewService builds a categorization worker with a bounded queue.
func NewService(store Store, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Service{
		store:   store,
		matcher: NewMatcher(),
		jobs:    make(chan Job, queueSize),
		done:    make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-s.jobs:
				category := s.matcher.Categorize(job.Name, job.Scopes)
				if err := s.store.UpdateApplicationCategory(job.ApplicationID, category); err != nil {
					logx.Errorf("categorize: write back %s: %v", job.ApplicationID, err)
					continue
				}
				logx.Debugf("categorize: %s -> %s", job.Name, category)
			}
		}
	}()
}

// Enqueue submits a job without blocking.
func (s *Service) Enqueue(job Job) {
	select {
	case s.jobs <- job:
	default:
		logx.Warnf("categorize: queue full, dropping %s", job.ApplicationID)
	}
}

// Wait blocks until the worker has exited (after ctx cancellation).
func (s *Service) Wait() {
	<-s.done
}

package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

// Scheduler triggers periodic ingestion runs according to a cron spec.
// Runs are not mutually excluded across replicas; the index upsert is
// idempotent so overlapping runs waste work but stay correct.
type Scheduler struct {
	pipeline IngestService
	expr     *cronexpr.Expression
	logger   *log.Logger

	mu      sync.Mutex
	stop    chan struct{}
	running bool
	next    time.Time
}

func NewScheduler(pipeline IngestService, cronSpec string) (*Scheduler, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		pipeline: pipeline,
		expr:     expr,
		logger:   log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.next = s.expr.Next(time.Now())
	go s.loop(s.stop)
}

func (s *Scheduler) loop(stop chan struct{}) {
	for {
		s.mu.Lock()
		next := s.next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		s.next = s.expr.Next(time.Now())
		s.mu.Unlock()

		if _, err := s.pipeline.Run(context.Background(), false); err != nil {
			s.logger.Printf("scheduled ingestion failed: %v", err)
		}
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled trigger time, zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.next
}

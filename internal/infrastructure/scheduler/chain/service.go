package chainscheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ftso-network/ftso/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPollInterval = 2 * time.Second
	requestTimeout      = 5 * time.Second
)

// service runs tasks against the timestamp of the latest block rather than
// the local clock. Tasks fire on the first poll that sees a block at or past
// their time.
type service struct {
	chain        ports.ChainReader
	pollInterval time.Duration

	lock  *sync.Mutex
	tasks map[int64][]func()

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewScheduler(chain ports.ChainReader, pollInterval time.Duration) (ports.SchedulerService, error) {
	if chain == nil {
		return nil, fmt.Errorf("missing chain reader")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &service{
		chain:        chain,
		pollInterval: pollInterval,
		lock:         &sync.Mutex{},
		tasks:        make(map[int64][]func()),
		stopCh:       make(chan struct{}),
	}, nil
}

func (s *service) Start() {
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				tasks, err := s.popTasks()
				if err != nil {
					log.WithError(err).Warn("failed to fetch latest block time")
					continue
				}

				if len(tasks) > 0 {
					log.Debugf("running %d scheduled tasks", len(tasks))
				}
				for _, task := range tasks {
					go task()
				}
			}
		}
	}()
}

func (s *service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *service) Unit() ports.TimeUnit {
	return ports.ChainTime
}

func (s *service) AfterNow(at int64) bool {
	now, err := s.latestBlockTime()
	if err != nil {
		return false
	}
	return at > now
}

func (s *service) ScheduleTaskOnce(at int64, task func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tasks[at] = append(s.tasks[at], task)
	return nil
}

func (s *service) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	count := 0
	for _, scheduled := range s.tasks {
		count += len(scheduled)
	}
	return count
}

func (s *service) popTasks() ([]func(), error) {
	now, err := s.latestBlockTime()
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tasks := make([]func(), 0)
	for at, scheduled := range s.tasks {
		if at > now {
			continue
		}
		tasks = append(tasks, scheduled...)
		delete(s.tasks, at)
	}
	return tasks, nil
}

func (s *service) latestBlockTime() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	t, err := s.chain.LatestBlockTime(ctx)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

package timescheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/ftso-network/ftso/internal/core/ports"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// service fires tasks on the local clock. Phase deadlines are fractions of
// the round duration, so delays are computed with sub-second precision even
// though the task time is in unix seconds.
type service struct {
	scheduler *gocron.Scheduler

	lock *sync.Mutex
	jobs map[*gocron.Job]struct{}
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{
		scheduler: svc,
		lock:      &sync.Mutex{},
		jobs:      make(map[*gocron.Job]struct{}),
	}
}

func (s *service) Unit() ports.TimeUnit {
	return ports.UnixTime
}

func (s *service) AfterNow(at int64) bool {
	return time.Unix(at, 0).After(time.Now())
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
	s.scheduler.Clear()

	s.lock.Lock()
	defer s.lock.Unlock()
	s.jobs = make(map[*gocron.Job]struct{})
}

func (s *service) ScheduleTaskOnce(at int64, task func()) error {
	delay := time.Until(time.Unix(at, 0))
	if delay < -time.Second {
		return fmt.Errorf("cannot schedule task in the past")
	}
	if delay <= 0 {
		go task()
		return nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	var job *gocron.Job
	job, err := s.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(func() {
		s.done(&job)
		task()
	})
	if err != nil {
		return err
	}
	s.jobs[job] = struct{}{}

	log.Tracef("scheduled task at %d (in %s)", at, delay.Round(time.Millisecond))
	return nil
}

func (s *service) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.jobs)
}

func (s *service) done(ref **gocron.Job) {
	s.lock.Lock()
	defer s.lock.Unlock()

	job := *ref
	if _, ok := s.jobs[job]; !ok {
		return
	}
	delete(s.jobs, job)
	s.scheduler.RemoveByReference(job)
}

package application

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type lane struct {
	id    uint64
	tasks chan func()
	done  chan struct{}
}

// laneSet runs the tasks of an id one at a time and in submission order,
// while tasks of different ids run concurrently. A lane is a goroutine fed by
// a buffered channel, so dispatching blocks only while the lane is full.
type laneSet struct {
	name string
	size int

	lock        sync.Mutex
	lanes       map[uint64]*lane
	prunedBelow uint64
	closed      bool
	wg          sync.WaitGroup
}

func newLaneSet(name string, size int) *laneSet {
	return &laneSet{
		name:  name,
		size:  size,
		lanes: make(map[uint64]*lane),
	}
}

// dispatch queues the task on the lane of the given id. It returns false if
// the task was abandoned because of shutdown or because the lane got closed.
func (s *laneSet) dispatch(ctx context.Context, id uint64, task func()) bool {
	l, err := s.get(id)
	if err != nil {
		log.WithError(err).Debugf("dropping task for %s %d", s.name, id)
		return false
	}

	select {
	case l.tasks <- task:
		return true
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// prune closes the lanes of every id below the given one. Queued tasks of a
// closed lane are dropped and those ids never get a lane again.
func (s *laneSet) prune(belowId uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if belowId > s.prunedBelow {
		s.prunedBelow = belowId
	}

	for id, l := range s.lanes {
		if id < belowId {
			close(l.done)
			delete(s.lanes, id)
		}
	}
}

func (s *laneSet) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.lanes)
}

// close stops every lane and waits for the running tasks to return.
func (s *laneSet) close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	for id, l := range s.lanes {
		close(l.done)
		delete(s.lanes, id)
	}
	s.lock.Unlock()

	s.wg.Wait()
}

func (s *laneSet) get(id uint64) (*lane, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%s lanes closed", s.name)
	}
	if id < s.prunedBelow {
		return nil, fmt.Errorf("%s %d already pruned", s.name, id)
	}
	if l, ok := s.lanes[id]; ok {
		return l, nil
	}

	l := &lane{
		id:    id,
		tasks: make(chan func(), s.size),
		done:  make(chan struct{}),
	}
	s.lanes[id] = l
	s.wg.Add(1)
	go s.run(l)
	return l, nil
}

func (s *laneSet) run(l *lane) {
	defer s.wg.Done()

	for {
		select {
		case <-l.done:
			return
		case task := <-l.tasks:
			s.exec(l, task)
		}
	}
}

func (s *laneSet) exec(l *lane, task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in %s %d lane: %v", s.name, l.id, r)
		}
	}()
	task()
}

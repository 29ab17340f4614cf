package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

var (
	ErrQueueFull   = errors.New("scan queue is full")
	ErrQueueClosed = errors.New("scan queue is closed")
)

// scanRequest is one unit of work for the worker pool.
type scanRequest struct {
	filter      *models.Filter
	lease       *lease
	manual      bool
	scheduledAt time.Time
}

// jobQueue is a two-lane bounded queue: manual "search now" requests are
// drained before scheduled-but-due jobs when workers are saturated.
type jobQueue struct {
	manual    chan *scanRequest
	scheduled chan *scanRequest
	closed    bool
	mu        sync.RWMutex
}

func newJobQueue(size int) *jobQueue {
	if size <= 0 {
		size = 64
	}
	return &jobQueue{
		manual:    make(chan *scanRequest, size),
		scheduled: make(chan *scanRequest, size),
	}
}

// Push enqueues a request without blocking. A full lane returns
// ErrQueueFull so the caller can release the lease and try again next tick.
func (q *jobQueue) Push(req *scanRequest) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	lane := q.scheduled
	if req.manual {
		lane = q.manual
	}

	select {
	case lane <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop blocks until a request is available or stop closes, preferring the
// manual lane.
func (q *jobQueue) Pop(stop <-chan struct{}) (*scanRequest, bool) {
	// Drain manual work first without blocking.
	select {
	case req := <-q.manual:
		return req, true
	default:
	}

	select {
	case req := <-q.manual:
		return req, true
	case req := <-q.scheduled:
		return req, true
	case <-stop:
		return nil, false
	}
}

func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
}

func (q *jobQueue) Len() int {
	return len(q.manual) + len(q.scheduled)
}

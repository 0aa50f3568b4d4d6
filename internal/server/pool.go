package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type job struct {
	fn   func()
	done chan any
}

// Pool is a fixed set of worker goroutines. The size is fixed at
// construction and every worker is spawned before NewPool returns.
type Pool struct {
	size   int
	jobs   chan job
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	active atomic.Int32
}

// NewPool spawns size workers (at least one). onStart, if set, is called by
// each worker as it becomes active.
func NewPool(size int, onStart func(id, size int)) *Pool {
	p := newPool(size)
	p.spawn(onStart)
	return p
}

// newPool returns a Pool with no workers yet; jobs block until spawn.
func newPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:   size,
		jobs:   make(chan job),
		closed: make(chan struct{}),
	}
}

func (p *Pool) spawn(onStart func(id, size int)) {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.work(i, onStart)
	}
}

func (p *Pool) work(id int, onStart func(id, size int)) {
	defer p.wg.Done()
	p.active.Add(1)
	defer p.active.Add(-1)

	if onStart != nil {
		onStart(id, p.size)
	}

	for {
		select {
		case <-p.closed:
			return
		case j := <-p.jobs:
			j.done <- run(j.fn)
		}
	}
}

func run(fn func()) (rec any) {
	defer func() { rec = recover() }()
	fn()
	return nil
}

// Submit runs fn on a worker and waits for it to finish. A panic in fn is
// re-raised on the calling goroutine.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	j := job{fn: fn, done: make(chan any, 1)}

	select {
	case <-p.closed:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- j:
	}

	if rec := <-j.done; rec != nil {
		panic(rec)
	}
	return nil
}

// Size returns the number of workers the pool was provisioned with.
func (p *Pool) Size() int { return p.size }

// Active returns the number of running workers.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Close stops the workers once their current jobs finish.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.closed) })
	p.wg.Wait()
}

// Middleware hands the rest of the handler chain to a pool worker. The
// request goroutine blocks until the worker is done, so the gin.Context is
// never used concurrently.
func (p *Pool) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := p.Submit(c.Request.Context(), c.Next)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"error":  "no worker available",
			})
		}
	}
}

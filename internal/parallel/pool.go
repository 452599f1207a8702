package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of goroutines that execute indexed jobs, one job
// per block row of an encode dispatch.
//
// Each worker owns a queue and steals from its neighbors when that queue
// runs dry, so rows that take longer (refinement iterations converge at
// different rates) do not leave workers idle.
//
// Pool is safe for concurrent use. Concurrent Dispatch calls share the
// workers.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// mu keeps Close from stopping workers while Dispatch is queueing.
	mu sync.RWMutex

	// dispatched counts jobs handed to workers, for diagnostics.
	dispatched atomic.Int64
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			job()
		default:
			if job := p.steal(id); job != nil {
				job()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case job := <-own:
				job()
			}
		}
	}
}

func (p *Pool) drain(q chan func()) {
	for {
		select {
		case job := <-q:
			job()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case job := <-p.queues[i]:
			return job
		default:
		}
	}
	return nil
}

// Dispatch runs fn(0) .. fn(n-1) across the workers and waits for all of
// them. After Close the jobs run on the calling goroutine, so Dispatch
// always completes its work.
func (p *Pool) Dispatch(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		for i := range n {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		p.queues[i%p.workers] <- func() {
			defer wg.Done()
			fn(i)
		}
		p.dispatched.Add(1)
	}
	p.mu.RUnlock()
	wg.Wait()
}

// Close stops the workers after their queued jobs finish.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// IsRunning reports whether the pool still hands jobs to workers.
func (p *Pool) IsRunning() bool { return p.running.Load() }

// Dispatched returns how many jobs have been queued to workers.
func (p *Pool) Dispatched() int64 { return p.dispatched.Load() }

package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds Close when New is given no timeout.
const DefaultTimeout = 10 * time.Second

// Sequence runs registered handlers once, phase by phase.
type Sequence struct {
	timeout    time.Duration
	onProgress func(Result)

	mu       sync.Mutex
	handlers []registration
	once     sync.Once
	results  []Result
	err      error
}

// New creates a sequence. onProgress, when set, is called as each handler
// finishes and may be called concurrently.
func New(timeout time.Duration, onProgress func(Result)) *Sequence {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sequence{timeout: timeout, onProgress: onProgress}
}

// Add registers a handler. Handlers added after the sequence ran are ignored.
func (s *Sequence) Add(name string, phase int, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, registration{name: name, phase: phase, handler: h})
}

// Close runs the sequence bounded by the configured timeout.
func (s *Sequence) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.Run(ctx)
}

// Run executes every phase in order. Only the first call does any work;
// later calls return the same error.
func (s *Sequence) Run(ctx context.Context) error {
	s.once.Do(func() {
		results, err := s.run(ctx)
		s.mu.Lock()
		s.results, s.err = results, err
		s.mu.Unlock()
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Results returns the per-handler outcomes, or nil before Run.
func (s *Sequence) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

func (s *Sequence) run(ctx context.Context) ([]Result, error) {
	s.mu.Lock()
	handlers := append([]registration(nil), s.handlers...)
	s.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var (
		results []Result
		err     error
	)
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			return results, ErrTimeout
		}
		for _, r := range s.runPhase(ctx, group) {
			results = append(results, r)
			if r.Err != nil && err == nil {
				err = fmt.Errorf("%w: %s: %v", ErrHandlerFailed, r.Name, r.Err)
			}
		}
	}
	return results, err
}

func (s *Sequence) runPhase(ctx context.Context, group []registration) []Result {
	results := make([]Result, len(group))
	var wg sync.WaitGroup
	for i, reg := range group {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			start := time.Now()
			err := reg.handler(ctx)
			results[i] = Result{Name: reg.name, Phase: reg.phase, Duration: time.Since(start), Err: err}
			if s.onProgress != nil {
				s.onProgress(results[i])
			}
		}(i, reg)
	}
	wg.Wait()
	return results
}

// groupByPhase splits handlers, already sorted by phase, into runs of equal
// phase.
func groupByPhase(handlers []registration) [][]registration {
	var groups [][]registration
	for i, h := range handlers {
		if i == 0 || h.phase != handlers[i-1].phase {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], h)
	}
	return groups
}

// CancelOnSignal calls cancel on the first SIGINT or SIGTERM. The returned
// function stops listening.
func CancelOnSignal(cancel context.CancelFunc) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

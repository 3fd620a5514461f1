package workflow

import (
	"sync"
	"time"

	"fieldline/internal/clock"
)

// sampler calls tick on every interval until stopped. stop is the only way
// out and may be called any number of times, including on a nil sampler.
type sampler struct {
	ticker *clock.Ticker
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func startSampler(c clock.Clock, every time.Duration, tick func(time.Time)) *sampler {
	s := &sampler{
		ticker: c.NewTicker(every),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(tick)
	return s
}

func (s *sampler) run(tick func(time.Time)) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case at := <-s.ticker.C:
			select {
			case <-s.quit:
				return
			default:
			}
			tick(at)
		}
	}
}

// stop halts the ticker and waits for the goroutine to exit. It must not
// be called while holding a lock that tick acquires.
func (s *sampler) stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.quit)
	})
	<-s.done
}

package engine

import (
	"time"

	"k8s.io/utils/clock"
)

// tickPeriod is the fixed interval between admission attempts for the requested rate.
func tickPeriod(batchesPerSecond int) time.Duration {
	periodMs := 1000 / batchesPerSecond
	if periodMs < 1 {
		periodMs = 1
	}
	return time.Duration(periodMs) * time.Millisecond
}

// scheduler calls onTick once immediately and then once per period until onTick returns false or stop
// is closed. It owns ticker and stops it on exit.
type scheduler struct {
	ticker clock.Ticker
	onTick func() bool
	stop   chan struct{}
	done   chan struct{}
}

func newScheduler(clk clock.WithTicker, period time.Duration, onTick func() bool) *scheduler {
	return &scheduler{
		ticker: clk.NewTicker(period),
		onTick: onTick,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *scheduler) Run() {
	defer close(s.done)
	defer s.ticker.Stop()

	if !s.onTick() {
		return
	}
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C():
			// A stop requested while a tick was pending wins.
			select {
			case <-s.stop:
				return
			default:
			}
			if !s.onTick() {
				return
			}
		}
	}
}

// Stop halts the scheduler and waits for the current tick, if any, to return.
func (s *scheduler) Stop() {
	close(s.stop)
	<-s.done
}

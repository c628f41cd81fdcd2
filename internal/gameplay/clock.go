package gameplay

import (
	"sync"
	"time"
)

// Ticker is the periodic source driving a side's clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker { return stdTicker{t: time.NewTicker(d)} }

// clock runs one side's countdown on its own goroutine until halted.
type clock struct {
	side   Side
	ticker Ticker
	stop   chan struct{}
	once   sync.Once
}

func startClock(side Side, newTicker TickerFunc, every time.Duration, onTick func(*clock)) *clock {
	c := &clock{side: side, ticker: newTicker(every), stop: make(chan struct{})}
	go c.run(onTick)
	return c
}

func (c *clock) run(onTick func(*clock)) {
	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.C():
			select {
			case <-c.stop:
				return
			default:
			}
			onTick(c)
		}
	}
}

// halt cancels the ticker. It does not wait for an in-flight tick; the session discards ticks
// from clocks it no longer owns.
func (c *clock) halt() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		close(c.stop)
		c.ticker.Stop()
	})
}

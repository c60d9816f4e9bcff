package clock

import (
	"time"

	"github.com/cuemby/mcci/pkg/types"
)

// Clock abstracts the time source. Production code injects Real(); tests
// inject Fake() and move time by hand.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. C has capacity 1; ticks are dropped when the
// consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Stamp returns c's current time as a subscription timestamp.
func Stamp(c Clock) types.Time { return FromTime(c.Now()) }

// FromTime converts t to milliseconds since the Unix epoch. Times before the
// epoch map to zero.
func FromTime(t time.Time) types.Time {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return types.Time(ms)
}

// ToTime converts a timestamp back to a time.Time in UTC.
func ToTime(t types.Time) time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

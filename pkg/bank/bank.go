package bank

import (
	"errors"
	"fmt"
	"iter"

	"github.com/cuemby/mcci/pkg/fibheap"
	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrClientOutOfRange is returned for client ids at or above the bank's client limit.
	ErrClientOutOfRange = errors.New("bank: client id out of range")

	// ErrEmpty is returned when the nearest timeout of an empty bank is requested.
	ErrEmpty = errors.New("bank: no outstanding requests")

	// ErrInconsistent means the key index and the timeout heap disagree.
	ErrInconsistent = errors.New("bank: key index and timeouts disagree")
)

// Lookup fully qualifies a subscription: the key set it was filed under and
// the client that owns it.
type Lookup[S any] struct {
	Keys   S
	Client types.ClientID
}

// index maps a key set to the clients subscribed under it. Implementations
// differ in how many hash levels the key set is spread over.
type index[S any] interface {
	clients(s S) *clientMap
	add(s S, c types.ClientID, h fibheap.Handle)
	removeClient(s S, c types.ClientID) (fibheap.Handle, bool)
	removeKey(s S)
	keyCount() int
}

// Bank holds outstanding requests filed by key set and client, ordered by
// expiry. A (key set, client) pair has at most one live entry; adding it again
// only moves its expiry. The number of live entries per client is tracked for
// quota accounting.
//
// Bank is not safe for concurrent use.
type Bank[S any] struct {
	name        string
	timeouts    *fibheap.Heap[types.Time, Lookup[S]]
	keys        index[S]
	outstanding []uint32
	logger      zerolog.Logger
}

type options struct {
	logger zerolog.Logger
}

// Option configures a Bank.
type Option func(*options)

// WithLogger sets the logger for the bank and its timeout heap.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newBank[S any](name string, maxClients int, keys index[S], opts []Option) *Bank[S] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("bank", name).Logger()
	return &Bank[S]{
		name:        name,
		timeouts:    fibheap.New[types.Time, Lookup[S]](fibheap.WithLogger(logger)),
		keys:        keys,
		outstanding: make([]uint32, maxClients),
		logger:      logger,
	}
}

// Name returns the label the bank was created with.
func (b *Bank[S]) Name() string { return b.name }

// MaxClients returns the number of client ids the bank accepts.
func (b *Bank[S]) MaxClients() int { return len(b.outstanding) }

// Len returns the number of live subscriptions.
func (b *Bank[S]) Len() int { return b.timeouts.Len() }

// Empty reports whether the bank holds no subscriptions.
func (b *Bank[S]) Empty() bool { return b.timeouts.Empty() }

// KeyCount returns the number of distinct key sets with live subscriptions.
func (b *Bank[S]) KeyCount() int { return b.keys.keyCount() }

func (b *Bank[S]) checkClient(c types.ClientID) error {
	if int(c) >= len(b.outstanding) {
		return fmt.Errorf("%w: %d (max %d)", ErrClientOutOfRange, c, len(b.outstanding)-1)
	}
	return nil
}

// Add files a subscription for client c under s expiring at expiry. If one
// already exists its expiry is moved in place, earlier or later.
func (b *Bank[S]) Add(s S, c types.ClientID, expiry types.Time) error {
	if err := b.checkClient(c); err != nil {
		return err
	}
	if m := b.keys.clients(s); m != nil {
		if h, ok := m.get(c); ok {
			if err := b.timeouts.Rekey(h, expiry); err != nil {
				return fmt.Errorf("bank %s: extend %v for client %d: %w", b.name, s, c, err)
			}
			return nil
		}
	}

	h := b.timeouts.Insert(expiry, Lookup[S]{Keys: s, Client: c})
	b.keys.add(s, c, h)
	b.outstanding[c]++
	b.logger.Trace().Uint32(log.ClientIDKey, uint32(c)).Uint64("expiry", uint64(expiry)).Msgf("add %v", s)
	return nil
}

// MinimumTimeout returns the nearest expiry.
func (b *Bank[S]) MinimumTimeout() (types.Time, error) {
	h, err := b.timeouts.Minimum()
	if err != nil {
		return 0, ErrEmpty
	}
	return b.timeouts.Key(h), nil
}

// RemoveMinimum drops the subscription with the nearest expiry.
func (b *Bank[S]) RemoveMinimum() error {
	h, err := b.timeouts.Minimum()
	if err != nil {
		return ErrEmpty
	}
	l := b.timeouts.Value(h)
	keyed, ok := b.keys.removeClient(l.Keys, l.Client)
	if !ok || keyed != h {
		return fmt.Errorf("%w: %s %v client %d", ErrInconsistent, b.name, l.Keys, l.Client)
	}
	if err := b.timeouts.RemoveMinimum(); err != nil {
		return fmt.Errorf("bank %s: %w", b.name, err)
	}
	b.outstanding[l.Client]--
	return nil
}

// ExpireBefore removes every subscription whose expiry is earlier than now
// and returns how many were removed.
func (b *Bank[S]) ExpireBefore(now types.Time) (int, error) {
	n := 0
	for !b.timeouts.Empty() {
		expiry, err := b.MinimumTimeout()
		if err != nil {
			return n, err
		}
		if expiry >= now {
			break
		}
		if err := b.RemoveMinimum(); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		b.logger.Debug().Int("expired", n).Msg("expired subscriptions")
	}
	return n, nil
}

// RemoveByKey drops every subscription filed under s and returns how many
// were removed.
func (b *Bank[S]) RemoveByKey(s S) (int, error) {
	m := b.keys.clients(s)
	if m == nil {
		return 0, nil
	}
	removed := m.snapshot()
	b.keys.removeKey(s)
	for _, sub := range removed {
		if err := b.timeouts.Delete(sub.handle); err != nil {
			return 0, fmt.Errorf("bank %s: remove %v client %d: %w", b.name, s, sub.client, err)
		}
		b.outstanding[sub.client]--
	}
	return len(removed), nil
}

// Contains reports whether any client is subscribed under s.
func (b *Bank[S]) Contains(s S) bool {
	m := b.keys.clients(s)
	return m != nil && m.len() > 0
}

// ContainsClient reports whether client c is subscribed under s.
func (b *Bank[S]) ContainsClient(s S, c types.ClientID) bool {
	if m := b.keys.clients(s); m != nil {
		_, ok := m.get(c)
		return ok
	}
	return false
}

// Expiry returns when client c's subscription under s expires.
func (b *Bank[S]) Expiry(s S, c types.ClientID) (types.Time, bool) {
	if m := b.keys.clients(s); m != nil {
		if h, ok := m.get(c); ok {
			return b.timeouts.Key(h), true
		}
	}
	return 0, false
}

// OutstandingRequestCount returns the number of live subscriptions owned by c.
func (b *Bank[S]) OutstandingRequestCount(c types.ClientID) uint32 {
	if int(c) >= len(b.outstanding) {
		return 0
	}
	return b.outstanding[c]
}

// Subscribers iterates over the clients subscribed under s in ascending id
// order. It yields nothing when s is unknown.
func (b *Bank[S]) Subscribers(s S) iter.Seq[types.ClientID] {
	return func(yield func(types.ClientID) bool) {
		m := b.keys.clients(s)
		if m == nil {
			return
		}
		m.each(func(c types.ClientID, _ fibheap.Handle) bool {
			return yield(c)
		})
	}
}

// Validate checks the timeout heap and that every heap entry is indexed.
func (b *Bank[S]) Validate() error {
	if err := b.timeouts.Validate(); err != nil {
		return err
	}
	var total uint32
	for _, n := range b.outstanding {
		total += n
	}
	if int(total) != b.timeouts.Len() {
		return fmt.Errorf("%w: %s counts %d requests, heap holds %d", ErrInconsistent, b.name, total, b.timeouts.Len())
	}
	return nil
}

package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/metrics"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotAttached is returned when a packet is addressed to a client with
	// no open session.
	ErrNotAttached = errors.New("hub: client not attached")

	// ErrBufferFull is returned when a session's buffer cannot take another
	// envelope. The envelope is dropped.
	ErrBufferFull = errors.New("hub: session buffer full")
)

// Kind identifies the payload of an Envelope.
type Kind string

const (
	KindData    Kind = "data"
	KindAck     Kind = "ack"
	KindForward Kind = "forward"
	// KindAttached opens every wire stream so the client knows its session
	// is registered. The hub itself never queues one.
	KindAttached Kind = "attached"
)

// Envelope carries one packet to an attached session.
type Envelope struct {
	Kind Kind `cbor:"kind"`
	// Client is the requesting client of a forwarded request.
	Client  types.ClientID    `cbor:"client,omitempty"`
	Data    *types.Data       `cbor:"data,omitempty"`
	Ack     *types.Acceptance `cbor:"ack,omitempty"`
	Request *types.Request    `cbor:"request,omitempty"`
}

// DefaultBuffer is the per-session buffer used when none is configured.
const DefaultBuffer = 64

// Session is one attachment of a client. Envelopes arrive on C until the
// session is detached or replaced, at which point C is closed.
type Session struct {
	ID     string
	Client types.ClientID
	Peer   bool
	C      <-chan *Envelope

	ch chan *Envelope
}

// Hub implements server.Transport over in-process channels. Each client has
// at most one session; peers additionally receive forwarded requests.
//
// Hub is safe for concurrent use. Sends never block: a full session drops
// the envelope.
type Hub struct {
	mu       sync.RWMutex
	sessions map[types.ClientID]*Session
	buffer   int
	logger   zerolog.Logger
}

// New creates a hub whose sessions buffer up to buffer envelopes.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		sessions: make(map[types.ClientID]*Session),
		buffer:   buffer,
		logger:   log.WithComponent("hub"),
	}
}

func role(peer bool) string {
	if peer {
		return "peer"
	}
	return "client"
}

// Attach opens a session for c, replacing and closing any previous one.
func (h *Hub) Attach(c types.ClientID, peer bool) *Session {
	ch := make(chan *Envelope, h.buffer)
	s := &Session{
		ID:     uuid.New().String(),
		Client: c,
		Peer:   peer,
		C:      ch,
		ch:     ch,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.sessions[c]; ok {
		h.closeLocked(old)
		lg := log.WithClientID(h.logger, c)
		lg.Info().Str("session", old.ID).Msg("Session replaced")
	}
	h.sessions[c] = s
	metrics.SessionsActive.WithLabelValues(role(peer)).Inc()
	lg := log.WithClientID(h.logger, c)
	lg.Info().Str("session", s.ID).Bool("peer", peer).Msg("Session attached")
	return s
}

// Detach closes c's session if its id is still sessionID. It reports whether
// a session was closed; a stale id from a replaced session is ignored.
func (h *Hub) Detach(c types.ClientID, sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[c]
	if !ok || s.ID != sessionID {
		return false
	}
	delete(h.sessions, c)
	h.closeLocked(s)
	lg := log.WithClientID(h.logger, c)
	lg.Info().Str("session", s.ID).Msg("Session detached")
	return true
}

func (h *Hub) closeLocked(s *Session) {
	close(s.ch)
	metrics.SessionsActive.WithLabelValues(role(s.Peer)).Dec()
}

// Close detaches every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c, s := range h.sessions {
		delete(h.sessions, c)
		h.closeLocked(s)
	}
}

// Attached reports whether c has an open session.
func (h *Hub) Attached(c types.ClientID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[c]
	return ok
}

// SessionCount returns the number of open sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// offer hands env to s without blocking. Callers hold at least the read lock.
func (h *Hub) offer(s *Session, env *Envelope) error {
	select {
	case s.ch <- env:
		metrics.EnvelopesTotal.WithLabelValues(string(env.Kind), "sent").Inc()
		return nil
	default:
		metrics.EnvelopesTotal.WithLabelValues(string(env.Kind), "dropped").Inc()
		return fmt.Errorf("%w: client %d", ErrBufferFull, s.Client)
	}
}

func (h *Hub) send(c types.ClientID, env *Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[c]
	if !ok {
		metrics.EnvelopesTotal.WithLabelValues(string(env.Kind), "dropped").Inc()
		return fmt.Errorf("%w: %d", ErrNotAttached, c)
	}
	return h.offer(s, env)
}

// SendData queues d for client c.
func (h *Hub) SendData(c types.ClientID, d types.Data) error {
	return h.send(c, &Envelope{Kind: KindData, Data: &d})
}

// SendProductionAck queues a for provider c.
func (h *Hub) SendProductionAck(c types.ClientID, a types.Acceptance) error {
	return h.send(c, &Envelope{Kind: KindAck, Ack: &a})
}

// ForwardRequest passes r, made by client c, to every attached peer other
// than c. Peers with full buffers miss it; the first such failure is
// returned after every peer has been offered the request.
func (h *Hub) ForwardRequest(c types.ClientID, r types.Request) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var first error
	for id, s := range h.sessions {
		if !s.Peer || id == c {
			continue
		}
		if err := h.offer(s, &Envelope{Kind: KindForward, Client: c, Request: &r}); err != nil && first == nil {
			first = err
		}
	}
	return first
}

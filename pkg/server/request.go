package server

import (
	"math"

	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/types"
)

// Rejectable reports whether r names a revision without naming what it is a
// revision of: a revision with neither host nor variable, or a revision of a
// variable on every host.
func Rejectable(r types.Request) bool {
	return r.Revision > 0 &&
		((r.Host == 0 && r.Variable == 0) ||
			(r.Host == types.HostAny && r.Variable > 0))
}

// ProcessRequest files client c's request r and returns the client's quota
// afterwards.
//
// Malformed requests come back with Accepted false and a nil error. Requests
// that would exceed the client's quota are accepted and silently dropped, or
// truncated to the quota left. A timeout already in the past is still
// processed: re-submitting an existing subscription that way makes it expire
// at the next sweep.
func (s *Server) ProcessRequest(c types.ClientID, r types.Request) (types.Response, error) {
	if err := s.checkClient(c); err != nil {
		return types.Response{}, err
	}
	if Rejectable(r) {
		s.logger.Debug().Uint32(log.ClientIDKey, uint32(c)).Stringer("request", r).Msg("rejected request")
		return s.quota(c), nil
	}
	if r.Variable != 0 {
		if _, err := s.ordinal(r.Variable); err != nil {
			return s.quota(c), err
		}
	}

	var err error
	switch {
	case r.Host == types.HostAny && r.Variable == 0:
		err = s.all.Add(types.Everything, c, r.Timeout)
	case r.Host == types.HostAny:
		err = s.variable.Add(r.Variable, c, r.Timeout)
	case r.Variable == 0 && r.Revision == 0:
		err = s.subscribeHost(c, r)
	case r.Variable == 0:
		// a revision of nothing in particular on one host; nothing can match
		s.logger.Debug().Uint32(log.ClientIDKey, uint32(c)).Stringer("request", r).Msg("dropped request without variable")
	default:
		err = s.subscribeVariable(c, r)
	}

	resp := s.quota(c)
	resp.Accepted = true
	return resp, err
}

func (s *Server) subscribeHost(c types.ClientID, r types.Request) error {
	if s.FreeRemote(c) == 0 {
		s.logger.Debug().Uint32(log.ClientIDKey, uint32(c)).Msg("remote quota exhausted")
		return nil
	}
	host := s.resolve(r.Host)
	if err := s.host.Add(host, c, r.Timeout); err != nil {
		return err
	}
	if host != s.settings.NodeAddress {
		r.Host = host
		s.forward(c, r)
	}
	return nil
}

// window returns the revisions a request covers, limited to limit entries,
// starting at anchor and extending in the direction of quantity. The window
// never includes revision 0.
func window(anchor types.Revision, quantity int32, limit uint32) (first, last types.Revision, ok bool) {
	magnitude := uint32(quantity)
	if quantity < 0 {
		magnitude = uint32(-int64(quantity))
	}
	n := min(magnitude, limit)
	if n == 0 {
		return 0, 0, false
	}

	if quantity > 0 {
		first = max(anchor, 1)
		if uint64(first)+uint64(n)-1 > math.MaxUint32 {
			return first, math.MaxUint32, true
		}
		return first, first + types.Revision(n) - 1, true
	}

	if anchor == 0 {
		return 0, 0, false
	}
	last = anchor
	if uint32(last) < n {
		return 1, last, true
	}
	return last - types.Revision(n) + 1, last, true
}

// subscribeVariable handles requests naming one variable on one host, the
// only shape that can ask for specific revisions.
func (s *Server) subscribeVariable(c types.ClientID, r types.Request) error {
	host := s.resolve(r.Host)
	local := host == s.settings.NodeAddress
	r.Host = host

	ord, err := s.ordinal(r.Variable)
	if err != nil {
		return err
	}
	var current types.Revision
	if local {
		if current, err = s.authority.GetRevision(r.Variable); err != nil {
			return err
		}
	}

	needsForward := false

	if r.Revision == 0 {
		if s.FreeRemote(c) > 0 {
			hv := types.HostVar{Host: host, Variable: r.Variable}
			if err := s.hostVar.Add(hv, c, r.Timeout); err != nil {
				return err
			}
			needsForward = !local
		} else {
			s.logger.Debug().Uint32(log.ClientIDKey, uint32(c)).Msg("remote quota exhausted")
		}
	}

	anchor, limit := r.Revision, s.FreeRemote(c)
	if local {
		limit = s.FreeLocal(c)
		if anchor == 0 {
			anchor = current
		}
	}

	// the latest value of a remote variable is covered by the host+variable
	// subscription alone; its revision counter lives on the other node
	first, last, ok := window(anchor, r.Quantity, limit)
	if ok && (local || r.Revision > 0) {
		held := s.working[ord]
		for rev := first; ; rev++ {
			if local {
				if err := s.subscribeLocalRevision(c, r, rev, current, held); err != nil {
					return err
				}
				if held == nil {
					needsForward = true
				}
			} else {
				key := types.HostVarRev{Host: host, Variable: r.Variable, Revision: rev}
				if err := s.hostVarRev.Add(key, c, r.Timeout); err != nil {
					return err
				}
				needsForward = true
			}
			if rev == last {
				break
			}
		}
	}

	if needsForward {
		s.forward(c, r)
	}
	return nil
}

// subscribeLocalRevision files one revision of a local variable. Revisions
// already allocated are never produced again, so they are not filed; the one
// still held in the working set is delivered straight away.
func (s *Server) subscribeLocalRevision(c types.ClientID, r types.Request, rev, current types.Revision, held *types.Data) error {
	if rev <= current {
		if held != nil && held.Revision == rev {
			if err := s.transport.SendData(c, *held); err != nil {
				lg := log.WithClientID(s.logger, c)
				lg.Warn().Err(err).Stringer("data", held).Msg("delivery failed")
			}
		}
		return nil
	}
	return s.varRev.Add(types.VarRev{Variable: r.Variable, Revision: rev}, c, r.Timeout)
}

func (s *Server) forward(c types.ClientID, r types.Request) {
	if err := s.transport.ForwardRequest(c, r); err != nil {
		lg := log.WithClientID(s.logger, c)
		lg.Warn().Err(err).Stringer("request", r).Msg("forward failed")
	}
}

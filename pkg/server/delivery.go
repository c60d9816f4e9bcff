package server

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/types"
)

// ProcessProduction accepts a new value from local provider p: it allocates
// the next revision, stores the value in the working set and delivers it to
// every matching subscriber. The provider gets an Acceptance through the
// transport when it asked for one with a non-zero ResponseID.
func (s *Server) ProcessProduction(p types.ClientID, prod types.Production) (types.Acceptance, error) {
	if err := s.checkClient(p); err != nil {
		return types.Acceptance{}, err
	}
	ord, err := s.ordinal(prod.Variable)
	if err != nil {
		return types.Acceptance{}, err
	}
	rev, err := s.authority.IncRevision(prod.Variable)
	if err != nil {
		return types.Acceptance{}, fmt.Errorf("allocate revision for variable %d: %w", prod.Variable, err)
	}

	d := &types.Data{
		Host:     s.settings.NodeAddress,
		Variable: prod.Variable,
		Revision: rev,
		Payload:  bytes.Clone(prod.Payload),
	}
	s.working[ord] = d

	if _, err := s.deliver(p, *d); err != nil {
		return types.Acceptance{}, err
	}

	ack := types.Acceptance{ResponseID: prod.ResponseID, Revision: rev}
	if prod.ResponseID != 0 {
		if err := s.transport.SendProductionAck(p, ack); err != nil {
			lg := log.WithClientID(s.logger, p)
			lg.Warn().Err(err).Msg("acknowledgement failed")
		}
	}
	return ack, nil
}

// ProcessData routes a value relayed from another node. It delivers d once
// to every client whose subscriptions match it, then retires the
// subscriptions for exactly d's revision, and returns the number of clients
// delivered to. Values originating here only enter through
// ProcessProduction, so d.Host must name another node.
func (s *Server) ProcessData(provider types.ClientID, d types.Data) (int, error) {
	if d.Host == 0 || d.Host == types.HostAny || d.Host == s.settings.NodeAddress {
		return 0, fmt.Errorf("%w: host %d", ErrLocalOrigin, d.Host)
	}
	return s.deliver(provider, d)
}

// deliver fans d out to matching subscribers. Failed deliveries are logged
// and not retried.
func (s *Server) deliver(provider types.ClientID, d types.Data) (int, error) {
	local := d.Host == s.settings.NodeAddress
	hv := types.HostVar{Host: d.Host, Variable: d.Variable}
	vr := types.VarRev{Variable: d.Variable, Revision: d.Revision}
	hvr := types.HostVarRev{Host: d.Host, Variable: d.Variable, Revision: d.Revision}

	s.hits.Clear()
	for c := range s.all.Subscribers(types.Everything) {
		s.hits.Insert(c, struct{}{})
	}
	for c := range s.host.Subscribers(d.Host) {
		s.hits.Insert(c, struct{}{})
	}
	for c := range s.variable.Subscribers(d.Variable) {
		s.hits.Insert(c, struct{}{})
	}
	for c := range s.hostVar.Subscribers(hv) {
		s.hits.Insert(c, struct{}{})
	}
	if local {
		for c := range s.varRev.Subscribers(vr) {
			s.hits.Insert(c, struct{}{})
		}
	} else {
		for c := range s.hostVarRev.Subscribers(hvr) {
			s.hits.Insert(c, struct{}{})
		}
	}

	delivered := 0
	for c := range s.hits.Keys() {
		if err := s.transport.SendData(c, d); err != nil {
			lg := log.WithClientID(s.logger, c)
			lg.Warn().Err(err).Stringer("data", d).Msg("delivery failed")
			continue
		}
		delivered++
	}
	s.logger.Trace().
		Uint32("provider", uint32(provider)).
		Stringer("data", d).
		Int("delivered", delivered).
		Msg("data processed")

	var err error
	if local {
		_, err = s.varRev.RemoveByKey(vr)
	} else {
		_, err = s.hostVarRev.RemoveByKey(hvr)
	}
	if err != nil {
		lg := log.WithVariable(s.logger, d.Variable)
		lg.Error().Err(err).Stringer("data", d).Msg("failed to retire fulfilled subscriptions")
		return delivered, err
	}
	return delivered, nil
}

// EnforceTimeouts drops every subscription whose expiry is before now and
// returns how many were dropped. Each bank is swept on its own; an error in
// one does not stop the others.
func (s *Server) EnforceTimeouts(now types.Time) (int, error) {
	total := 0
	var errs []error
	for _, b := range s.banks() {
		n, err := b.ExpireBefore(now)
		total += n
		if err != nil {
			s.logger.Error().Err(err).Str("bank", b.Name()).Msg("timeout sweep failed")
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

package server

import (
	"errors"

	"github.com/cuemby/mcci/pkg/types"
)

// bankView is the part of a bank that does not depend on its key type.
type bankView interface {
	Name() string
	Len() int
	KeyCount() int
	OutstandingRequestCount(c types.ClientID) uint32
	ExpireBefore(now types.Time) (int, error)
	Validate() error
}

func (s *Server) banks() []bankView {
	return []bankView{s.all, s.host, s.variable, s.hostVar, s.varRev, s.hostVarRev}
}

// BankStats describes one bank.
type BankStats struct {
	Name          string `cbor:"name" json:"name"`
	Subscriptions int    `cbor:"subscriptions" json:"subscriptions"`
	Keys          int    `cbor:"keys" json:"keys"`
}

// ClientStats describes one client's subscriptions and quota.
type ClientStats struct {
	Client          types.ClientID    `cbor:"client" json:"client"`
	Outstanding     map[string]uint32 `cbor:"outstanding" json:"outstanding"`
	RemainingLocal  uint32            `cbor:"remaining_local" json:"remaining_local"`
	RemainingRemote uint32            `cbor:"remaining_remote" json:"remaining_remote"`
}

// Stats is a snapshot of the router state.
type Stats struct {
	NodeAddress types.NodeAddress `cbor:"node_address" json:"node_address"`
	Banks       []BankStats       `cbor:"banks" json:"banks"`
	Produced    int               `cbor:"produced" json:"produced"`
}

// Pending returns the number of live subscriptions across every bank.
func (s *Server) Pending() int {
	n := 0
	for _, b := range s.banks() {
		n += b.Len()
	}
	return n
}

// Stats returns per-bank subscription counts and the number of variables
// holding a value in the working set.
func (s *Server) Stats() Stats {
	st := Stats{NodeAddress: s.settings.NodeAddress}
	for _, b := range s.banks() {
		st.Banks = append(st.Banks, BankStats{Name: b.Name(), Subscriptions: b.Len(), Keys: b.KeyCount()})
	}
	for _, d := range s.working {
		if d != nil {
			st.Produced++
		}
	}
	return st
}

// ClientStats returns c's subscriptions per bank and its remaining quota.
func (s *Server) ClientStats(c types.ClientID) (ClientStats, error) {
	if err := s.checkClient(c); err != nil {
		return ClientStats{}, err
	}
	cs := ClientStats{
		Client:          c,
		Outstanding:     make(map[string]uint32, 6),
		RemainingLocal:  s.FreeLocal(c),
		RemainingRemote: s.FreeRemote(c),
	}
	for _, b := range s.banks() {
		cs.Outstanding[b.Name()] = b.OutstandingRequestCount(c)
	}
	return cs, nil
}

// Validate checks every bank's internal consistency.
func (s *Server) Validate() error {
	var errs []error
	for _, b := range s.banks() {
		if err := b.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

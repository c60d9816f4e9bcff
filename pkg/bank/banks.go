package bank

import (
	"github.com/cuemby/mcci/pkg/linearhash"
	"github.com/cuemby/mcci/pkg/types"
)

type identity[K linearhash.Key] struct{}

func (identity[K]) KeyOf(k K) K { return k }

type hostVarKeyer struct{}

func (hostVarKeyer) KeyOf(hv types.HostVar) uint64 { return hv.Pack() }

type varRevKeyer struct{}

func (varRevKeyer) Key1Of(vr types.VarRev) types.VariableID { return vr.Variable }
func (varRevKeyer) Key2Of(vr types.VarRev) types.Revision   { return vr.Revision }

type hostVarRevKeyer struct{}

func (hostVarRevKeyer) Key1Of(k types.HostVarRev) uint64         { return k.HostVar().Pack() }
func (hostVarRevKeyer) Key2Of(k types.HostVarRev) types.Revision { return k.Revision }

// The six subscription kinds kept by a router.
type (
	AllBank              = Bank[types.Wildcard]
	HostBank             = Bank[types.NodeAddress]
	VariableBank         = Bank[types.VariableID]
	HostVariableBank     = Bank[types.HostVar]
	VariableRevisionBank = Bank[types.VarRev]
	RemoteRevisionBank   = Bank[types.HostVarRev]
)

// NewAllBank creates the bank for promiscuous subscriptions, all filed under
// types.Everything.
func NewAllBank(maxClients int, opts ...Option) *AllBank {
	return NewOneKey[types.Wildcard, types.Wildcard, identity[types.Wildcard]]("all", maxClients, 1, opts...)
}

// NewHostBank creates the bank for subscriptions to everything a host produces.
func NewHostBank(maxClients, size int, opts ...Option) *HostBank {
	return NewOneKey[types.NodeAddress, types.NodeAddress, identity[types.NodeAddress]]("host", maxClients, size, opts...)
}

// NewVariableBank creates the bank for subscriptions to a variable from any host.
func NewVariableBank(maxClients, size int, opts ...Option) *VariableBank {
	return NewOneKey[types.VariableID, types.VariableID, identity[types.VariableID]]("var", maxClients, size, opts...)
}

// NewHostVariableBank creates the bank for subscriptions to one variable of one host.
func NewHostVariableBank(maxClients, size int, opts ...Option) *HostVariableBank {
	return NewOneKey[types.HostVar, uint64, hostVarKeyer]("hostvar", maxClients, size, opts...)
}

// NewVariableRevisionBank creates the bank for subscriptions to specific
// revisions of locally produced variables.
func NewVariableRevisionBank(maxClients, varSize, revSize int, opts ...Option) *VariableRevisionBank {
	return NewTwoKey[types.VarRev, types.VariableID, types.Revision, varRevKeyer]("varrev", maxClients, varSize, revSize, opts...)
}

// NewRemoteRevisionBank creates the bank for subscriptions to specific
// revisions of variables produced by other hosts.
func NewRemoteRevisionBank(maxClients, hostVarSize, revSize int, opts ...Option) *RemoteRevisionBank {
	return NewTwoKey[types.HostVarRev, uint64, types.Revision, hostVarRevKeyer]("hostvarrev", maxClients, hostVarSize, revSize, opts...)
}

package types

import (
	"fmt"
	"math"
)

// NodeAddress identifies a node (host) in the distribution network.
// Zero means "this node" in requests; HostAny matches every host.
type NodeAddress uint32

// VariableID identifies a variable defined by the schema. Zero is unspecified.
type VariableID uint32

// Revision numbers a produced value of a variable. Revisions start at 1 and
// increase strictly; zero means "current" in requests.
type Revision uint32

// ClientID identifies a locally connected client (subscriber or provider).
type ClientID uint32

// Time is an absolute instant in milliseconds since the Unix epoch. Request
// timeouts and subscription expiries are expressed in Time.
type Time uint64

// HostAny is the wildcard host address.
const HostAny NodeAddress = math.MaxUint32

// Wildcard is the key type of the promiscuous bank. It has a single value.
type Wildcard uint8

// Everything is the fixed key every promiscuous subscription is filed under.
const Everything Wildcard = 1

// HostVar names a variable on a specific host.
type HostVar struct {
	Host     NodeAddress
	Variable VariableID
}

// Pack folds the pair into a single collision-free integer key.
func (hv HostVar) Pack() uint64 {
	return uint64(hv.Host)<<32 | uint64(hv.Variable)
}

func (hv HostVar) String() string {
	return fmt.Sprintf("(host %d, var %d)", hv.Host, hv.Variable)
}

// VarRev names one revision of a locally produced variable.
type VarRev struct {
	Variable VariableID
	Revision Revision
}

func (vr VarRev) String() string {
	return fmt.Sprintf("(var %d, rev %d)", vr.Variable, vr.Revision)
}

// HostVarRev names one revision of a variable produced on a specific host.
type HostVarRev struct {
	Host     NodeAddress
	Variable VariableID
	Revision Revision
}

// HostVar drops the revision.
func (hvr HostVarRev) HostVar() HostVar {
	return HostVar{Host: hvr.Host, Variable: hvr.Variable}
}

func (hvr HostVarRev) String() string {
	return fmt.Sprintf("(host %d, var %d, rev %d)", hvr.Host, hvr.Variable, hvr.Revision)
}

// Request asks for updates of variables. The shape of the subscription is
// implied by which of Host, Variable and Revision are set.
type Request struct {
	Timeout  Time        `cbor:"timeout"`
	Host     NodeAddress `cbor:"host"`
	Variable VariableID  `cbor:"variable"`
	Revision Revision    `cbor:"revision"`
	// Quantity is the number of revisions wanted; its sign gives the
	// direction from the anchor revision.
	Quantity int32 `cbor:"quantity"`
}

func (r Request) String() string {
	return fmt.Sprintf("request(host=%d var=%d rev=%d qty=%d timeout=%d)",
		r.Host, r.Variable, r.Revision, r.Quantity, r.Timeout)
}

// Response reports whether a request was accepted and the quota the client
// has left afterwards.
type Response struct {
	Accepted                bool   `cbor:"accepted"`
	RequestsRemainingLocal  uint32 `cbor:"remaining_local"`
	RequestsRemainingRemote uint32 `cbor:"remaining_remote"`
}

// Data is one produced value of a variable, as delivered to subscribers.
type Data struct {
	Host     NodeAddress `cbor:"host"`
	Variable VariableID  `cbor:"variable"`
	Revision Revision    `cbor:"revision"`
	Payload  []byte      `cbor:"payload"`
}

func (d Data) String() string {
	return fmt.Sprintf("data(host=%d var=%d rev=%d len=%d)", d.Host, d.Variable, d.Revision, len(d.Payload))
}

// Production is a new value offered by a local provider.
type Production struct {
	Variable VariableID `cbor:"variable"`
	// ResponseID correlates the Acceptance sent back to the provider.
	// Zero means the provider does not want one.
	ResponseID uint32 `cbor:"response_id"`
	Payload    []byte `cbor:"payload"`
}

// Acceptance tells a provider which revision its production became.
type Acceptance struct {
	ResponseID uint32   `cbor:"response_id"`
	Revision   Revision `cbor:"revision"`
}

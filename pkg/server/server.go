package server

import (
	"errors"
	"fmt"

	"github.com/cuemby/mcci/pkg/bank"
	"github.com/cuemby/mcci/pkg/linearhash"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidSettings is returned by New for unusable settings.
	ErrInvalidSettings = errors.New("server: invalid settings")

	// ErrUnknownVariable is returned for variables the schema does not define.
	ErrUnknownVariable = errors.New("server: unknown variable")

	// ErrLocalOrigin is returned when relayed data claims this node as its
	// origin.
	ErrLocalOrigin = errors.New("server: relayed data claims local origin")
)

// RevisionAuthority hands out revision numbers for locally produced variables.
type RevisionAuthority interface {
	GetRevision(v types.VariableID) (types.Revision, error)
	IncRevision(v types.VariableID) (types.Revision, error)
}

// SchemaRegistry maps variable ids to dense working-set ordinals.
type SchemaRegistry interface {
	Cardinality() int
	OrdinalOf(v types.VariableID) (int, error)
}

// Transport delivers packets to clients and peers. Calls must not block for
// long; the router holds no lock of its own but callers usually do.
type Transport interface {
	SendData(c types.ClientID, d types.Data) error
	SendProductionAck(c types.ClientID, a types.Acceptance) error
	ForwardRequest(c types.ClientID, r types.Request) error
}

// BankSizes are bucket-count hints for each bank, rounded to the nearest
// tabled prime.
type BankSizes struct {
	Host               int
	Variable           int
	HostVariable       int
	VarRevVariable     int
	VarRevRevision     int
	RemoteHostVariable int
	RemoteRevision     int
}

// DefaultBankSizes returns the stock bucket hints.
func DefaultBankSizes() BankSizes {
	return BankSizes{
		Host:               20,
		Variable:           20,
		HostVariable:       30,
		VarRevVariable:     100,
		VarRevRevision:     20,
		RemoteHostVariable: 20,
		RemoteRevision:     20,
	}
}

// Settings configure a Server.
type Settings struct {
	// NodeAddress is this node. Requests for host 0 resolve to it.
	NodeAddress types.NodeAddress

	// MaxLocalRequests caps a client's outstanding revision subscriptions
	// on variables produced here.
	MaxLocalRequests uint32

	// MaxRemoteRequests caps a client's outstanding host, host+variable and
	// remote revision subscriptions.
	MaxRemoteRequests uint32

	// MaxClients bounds client ids to [0, MaxClients).
	MaxClients int

	Banks BankSizes
}

func (s Settings) validate() error {
	switch {
	case s.NodeAddress == 0 || s.NodeAddress == types.HostAny:
		return fmt.Errorf("%w: node address %d is reserved", ErrInvalidSettings, s.NodeAddress)
	case s.MaxClients <= 0:
		return fmt.Errorf("%w: max clients must be positive", ErrInvalidSettings)
	case s.MaxLocalRequests == 0 || s.MaxRemoteRequests == 0:
		return fmt.Errorf("%w: request quotas must be positive", ErrInvalidSettings)
	}
	return nil
}

// Server routes subscription requests and produced data. It owns the six
// subscription banks and the working set of latest local values.
//
// Server is not safe for concurrent use; callers serialize every call.
type Server struct {
	settings  Settings
	authority RevisionAuthority
	schema    SchemaRegistry
	transport Transport
	logger    zerolog.Logger

	all        *bank.AllBank
	host       *bank.HostBank
	variable   *bank.VariableBank
	hostVar    *bank.HostVariableBank
	varRev     *bank.VariableRevisionBank
	hostVarRev *bank.RemoteRevisionBank

	// working holds the latest local value per variable ordinal.
	working []*types.Data

	// hits is scratch space for deduplicating subscribers per event.
	hits *linearhash.Table[types.ClientID, struct{}]
}

type options struct {
	logger zerolog.Logger
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the logger for the server and its banks.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a server with empty banks and an empty working set.
func New(settings Settings, authority RevisionAuthority, schema SchemaRegistry, transport Transport, opts ...Option) (*Server, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if authority == nil || schema == nil || transport == nil {
		return nil, fmt.Errorf("%w: authority, schema and transport are required", ErrInvalidSettings)
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	bo := bank.WithLogger(o.logger)
	n, sz := settings.MaxClients, settings.Banks

	return &Server{
		settings:   settings,
		authority:  authority,
		schema:     schema,
		transport:  transport,
		logger:     o.logger,
		all:        bank.NewAllBank(n, bo),
		host:       bank.NewHostBank(n, sz.Host, bo),
		variable:   bank.NewVariableBank(n, sz.Variable, bo),
		hostVar:    bank.NewHostVariableBank(n, sz.HostVariable, bo),
		varRev:     bank.NewVariableRevisionBank(n, sz.VarRevVariable, sz.VarRevRevision, bo),
		hostVarRev: bank.NewRemoteRevisionBank(n, sz.RemoteHostVariable, sz.RemoteRevision, bo),
		working:    make([]*types.Data, schema.Cardinality()),
		hits:       linearhash.NewNearestPrime[types.ClientID, struct{}](settings.MaxClients),
	}, nil
}

// Settings returns the settings the server was created with.
func (s *Server) Settings() Settings { return s.settings }

func (s *Server) checkClient(c types.ClientID) error {
	if int(c) >= s.settings.MaxClients {
		return fmt.Errorf("%w: %d", bank.ErrClientOutOfRange, c)
	}
	return nil
}

// resolve maps host 0 to this node.
func (s *Server) resolve(host types.NodeAddress) types.NodeAddress {
	if host == 0 {
		return s.settings.NodeAddress
	}
	return host
}

func (s *Server) ordinal(v types.VariableID) (int, error) {
	ord, err := s.schema.OrdinalOf(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %d: %v", ErrUnknownVariable, v, err)
	}
	if ord < 0 || ord >= len(s.working) {
		return 0, fmt.Errorf("%w: %d has ordinal %d of %d", ErrUnknownVariable, v, ord, len(s.working))
	}
	return ord, nil
}

// Current returns the latest locally produced value of v, if any.
func (s *Server) Current(v types.VariableID) (types.Data, bool) {
	ord, err := s.ordinal(v)
	if err != nil || s.working[ord] == nil {
		return types.Data{}, false
	}
	return *s.working[ord], true
}

func saturatingSub(limit, used uint32) uint32 {
	if used >= limit {
		return 0
	}
	return limit - used
}

// FreeLocal returns how many more local revision subscriptions c may hold.
func (s *Server) FreeLocal(c types.ClientID) uint32 {
	return saturatingSub(s.settings.MaxLocalRequests, s.varRev.OutstandingRequestCount(c))
}

// FreeRemote returns how many more host, host+variable and remote revision
// subscriptions c may hold. Promiscuous and discovery subscriptions are free.
func (s *Server) FreeRemote(c types.ClientID) uint32 {
	used := s.host.OutstandingRequestCount(c) +
		s.hostVar.OutstandingRequestCount(c) +
		s.hostVarRev.OutstandingRequestCount(c)
	return saturatingSub(s.settings.MaxRemoteRequests, used)
}

func (s *Server) quota(c types.ClientID) types.Response {
	return types.Response{
		RequestsRemainingLocal:  s.FreeLocal(c),
		RequestsRemainingRemote: s.FreeRemote(c),
	}
}

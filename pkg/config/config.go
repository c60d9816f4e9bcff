package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/mcci/pkg/server"
	"github.com/cuemby/mcci/pkg/types"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// VarRevBanks sizes the local revision bank.
type VarRevBanks struct {
	Variable int `yaml:"variable"`
	Revision int `yaml:"revision"`
}

// RemoteBanks sizes the remote revision bank.
type RemoteBanks struct {
	HostVariable int `yaml:"host_variable"`
	Revision     int `yaml:"revision"`
}

// Banks holds bucket-count hints for each subscription bank.
type Banks struct {
	Host             int         `yaml:"host"`
	Variable         int         `yaml:"variable"`
	HostVariable     int         `yaml:"host_variable"`
	VariableRevision VarRevBanks `yaml:"variable_revision"`
	RemoteRevision   RemoteBanks `yaml:"remote_revision"`
}

// Log configures the global logger.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the node configuration.
type Config struct {
	NodeAddress       types.NodeAddress `yaml:"node_address"`
	MaxLocalRequests  uint32            `yaml:"max_local_requests"`
	MaxRemoteRequests uint32            `yaml:"max_remote_requests"`
	MaxClients        int               `yaml:"max_clients"`
	Banks             Banks             `yaml:"banks"`

	DataDir           string        `yaml:"data_dir"`
	SchemaFile        string        `yaml:"schema_file"`
	StrictFingerprint bool          `yaml:"strict_fingerprint"`
	ListenAddr        string        `yaml:"listen_addr"`
	MetricsAddr       string        `yaml:"metrics_addr"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SessionBuffer     int           `yaml:"session_buffer"`

	Log Log `yaml:"log"`
}

// Default returns the stock configuration.
func Default() Config {
	sizes := server.DefaultBankSizes()
	return Config{
		NodeAddress:       1,
		MaxLocalRequests:  101,
		MaxRemoteRequests: 199,
		MaxClients:        100,
		Banks: Banks{
			Host:         sizes.Host,
			Variable:     sizes.Variable,
			HostVariable: sizes.HostVariable,
			VariableRevision: VarRevBanks{
				Variable: sizes.VarRevVariable,
				Revision: sizes.VarRevRevision,
			},
			RemoteRevision: RemoteBanks{
				HostVariable: sizes.RemoteHostVariable,
				Revision:     sizes.RemoteRevision,
			},
		},
		DataDir:           "/var/lib/mcci",
		SchemaFile:        "schema.yaml",
		StrictFingerprint: true,
		ListenAddr:        "127.0.0.1:7420",
		MetricsAddr:       "127.0.0.1:9420",
		SweepInterval:     time.Second,
		SessionBuffer:     64,
		Log:               Log{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the node cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.NodeAddress == 0 || c.NodeAddress == types.HostAny {
		errs = append(errs, fmt.Errorf("%w: node_address %d is reserved", ErrInvalid, c.NodeAddress))
	}
	if c.MaxLocalRequests == 0 {
		errs = append(errs, fmt.Errorf("%w: max_local_requests must be positive", ErrInvalid))
	}
	if c.MaxRemoteRequests == 0 {
		errs = append(errs, fmt.Errorf("%w: max_remote_requests must be positive", ErrInvalid))
	}
	if c.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_clients must be positive", ErrInvalid))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%w: data_dir is required", ErrInvalid))
	}
	if c.SchemaFile == "" {
		errs = append(errs, fmt.Errorf("%w: schema_file is required", ErrInvalid))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: sweep_interval must be positive", ErrInvalid))
	}
	return errors.Join(errs...)
}

// ServerSettings converts the routing part of the configuration.
func (c Config) ServerSettings() server.Settings {
	return server.Settings{
		NodeAddress:       c.NodeAddress,
		MaxLocalRequests:  c.MaxLocalRequests,
		MaxRemoteRequests: c.MaxRemoteRequests,
		MaxClients:        c.MaxClients,
		Banks: server.BankSizes{
			Host:               c.Banks.Host,
			Variable:           c.Banks.Variable,
			HostVariable:       c.Banks.HostVariable,
			VarRevVariable:     c.Banks.VariableRevision.Variable,
			VarRevRevision:     c.Banks.VariableRevision.Revision,
			RemoteHostVariable: c.Banks.RemoteRevision.HostVariable,
			RemoteRevision:     c.Banks.RemoteRevision.Revision,
		},
	}
}

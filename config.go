package quic

import (
	"crypto/tls"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/metaech/quix/transport"
)

// Config is the process-level configuration cmd/quince loads from a
// YAML file and translates into a transport.Config. Field names avoid
// underscores and carry yaml tags the way
// distribution/configuration.Configuration does.
type Config struct {
	Listen      string            `yaml:"listen"`
	TLS         TLSConfig         `yaml:"tls"`
	Log         LogConfig         `yaml:"log"`
	Congestion  string            `yaml:"congestion"`
	Params      TransportParams   `yaml:"params"`
	MetricsAddr string            `yaml:"metricsAddr"`
	Extra       map[string]string `yaml:"extra,omitempty"`
}

// TLSConfig carries the subset of crypto/tls.Config a YAML file can
// reasonably express: certificate/key file paths for a server, and
// trust policy for a client.
type TLSConfig struct {
	CertFile           string `yaml:"certFile"`
	KeyFile            string `yaml:"keyFile"`
	ServerName         string `yaml:"serverName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// LogConfig controls the operational logrus logger (SPEC_FULL section
// 4.B). QLogFile is parsed from the YAML file but is not read anywhere;
// no qlog file is written.
type LogConfig struct {
	Level       string `yaml:"level"` // panic|fatal|error|warn|info|debug|trace
	QLogFile    string `yaml:"qlogFile"`
	ReportCaller bool  `yaml:"reportCaller"`
}

// TransportParams mirrors transport.Parameters with YAML tags; zero
// fields fall back to transport.DefaultParameters() values.
type TransportParams struct {
	MaxIdleTimeout          uint64 `yaml:"maxIdleTimeout"`
	InitialMaxData          uint64 `yaml:"initialMaxData"`
	InitialMaxStreamsBidi   uint64 `yaml:"initialMaxStreamsBidi"`
	InitialMaxStreamsUni    uint64 `yaml:"initialMaxStreamsUni"`
	ActiveConnectionIDLimit uint64 `yaml:"activeConnectionIdLimit"`
}

// NewConfig returns a Config with the same defaults
// transport.DefaultConfig() uses, plus an ephemeral client-side listen
// address.
func NewConfig() *Config {
	return &Config{
		Listen:     "0.0.0.0:0",
		Congestion: string(transport.CongestionControlBBR),
		Log:        LogConfig{Level: "info"},
	}
}

// LoadConfigFile reads and unmarshals a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quic: read config: %w", err)
	}
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("quic: parse config: %w", err)
	}
	return cfg, nil
}

// TransportConfig translates the process Config into a transport.Config.
// isClient selects the handshake role. For a server with TLS.CertFile
// set, the certificate and TLS.KeyFile are loaded into the returned
// tls.Config; otherwise that tls.Config carries no certificate.
func (c *Config) TransportConfig(isClient bool) (*transport.Config, error) {
	tc := transport.DefaultConfig()
	tc.IsClient = isClient
	tc.ServerName = c.TLS.ServerName
	if algo := transport.CongestionControlAlgorithm(c.Congestion); algo != "" {
		tc.CongestionControl = algo
	}

	if p := c.Params; p != (TransportParams{}) {
		if p.MaxIdleTimeout != 0 {
			tc.Params.MaxIdleTimeout = p.MaxIdleTimeout
		}
		if p.InitialMaxData != 0 {
			tc.Params.InitialMaxData = p.InitialMaxData
		}
		if p.InitialMaxStreamsBidi != 0 {
			tc.Params.InitialMaxStreamsBidi = p.InitialMaxStreamsBidi
		}
		if p.InitialMaxStreamsUni != 0 {
			tc.Params.InitialMaxStreamsUni = p.InitialMaxStreamsUni
		}
		if p.ActiveConnectionIDLimit != 0 {
			tc.Params.ActiveConnectionIDLimit = p.ActiveConnectionIDLimit
		}
	}

	tlsConf := &tls.Config{
		ServerName:         c.TLS.ServerName,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
	}
	if !isClient && c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("quic: load TLS certificate: %w", err)
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}
	tc.TLS = tlsConf
	return tc, nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"lwwdoc/internal/ring"
)

// Persistence drivers.
const (
	DriverNone      = "none"
	DriverRedis     = "redis"
	DriverMemcached = "memcached"
)

// Defaults applied by Validate.
const (
	DefaultGRPCAddr          = "127.0.0.1:7070"
	DefaultHTTPAddr          = "127.0.0.1:8080"
	DefaultVNodes            = 128
	DefaultReplicationFactor = 3
	DefaultSyncInterval      = 5 * time.Second
	DefaultFlushInterval     = time.Second
	DefaultLogLevel          = "info"
	DefaultPrefix            = "lwwdoc"
)

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Peers is a list of peers. In YAML it is either a list of {id, addr}
// entries or a string in the format accepted by ParsePeers.
type Peers []Peer

// UnmarshalYAML accepts both peer forms.
func (p *Peers) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		peers, err := ParsePeers(s)
		if err != nil {
			return err
		}
		*p = peers
		return nil
	}

	var list []Peer
	if err := unmarshal(&list); err != nil {
		return err
	}
	*p = list
	return nil
}

// Persistence configures the write-behind backend.
type Persistence struct {
	Driver   string `yaml:"driver"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config holds the node configuration.
type Config struct {
	NodeID      string `yaml:"nodeID"`
	GRPCAddr    string `yaml:"grpcAddr"`
	HTTPAddr    string `yaml:"httpAddr"`
	MetricsAddr string `yaml:"metricsAddr"`
	Peers       Peers  `yaml:"peers"`
	VNodes      int    `yaml:"vnodes"`

	ReplicationFactor int `yaml:"replicationFactor"`
	// WriteAcks is the number of peers that must acknowledge a sync.
	// Zero means a majority.
	WriteAcks int `yaml:"writeAcks"`

	SyncInterval  time.Duration `yaml:"syncInterval"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	LogLevel      string        `yaml:"logLevel"`

	Persistence Persistence `yaml:"persistence"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode config %s", path)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate fills in defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
	if c.GRPCAddr == "" {
		c.GRPCAddr = DefaultGRPCAddr
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
	if c.VNodes == 0 {
		c.VNodes = DefaultVNodes
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = DefaultReplicationFactor
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Persistence.Driver == "" {
		c.Persistence.Driver = DriverNone
	}
	if c.Persistence.Prefix == "" {
		c.Persistence.Prefix = DefaultPrefix
	}

	switch {
	case c.VNodes < 0:
		return errors.Errorf("vnodes must be positive, got %d", c.VNodes)
	case c.ReplicationFactor < 0:
		return errors.Errorf("replicationFactor must be positive, got %d", c.ReplicationFactor)
	case c.WriteAcks < 0:
		return errors.Errorf("writeAcks cannot be negative, got %d", c.WriteAcks)
	case c.WriteAcks >= c.ReplicationFactor:
		return errors.Errorf("writeAcks %d must be less than replicationFactor %d", c.WriteAcks, c.ReplicationFactor)
	case c.SyncInterval < 0 || c.FlushInterval < 0:
		return errors.New("intervals cannot be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown logLevel %q", c.LogLevel)
	}

	switch c.Persistence.Driver {
	case DriverNone:
	case DriverRedis, DriverMemcached:
		if c.Persistence.Addr == "" {
			return errors.Errorf("persistence driver %s needs an addr", c.Persistence.Driver)
		}
	default:
		return errors.Errorf("unknown persistence driver %q", c.Persistence.Driver)
	}

	seen := map[string]bool{}
	for _, p := range c.Peers {
		if seen[p.ID] {
			return errors.Errorf("duplicate peer %s", p.ID)
		}
		seen[p.ID] = true
	}

	return nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// BuildRingNodes converts config peers + self into ring.Node slice.
// Includes self node in the list.
func (c *Config) BuildRingNodes() []ring.Node {
	nodes := make([]ring.Node, 0, len(c.Peers)+1)

	// Add self
	nodes = append(nodes, ring.Node{
		ID:   c.NodeID,
		Addr: c.GRPCAddr,
	})

	// Add peers
	for _, peer := range c.Peers {
		// Skip self if it appears in peers list
		if peer.ID != c.NodeID {
			nodes = append(nodes, ring.Node{
				ID:   peer.ID,
				Addr: peer.Addr,
			})
		}
	}

	return nodes
}

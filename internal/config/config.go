// Package config loads the cluster inventory and runtime settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TransportSSH  = "ssh"
	TransportHTTP = "http"

	JournalMemory   = "memory"
	JournalPostgres = "postgres"
	JournalNone     = "none"
)

// Config is the operator's view of the clusters they manage
type Config struct {
	CurrentCluster  string        `mapstructure:"current_cluster"`
	Clusters        []Cluster     `mapstructure:"clusters"`
	LogLevel        string        `mapstructure:"log_level"`
	LogDevelopment  bool          `mapstructure:"log_development"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	RefreshTimeout  time.Duration `mapstructure:"refresh_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	JournalType     string        `mapstructure:"journal_type"`
	DatabaseURL     string        `mapstructure:"database_url"`
	MetricsFile     string        `mapstructure:"metrics_file"`
}

// Cluster is a named set of nodes
type Cluster struct {
	Name                  string `mapstructure:"name"`
	DefaultUser           string `mapstructure:"default_user"`
	DefaultKeyFile        string `mapstructure:"default_key_file"`
	KnownHostsFile        string `mapstructure:"known_hosts_file"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key"`
	Nodes                 []Node `mapstructure:"nodes"`
}

// Node is how to reach one machine's agent
type Node struct {
	Name      string `mapstructure:"name"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	KeyFile   string `mapstructure:"key_file"`
	Transport string `mapstructure:"transport"`
	AgentPort int    `mapstructure:"agent_port"`
	Sudo      bool   `mapstructure:"sudo"`
}

// Load reads an optional .env file, then the YAML config at path (or the
// default locations when path is empty), then PODFLEET_* environment overrides.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".podfleet"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PODFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
	v.SetDefault("dispatch_timeout", 2*time.Minute)
	v.SetDefault("refresh_timeout", 15*time.Second)
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("journal_type", JournalNone)
}

// Validate checks cluster and node definitions
func (c *Config) Validate() error {
	switch c.JournalType {
	case JournalMemory, JournalNone:
	case JournalPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when journal_type=postgres")
		}
	default:
		return fmt.Errorf("unknown journal_type: %s (valid options: memory, postgres, none)", c.JournalType)
	}

	if c.DispatchTimeout <= 0 {
		return errors.New("dispatch_timeout must be positive")
	}

	seenClusters := make(map[string]bool)
	for _, cluster := range c.Clusters {
		if cluster.Name == "" {
			return errors.New("cluster name is required")
		}
		if seenClusters[cluster.Name] {
			return fmt.Errorf("duplicate cluster %s", cluster.Name)
		}
		seenClusters[cluster.Name] = true

		seenNodes := make(map[string]bool)
		for _, node := range cluster.Nodes {
			if node.Name == "" || node.Host == "" {
				return fmt.Errorf("cluster %s: node name and host are required", cluster.Name)
			}
			if seenNodes[node.Name] {
				return fmt.Errorf("cluster %s: duplicate node %s", cluster.Name, node.Name)
			}
			seenNodes[node.Name] = true

			switch node.Transport {
			case "", TransportSSH, TransportHTTP:
			default:
				return fmt.Errorf("cluster %s: node %s: unknown transport %q", cluster.Name, node.Name, node.Transport)
			}
		}
	}

	return nil
}

// ResolveCluster returns the named cluster, the current cluster when name is
// empty, or the only cluster when exactly one is configured.
func (c *Config) ResolveCluster(name string) (*Cluster, error) {
	if name == "" {
		name = c.CurrentCluster
	}
	if name == "" {
		if len(c.Clusters) == 1 {
			return &c.Clusters[0], nil
		}
		return nil, errors.New("no cluster selected (set current_cluster or pass --cluster)")
	}

	for i := range c.Clusters {
		if c.Clusters[i].Name == name {
			return &c.Clusters[i], nil
		}
	}
	return nil, fmt.Errorf("cluster %s not found", name)
}

// TransportFor returns the node's transport, defaulting to SSH
func (n Node) TransportFor() string {
	if n.Transport == "" {
		return TransportSSH
	}
	return n.Transport
}

// UserFor returns the node's SSH user or the cluster default
func (c *Cluster) UserFor(n Node) string {
	if n.User != "" {
		return n.User
	}
	return c.DefaultUser
}

// KeyFileFor returns the node's SSH key or the cluster default, with ~ expanded
func (c *Cluster) KeyFileFor(n Node) string {
	key := n.KeyFile
	if key == "" {
		key = c.DefaultKeyFile
	}
	if strings.HasPrefix(key, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			key = filepath.Join(home, key[2:])
		}
	}
	return key
}

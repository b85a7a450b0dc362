package rustyshim

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the port the shim listens on unless configured otherwise.
	DefaultPort = 50051
	// DefaultScheme is the Flight location scheme used when none is given.
	DefaultScheme = "grpc+tcp"
)

// Config defines the configuration for the connection.
//
// Either Location or Host must be set. When both are set, Location wins.
type Config struct {
	// Location is the URI of the Flight service, e.g. "grpc+tcp://localhost:50051".
	Location string `json:"location,omitempty" toml:"location,omitempty"`
	// Host is the hostname of the Flight service, combined with Port and Scheme
	// into a location when Location is empty.
	Host string `json:"host,omitempty" toml:"host,omitempty"`
	// Port defaults to DefaultPort.
	Port int `json:"port,omitempty" toml:"port,omitempty"`
	// Scheme defaults to DefaultScheme.
	Scheme string `json:"scheme,omitempty" toml:"scheme,omitempty"`

	// Username and Password are sent verbatim during the handshake.
	Username string `json:"username" toml:"username"`
	Password string `json:"password,omitempty" toml:"password,omitempty"`
	// RequestAdmin asks the server for an admin session, required for
	// maintenance actions.
	RequestAdmin bool `json:"request_admin,omitempty" toml:"request_admin,omitempty"`

	// InsecureSkipVerify disables certificate verification for grpc+tls locations.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty" toml:"insecure_skip_verify,omitempty"`

	// Logger receives debug events about the connection. Nil disables logging.
	Logger *zap.Logger `json:"-" toml:"-"`
}

// ServiceLocation returns the location string the connection dials.
func (c *Config) ServiceLocation() (string, error) {
	if c.Location != "" {
		return c.Location, nil
	}
	if c.Host == "" {
		return "", ErrMissingLocation
	}
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	port := c.Port
	if port <= 0 {
		port = DefaultPort
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(port)), nil
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// LoadConfigFile reads a TOML connection profile.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &config, nil
}

package rustyshim

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// dialTarget is a parsed Flight location.
type dialTarget struct {
	scheme string
	// addr is in the form grpc.NewClient accepts.
	addr string
	tls  bool
}

func parseLocation(location string) (*dialTarget, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}

	switch u.Scheme {
	case "grpc", "grpc+tcp", "grpc+tls":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid location %q: missing host", location)
		}
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultPort))
		}
		return &dialTarget{
			scheme: u.Scheme,
			addr:   host,
			tls:    u.Scheme == "grpc+tls",
		}, nil
	case "grpc+unix":
		if u.Path == "" {
			return nil, fmt.Errorf("invalid location %q: missing socket path", location)
		}
		return &dialTarget{
			scheme: u.Scheme,
			addr:   "unix://" + u.Path,
		}, nil
	default:
		return nil, fmt.Errorf("invalid location %q: unsupported scheme %q", location, u.Scheme)
	}
}

func (t *dialTarget) dialOptions(insecureSkipVerify bool) []grpc.DialOption {
	if !t.tls {
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // opt-in via Config
	}))}
}

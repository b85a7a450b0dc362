/*
 * Copyright 2024 RustyShim Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rustyshim

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Connection is an authenticated connection to a rustyshim Flight service.
//
// A Connection only exists after a successful handshake. Calls are serialized;
// the connection may be shared, but requests never run in parallel on it.
type Connection struct {
	mu     sync.Mutex
	client FlightClient
	opts   *CallOptions
	logger *zap.Logger
	closed bool
}

// Open dials the configured location and authenticates with the configured
// credentials. The handshake runs exactly once; it is neither retried nor
// refreshed for the lifetime of the connection.
func Open(ctx context.Context, config *Config) (*Connection, error) {
	location, err := config.ServiceLocation()
	if err != nil {
		return nil, err
	}

	logger := config.logger().With(zap.String("location", location))
	handler := newAuthHandler(config.Username, config.Password, config.RequestAdmin)
	client, err := NewFlightClient(location, handler, config.InsecureSkipVerify)
	if err != nil {
		return nil, err
	}
	logger.Debug("dialed flight service")

	conn, err := authenticate(ctx, client, handler, logger)
	if err != nil {
		sneakyClose(client)
		return nil, err
	}
	logger.Debug("authenticated",
		zap.String("username", config.Username),
		zap.Bool("request_admin", config.RequestAdmin))
	return conn, nil
}

// Connect opens a connection to a location such as "grpc+tcp://localhost:50051"
// without requesting admin privileges.
func Connect(ctx context.Context, location, username, password string) (*Connection, error) {
	return Open(ctx, &Config{
		Location: location,
		Username: username,
		Password: password,
	})
}

// ConnectHost opens a connection to scheme://host:port. A non-positive port
// means DefaultPort and an empty scheme means DefaultScheme.
func ConnectHost(ctx context.Context, host, username, password string, requestAdmin bool, port int, scheme string) (*Connection, error) {
	return Open(ctx, &Config{
		Host:         host,
		Port:         port,
		Scheme:       scheme,
		Username:     username,
		Password:     password,
		RequestAdmin: requestAdmin,
	})
}

func authenticate(ctx context.Context, client FlightClient, handler *authHandler, logger *zap.Logger) (*Connection, error) {
	// The handshake stream is abandoned once the token is read.
	hctx, cancel := context.WithCancel(ctx)
	err := client.Authenticate(hctx)
	cancel()
	if err != nil {
		var authErr *AuthenticationError
		var remoteErr *RemoteCallError
		if !errors.As(err, &authErr) && !errors.As(err, &remoteErr) {
			err = &RemoteCallError{Op: "Handshake", Err: err}
		}
		return nil, err
	}

	token, err := handler.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	return &Connection{
		client: client,
		opts:   newCallOptions([]byte(token)),
		logger: logger,
	}, nil
}

// CallOptions returns the options attached to every call on this connection.
func (c *Connection) CallOptions() *CallOptions {
	return c.opts
}

// Close releases the underlying channel. Calling Close more than once is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.client == nil {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// begin locks the connection and returns the call context carrying the
// authorization header. The returned func unlocks.
func (c *Connection) begin(ctx context.Context) (context.Context, func(), error) {
	c.mu.Lock()
	if c.opts == nil {
		c.mu.Unlock()
		return nil, nil, &AuthenticationError{Reason: "connection was not opened", Err: ErrNotAuthenticated}
	}
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrClosed
	}
	return c.opts.apply(ctx), c.mu.Unlock, nil
}

// sneakyClose closes c and ignores the error.
// This is useful on failure paths where the original error matters more.
func sneakyClose(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

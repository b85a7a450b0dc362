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
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/apache/arrow/go/v17/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// authState is the outcome of the handshake: exactly one of unauthenticated,
// failed or authenticated.
type authState interface {
	sessionToken() ([]byte, error)
}

type unauthenticated struct{}

func (unauthenticated) sessionToken() ([]byte, error) {
	return nil, &AuthenticationError{Reason: "token requested before handshake", Err: ErrNotAuthenticated}
}

type failed struct {
	err error
}

func (s failed) sessionToken() ([]byte, error) {
	return nil, s.err
}

type authenticated struct {
	token []byte
}

func (s authenticated) sessionToken() ([]byte, error) {
	return s.token, nil
}

// authHandler performs the shim's credential exchange: username, password and
// the admin flag are written in that order, then a single token is read back.
type authHandler struct {
	username     string
	password     string
	requestAdmin bool

	state authState
}

// Ensure authHandler implements flight.ClientAuthHandler.
var _ flight.ClientAuthHandler = (*authHandler)(nil)

func newAuthHandler(username, password string, requestAdmin bool) *authHandler {
	return &authHandler{
		username:     username,
		password:     password,
		requestAdmin: requestAdmin,
		state:        unauthenticated{},
	}
}

// adminFlag serializes the admin request the way the server parses it.
func adminFlag(requestAdmin bool) []byte {
	if requestAdmin {
		return []byte("1")
	}
	return []byte("0")
}

func (h *authHandler) Authenticate(_ context.Context, conn flight.AuthConn) error {
	fields := [][]byte{[]byte(h.username), []byte(h.password), adminFlag(h.requestAdmin)}
	for _, field := range fields {
		if err := conn.Send(field); err != nil {
			// io.EOF means the server ended the stream; its status comes from Read.
			if errors.Is(err, io.EOF) {
				break
			}
			return h.fail(handshakeError(err))
		}
	}

	payload, err := conn.Read()
	switch {
	case errors.Is(err, io.EOF):
		return h.fail(&AuthenticationError{Reason: "handshake ended without a token", Err: ErrNotAuthenticated})
	case err != nil:
		return h.fail(handshakeError(err))
	case len(payload) == 0:
		return h.fail(&AuthenticationError{Reason: "handshake returned no token", Err: ErrEmptyToken})
	}

	h.state = authenticated{token: bytes.Clone(payload)}
	return nil
}

func (h *authHandler) GetToken(context.Context) (string, error) {
	token, err := h.state.sessionToken()
	if err != nil {
		return "", err
	}
	return string(token), nil
}

func (h *authHandler) fail(err error) error {
	h.state = failed{err: err}
	return err
}

// handshakeError classifies a handshake failure: credential problems are
// authentication errors, everything else is a transport failure.
func handshakeError(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument:
		return &AuthenticationError{Reason: "server rejected credentials", Err: err}
	default:
		return &RemoteCallError{Op: "Handshake", Err: err}
	}
}

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
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotAuthenticated is reported when the token is requested before the
	// handshake produced one.
	ErrNotAuthenticated = errors.New("not authenticated via SciDB")
	// ErrEmptyToken is reported when the server answered the handshake with an empty payload.
	ErrEmptyToken = errors.New("server returned an empty session token")
	// ErrNoEndpoints is reported when a query resolves to a flight without endpoints.
	ErrNoEndpoints = errors.New("flight info has no endpoints")
	// ErrMissingLocation is reported when neither a location nor a host is configured.
	ErrMissingLocation = errors.New("no service location configured")
	// ErrClosed is reported for calls issued on a closed connection.
	ErrClosed = errors.New("connection is closed")
)

// AuthenticationError is returned when the handshake fails or when the session
// token is read before the handshake produced one.
type AuthenticationError struct {
	// Reason describes the failure.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed: " + e.Reason
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// RemoteCallError wraps any failure surfaced by the Flight service or the
// transport while resolving, fetching or invoking an action.
type RemoteCallError struct {
	// Op is the Flight RPC that failed, e.g. "GetFlightInfo".
	Op string
	// Err is the error returned by the transport.
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// Code returns the gRPC status code carried by the error, codes.Unknown if none.
func (e *RemoteCallError) Code() codes.Code {
	if errors.Is(e.Err, ErrNoEndpoints) {
		return codes.NotFound
	}
	return status.Code(e.Err)
}

// DecodingError is returned when an action result body is not valid UTF-8.
type DecodingError struct {
	// Action is the name of the action whose result failed to decode.
	Action string
	// Index is the position of the offending result in the response stream.
	Index int
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("action %s: result %d is not valid UTF-8", e.Action, e.Index)
}

func remoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		return err
	}
	return &RemoteCallError{Op: op, Err: err}
}

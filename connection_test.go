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

package rustyshim_test

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	rustyshim "github.com/rustyshim/rustyshim-sdk/go"
	"github.com/rustyshim/rustyshim-sdk/go/internal/flighttest"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func splitLocation(t *testing.T, location string) (string, int) {
	u, err := url.Parse(location)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestConnectAuthenticates(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	srv.Users = map[string]string{"alice": "secret"}
	location := srv.Start(t)

	conn, err := rustyshim.Connect(ctx, location, "alice", "secret")
	require.NoError(t, err)
	defer conn.Close()

	token := conn.CallOptions().Token()
	require.NotEmpty(t, token)
	require.Equal(t, []string{token}, conn.CallOptions().Header().Get("authorization"))
	require.Equal(t, []string{token}, srv.Tokens())
	require.Equal(t, [][]string{{"alice", "secret", "0"}}, srv.Handshakes())
}

func TestConnectAcceptsGeneratedCredentials(t *testing.T) {
	ctx := testContext(t)
	faker := gofakeit.New(42)

	type credential struct{ username, password string }
	creds := make([]credential, 0, 8)
	users := make(map[string]string)
	for len(creds) < 8 {
		c := credential{
			username: faker.Username(),
			password: faker.Password(true, true, true, true, false, 16),
		}
		if _, dup := users[c.username]; dup {
			continue
		}
		users[c.username] = c.password
		creds = append(creds, c)
	}

	srv := flighttest.NewServer()
	srv.Users = users
	location := srv.Start(t)

	for i, c := range creds {
		conn, err := rustyshim.Connect(ctx, location, c.username, c.password)
		require.NoError(t, err, "credential %d", i)

		token := conn.CallOptions().Token()
		require.NotEmpty(t, token)
		require.Equal(t, []string{token}, conn.CallOptions().Header().Get(rustyshim.AuthorizationHeader))
		require.Equal(t, []string{c.username, c.password, "0"}, srv.Handshakes()[i])
		require.NoError(t, conn.Close())
	}
}

func TestHandshakeWriteOrder(t *testing.T) {
	for _, requestAdmin := range []bool{false, true} {
		flag := "0"
		if requestAdmin {
			flag = "1"
		}

		t.Run("location/admin="+flag, func(t *testing.T) {
			ctx := testContext(t)
			srv := flighttest.NewServer()
			location := srv.Start(t)

			conn, err := rustyshim.Open(ctx, &rustyshim.Config{
				Location:     location,
				Username:     "bob",
				Password:     "hunter2",
				RequestAdmin: requestAdmin,
			})
			require.NoError(t, err)
			defer conn.Close()

			require.Equal(t, [][]string{{"bob", "hunter2", flag}}, srv.Handshakes())
		})

		t.Run("host/admin="+flag, func(t *testing.T) {
			ctx := testContext(t)
			srv := flighttest.NewServer()
			host, port := splitLocation(t, srv.Start(t))

			conn, err := rustyshim.ConnectHost(ctx, host, "bob", "hunter2", requestAdmin, port, "grpc+tcp")
			require.NoError(t, err)
			defer conn.Close()

			require.Equal(t, [][]string{{"bob", "hunter2", flag}}, srv.Handshakes())
		})
	}
}

func TestConnectHostDefaultScheme(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	host, port := splitLocation(t, srv.Start(t))

	conn, err := rustyshim.ConnectHost(ctx, host, "carol", "pw", false, port, "")
	require.NoError(t, err)
	defer conn.Close()

	require.Len(t, srv.Handshakes(), 1)
}

func TestConnectWithoutResponse(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	srv.Mode = flighttest.HandshakeSilent
	location := srv.Start(t)

	conn, err := rustyshim.Connect(ctx, location, "alice", "secret")
	require.Nil(t, conn)

	var authErr *rustyshim.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, rustyshim.ErrNotAuthenticated)
	require.Empty(t, srv.Calls())
}

func TestConnectEmptyToken(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	srv.Mode = flighttest.HandshakeEmptyToken
	location := srv.Start(t)

	conn, err := rustyshim.Connect(ctx, location, "alice", "secret")
	require.Nil(t, conn)

	var authErr *rustyshim.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, rustyshim.ErrEmptyToken)
}

func TestConnectRejected(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	srv.Users = map[string]string{"alice": "secret"}
	location := srv.Start(t)

	conn, err := rustyshim.Connect(ctx, location, "alice", "wrong")
	require.Nil(t, conn)

	var authErr *rustyshim.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, codes.Unauthenticated, status.Code(authErr.Err))
	require.Empty(t, srv.Tokens())
}

func TestConnectAdminDenied(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	srv.Admins = map[string]bool{"root": true}
	host, port := splitLocation(t, srv.Start(t))

	_, err := rustyshim.ConnectHost(ctx, host, "alice", "secret", true, port, "")
	var authErr *rustyshim.AuthenticationError
	require.ErrorAs(t, err, &authErr)

	conn, err := rustyshim.ConnectHost(ctx, host, "root", "secret", true, port, "")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestConnectUnreachable(t *testing.T) {
	ctx := testContext(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	conn, err := rustyshim.Connect(ctx, "grpc+tcp://"+addr, "alice", "secret")
	require.Nil(t, conn)

	var remoteErr *rustyshim.RemoteCallError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, "Handshake", remoteErr.Op)
}

func TestOpenInvalidConfig(t *testing.T) {
	ctx := testContext(t)

	_, err := rustyshim.Open(ctx, &rustyshim.Config{Username: "alice"})
	require.ErrorIs(t, err, rustyshim.ErrMissingLocation)

	_, err = rustyshim.Connect(ctx, "http://localhost:50051", "alice", "secret")
	require.ErrorContains(t, err, "unsupported scheme")
}

func TestZeroConnection(t *testing.T) {
	ctx := testContext(t)

	var conn rustyshim.Connection
	require.Empty(t, conn.CallOptions().Token())
	require.Empty(t, conn.CallOptions().Header())

	_, err := conn.ListActions(ctx)

	var authErr *rustyshim.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, rustyshim.ErrNotAuthenticated)

	_, err = conn.GetSQL(ctx, "SELECT 1")
	require.ErrorIs(t, err, rustyshim.ErrNotAuthenticated)
	require.NoError(t, conn.Close())
}

func TestClose(t *testing.T) {
	ctx := testContext(t)
	srv := flighttest.NewServer()
	location := srv.Start(t)

	conn, err := rustyshim.Connect(ctx, location, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.RefreshContext(ctx)
	require.ErrorIs(t, err, rustyshim.ErrClosed)
}

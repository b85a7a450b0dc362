package rustyshim

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// scriptedConn is an in-memory flight.AuthConn.
type scriptedConn struct {
	sent    [][]byte
	sendErr error
	// sendLimit makes Send fail with sendErr after that many writes when positive.
	sendLimit int

	payload []byte
	readErr error
}

func (c *scriptedConn) Send(b []byte) error {
	if c.sendErr != nil && len(c.sent) >= c.sendLimit {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *scriptedConn) Read() ([]byte, error) {
	return c.payload, c.readErr
}

func sentStrings(c *scriptedConn) []string {
	out := make([]string, 0, len(c.sent))
	for _, b := range c.sent {
		out = append(out, string(b))
	}
	return out
}

func TestAuthHandlerTokenBeforeHandshake(t *testing.T) {
	h := newAuthHandler("alice", "secret", false)

	_, err := h.GetToken(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthHandlerWritesFieldsInOrder(t *testing.T) {
	for _, tc := range []struct {
		requestAdmin bool
		flag         string
	}{
		{false, "0"},
		{true, "1"},
	} {
		h := newAuthHandler("alice", "secret", tc.requestAdmin)
		conn := &scriptedConn{payload: []byte("token-1")}

		require.NoError(t, h.Authenticate(context.Background(), conn))
		require.Equal(t, []string{"alice", "secret", tc.flag}, sentStrings(conn))

		token, err := h.GetToken(context.Background())
		require.NoError(t, err)
		require.Equal(t, "token-1", token)
	}
}

func TestAuthHandlerEmptyCredentials(t *testing.T) {
	h := newAuthHandler("", "", false)
	conn := &scriptedConn{payload: []byte("t")}

	require.NoError(t, h.Authenticate(context.Background(), conn))
	require.Equal(t, []string{"", "", "0"}, sentStrings(conn))
}

func TestAuthHandlerTokenIsCopied(t *testing.T) {
	payload := []byte("abc")
	h := newAuthHandler("alice", "secret", false)
	require.NoError(t, h.Authenticate(context.Background(), &scriptedConn{payload: payload}))

	payload[0] = 'x'
	token, err := h.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", token)
}

func TestAuthHandlerNoResponse(t *testing.T) {
	h := newAuthHandler("alice", "secret", false)

	err := h.Authenticate(context.Background(), &scriptedConn{readErr: io.EOF})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, tokenErr := h.GetToken(context.Background())
	require.ErrorIs(t, tokenErr, ErrNotAuthenticated)
}

func TestAuthHandlerEmptyToken(t *testing.T) {
	h := newAuthHandler("alice", "secret", false)

	err := h.Authenticate(context.Background(), &scriptedConn{payload: []byte{}})
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, ErrEmptyToken)

	_, tokenErr := h.GetToken(context.Background())
	require.ErrorIs(t, tokenErr, ErrEmptyToken)
}

func TestAuthHandlerServerClosedEarly(t *testing.T) {
	h := newAuthHandler("alice", "secret", false)
	conn := &scriptedConn{
		sendErr:   io.EOF,
		sendLimit: 1,
		readErr:   status.Error(codes.InvalidArgument, "password not provided during handshake"),
	}

	err := h.Authenticate(context.Background(), conn)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, codes.InvalidArgument, status.Code(authErr.Err))
	require.Equal(t, []string{"alice"}, sentStrings(conn))
}

func TestHandshakeError(t *testing.T) {
	for _, code := range []codes.Code{codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument} {
		err := handshakeError(status.Error(code, "nope"))
		var authErr *AuthenticationError
		require.ErrorAs(t, err, &authErr, code.String())
	}

	for _, err := range []error{
		status.Error(codes.Unavailable, "connection refused"),
		errors.New("boom"),
	} {
		var remoteErr *RemoteCallError
		require.ErrorAs(t, handshakeError(err), &remoteErr)
		require.Equal(t, "Handshake", remoteErr.Op)
	}
}

func TestAuthHandlerSendFailure(t *testing.T) {
	h := newAuthHandler("alice", "secret", false)
	conn := &scriptedConn{sendErr: status.Error(codes.Unavailable, "down")}

	err := h.Authenticate(context.Background(), conn)
	var remoteErr *RemoteCallError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, codes.Unavailable, remoteErr.Code())
	require.Empty(t, conn.sent)
}

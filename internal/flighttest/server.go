// Package flighttest provides an in-process Flight service that speaks the
// rustyshim handshake, for use in tests.
package flighttest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/flight"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ExpirationAge is how long sessions and tickets stay valid.
const ExpirationAge = 24 * time.Hour

// HandshakeMode selects how the server answers a handshake.
type HandshakeMode int

const (
	// HandshakeRespond validates the credentials and answers with a token.
	HandshakeRespond HandshakeMode = iota
	// HandshakeSilent reads the credentials and ends the stream without answering.
	HandshakeSilent
	// HandshakeEmptyToken answers with an empty payload.
	HandshakeEmptyToken
)

// Result is the outcome of a query known to the server.
type Result struct {
	Schema  *arrow.Schema
	Records []arrow.Record
}

// Call records one authenticated RPC received by the server.
type Call struct {
	Method        string
	Authorization []string
	Path          []string
	Ticket        []byte
	Action        string
}

type session struct {
	username string
	admin    bool
	start    time.Time
}

type ticket struct {
	query string
	start time.Time
}

// Server is a scripted Flight service. Configure the exported fields before Start.
type Server struct {
	flight.BaseFlightServer

	// Users maps usernames to passwords. A nil map accepts any credentials.
	Users map[string]string
	// Admins lists the users allowed an admin session. A nil map allows everyone.
	Admins map[string]bool
	// Mode selects how handshakes are answered.
	Mode HandshakeMode
	// Results maps query text to its result. Unknown queries fail with InvalidArgument.
	Results map[string]Result
	// Tables are advertised by ListFlights, one flight per table.
	Tables map[string]*arrow.Schema
	// NoEndpoints makes GetFlightInfo resolve queries to zero endpoints.
	NoEndpoints bool
	// Actions are advertised by ListActions. Defaults to the shim's actions.
	Actions []*flight.ActionType
	// ActionResults overrides the result bodies of an action.
	ActionResults map[string][][]byte
	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time

	mu         sync.Mutex
	handshakes [][]string
	calls      []Call
	issued     [][]byte
	sessions   map[string]*session
	tickets    map[string]*ticket

	grpcServer *grpc.Server
}

// NewServer returns a server accepting any credentials with the default actions.
func NewServer() *Server {
	return &Server{
		Results:  make(map[string]Result),
		Tables:   make(map[string]*arrow.Schema),
		sessions: make(map[string]*session),
		tickets:  make(map[string]*ticket),
	}
}

// DefaultActions are the actions the shim advertises.
func DefaultActions() []*flight.ActionType {
	return []*flight.ActionType{
		{Type: "REFRESH_CONTEXT", Description: "Re-generate the tables by querying SciDB"},
		{Type: "CLEAR_EXPIRED_ITEMS", Description: fmt.Sprintf("Clear all sessions and tokens greater than %s old", ExpirationAge)},
	}
}

// Start listens on a loopback port and serves until the test ends. It returns
// the location to connect to.
func (s *Server) Start(t testing.TB) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s.grpcServer = grpc.NewServer()
	flight.RegisterFlightServiceServer(s.grpcServer, s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.grpcServer.Serve(lis)
	}()
	t.Cleanup(func() {
		s.grpcServer.Stop()
		<-done
	})

	return "grpc+tcp://" + lis.Addr().String()
}

// Handshakes returns the fields received by every handshake, in order.
func (s *Server) Handshakes() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]string, len(s.handshakes))
	copy(out, s.handshakes)
	return out
}

// Calls returns the authenticated RPCs received, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the recorded calls of one method.
func (s *Server) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// IssuedTickets returns the tickets handed out by GetFlightInfo, in order.
func (s *Server) IssuedTickets() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.issued))
	copy(out, s.issued)
	return out
}

// Tokens returns the tokens of the live sessions.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make([]string, 0, len(s.sessions))
	for tok := range s.sessions {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) Handshake(stream flight.FlightService_HandshakeServer) error {
	fields := make([]string, 0, 3)
	for len(fields) < 3 {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		fields = append(fields, string(req.GetPayload()))
	}

	s.mu.Lock()
	s.handshakes = append(s.handshakes, fields)
	s.mu.Unlock()

	switch {
	case len(fields) < 1:
		return status.Error(codes.InvalidArgument, "username not provided during handshake")
	case len(fields) < 2:
		return status.Error(codes.InvalidArgument, "password not provided during handshake")
	case len(fields) < 3:
		return status.Error(codes.InvalidArgument, "request_admin flag not provided during handshake")
	}

	var requestAdmin bool
	switch fields[2] {
	case "0":
		requestAdmin = false
	case "1":
		requestAdmin = true
	default:
		return status.Error(codes.InvalidArgument, "request_admin flag has invalid value")
	}

	switch s.Mode {
	case HandshakeSilent:
		return nil
	case HandshakeEmptyToken:
		return stream.Send(&flight.HandshakeResponse{})
	}

	username, password := fields[0], fields[1]
	if s.Users != nil {
		if want, ok := s.Users[username]; !ok || want != password {
			return status.Error(codes.Unauthenticated, "authentication failed")
		}
	}
	if requestAdmin && s.Admins != nil && !s.Admins[username] {
		return status.Error(codes.Unauthenticated, "authentication failed")
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = &session{username: username, admin: requestAdmin, start: s.now()}
	s.mu.Unlock()

	return stream.Send(&flight.HandshakeResponse{Payload: []byte(token)})
}

// validate checks the authorization header and records the call.
func (s *Server) validate(ctx context.Context, call Call) (*session, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	call.Authorization = md.Get("authorization")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call)
	if len(call.Authorization) == 0 {
		return nil, status.Error(codes.Unauthenticated, "no session token provided")
	}
	sess, ok := s.sessions[call.Authorization[0]]
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid session token")
	}
	if s.now().Sub(sess.start) > ExpirationAge {
		return nil, status.Error(codes.Unauthenticated, "expired session token")
	}
	return sess, nil
}

func (s *Server) lookup(query string) (Result, error) {
	res, ok := s.Results[query]
	if !ok {
		return Result{}, status.Errorf(codes.InvalidArgument, "unknown query: %s", query)
	}
	return res, nil
}

func (s *Server) ListFlights(_ *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	if _, err := s.validate(stream.Context(), Call{Method: "ListFlights"}); err != nil {
		return err
	}

	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := &flight.FlightInfo{
			Schema:           flight.SerializeSchema(s.Tables[name], memory.DefaultAllocator),
			FlightDescriptor: &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{name}},
			TotalRecords:     -1,
			TotalBytes:       -1,
		}
		if err := stream.Send(info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	if _, err := s.validate(ctx, Call{Method: "GetFlightInfo", Path: desc.GetPath()}); err != nil {
		return nil, err
	}
	if len(desc.GetPath()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "descriptor has no path")
	}

	query := desc.GetPath()[0]
	res, err := s.lookup(query)
	if err != nil {
		return nil, err
	}

	info := &flight.FlightInfo{
		Schema:           flight.SerializeSchema(res.Schema, memory.DefaultAllocator),
		FlightDescriptor: desc,
		TotalRecords:     -1,
		TotalBytes:       -1,
	}
	if s.NoEndpoints {
		return info, nil
	}

	tkt := uuid.NewString()
	s.mu.Lock()
	s.tickets[tkt] = &ticket{query: query, start: s.now()}
	s.issued = append(s.issued, []byte(tkt))
	s.mu.Unlock()

	info.Endpoint = []*flight.FlightEndpoint{{Ticket: &flight.Ticket{Ticket: []byte(tkt)}}}
	return info, nil
}

func (s *Server) GetSchema(ctx context.Context, desc *flight.FlightDescriptor) (*flight.SchemaResult, error) {
	if _, err := s.validate(ctx, Call{Method: "GetSchema", Path: desc.GetPath()}); err != nil {
		return nil, err
	}
	if len(desc.GetPath()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "descriptor has no path")
	}

	res, err := s.lookup(desc.GetPath()[0])
	if err != nil {
		return nil, err
	}
	return &flight.SchemaResult{Schema: flight.SerializeSchema(res.Schema, memory.DefaultAllocator)}, nil
}

func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	if _, err := s.validate(stream.Context(), Call{Method: "DoGet", Ticket: tkt.GetTicket()}); err != nil {
		return err
	}

	s.mu.Lock()
	t, ok := s.tickets[string(tkt.GetTicket())]
	delete(s.tickets, string(tkt.GetTicket()))
	s.mu.Unlock()
	if !ok {
		return status.Error(codes.NotFound, "ticket not found")
	}

	res, err := s.lookup(t.query)
	if err != nil {
		return err
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(res.Schema))
	for _, rec := range res.Records {
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	sess, err := s.validate(stream.Context(), Call{Method: "DoAction", Action: action.GetType()})
	if err != nil {
		return err
	}
	if !sess.admin {
		return status.Error(codes.PermissionDenied, "permission to perform admin action denied")
	}

	var bodies [][]byte
	if override, ok := s.ActionResults[action.GetType()]; ok {
		bodies = override
	} else {
		switch action.GetType() {
		case "REFRESH_CONTEXT":
			bodies = [][]byte{[]byte("SUCCESS")}
		case "CLEAR_EXPIRED_ITEMS":
			tokens, tickets := s.clearExpired()
			bodies = [][]byte{
				[]byte("SUCCESS"),
				[]byte(fmt.Sprintf("REMOVED %d EXPIRED SESSION TOKENS", tokens)),
				[]byte(fmt.Sprintf("REMOVED %d EXPIRED TICKETS", tickets)),
			}
		default:
			return status.Error(codes.InvalidArgument, "invalid action")
		}
	}

	for _, body := range bodies {
		if err := stream.Send(&flight.Result{Body: body}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) clearExpired() (tokens, tickets int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for tok, sess := range s.sessions {
		if now.Sub(sess.start) >= ExpirationAge {
			delete(s.sessions, tok)
			tokens++
		}
	}
	for tkt, t := range s.tickets {
		if now.Sub(t.start) >= ExpirationAge {
			delete(s.tickets, tkt)
			tickets++
		}
	}
	return tokens, tickets
}

func (s *Server) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	sess, err := s.validate(stream.Context(), Call{Method: "ListActions"})
	if err != nil {
		return err
	}
	if !sess.admin {
		return status.Error(codes.PermissionDenied, "permission to perform admin action denied")
	}

	actions := s.Actions
	if actions == nil {
		actions = DefaultActions()
	}
	for _, a := range actions {
		if err := stream.Send(a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) DoPut(flight.FlightService_DoPutServer) error {
	return status.Error(codes.Unauthenticated, "PUT not authorized for this database")
}

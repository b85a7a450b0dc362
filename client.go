package rustyshim

import (
	"context"

	"github.com/apache/arrow/go/v17/arrow/flight"
	"google.golang.org/grpc"
)

// FlightClient is the subset of flight.Client the connection uses.
type FlightClient interface {
	// Authenticate runs the handshake with the auth handler the client was built with.
	Authenticate(ctx context.Context, opts ...grpc.CallOption) error
	// GetFlightInfo resolves a descriptor into endpoints.
	GetFlightInfo(ctx context.Context, in *flight.FlightDescriptor, opts ...grpc.CallOption) (*flight.FlightInfo, error)
	// GetSchema resolves a descriptor into its result schema.
	GetSchema(ctx context.Context, in *flight.FlightDescriptor, opts ...grpc.CallOption) (*flight.SchemaResult, error)
	// ListFlights streams the flights the server advertises.
	ListFlights(ctx context.Context, in *flight.Criteria, opts ...grpc.CallOption) (flight.FlightService_ListFlightsClient, error)
	// DoGet opens the record stream for a ticket.
	DoGet(ctx context.Context, in *flight.Ticket, opts ...grpc.CallOption) (flight.FlightService_DoGetClient, error)
	// DoAction invokes a named action.
	DoAction(ctx context.Context, in *flight.Action, opts ...grpc.CallOption) (flight.FlightService_DoActionClient, error)
	// ListActions streams the actions the server advertises.
	ListActions(ctx context.Context, in *flight.Empty, opts ...grpc.CallOption) (flight.FlightService_ListActionsClient, error)
	// Close releases the underlying channel.
	Close() error
}

// Ensure flight.Client implements FlightClient.
var _ FlightClient = (flight.Client)(nil)

// NewFlightClient creates a Flight client for the given location that runs
// the handshake through auth.
//
// The client does not attach the token itself; callers pass it explicitly.
func NewFlightClient(location string, auth flight.ClientAuthHandler, insecureSkipVerify bool) (FlightClient, error) {
	target, err := parseLocation(location)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(target.addr, target.dialOptions(insecureSkipVerify)...)
	if err != nil {
		return nil, err
	}
	return flight.NewClientFromConn(conn, auth), nil
}

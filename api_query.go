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
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/flight"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"go.uber.org/zap"
)

// pathDescriptor builds the PATH descriptor the shim expects for a query.
func pathDescriptor(query string) *flight.FlightDescriptor {
	return &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{query},
	}
}

// GetSQL resolves the query into a flight and opens the record stream of its
// first endpoint.
//
// The returned reader is lazy: batches are fetched as the caller iterates.
// The caller must drain and Release it; cancel ctx to abandon the stream early.
func (c *Connection) GetSQL(ctx context.Context, query string) (*flight.Reader, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	info, err := c.client.GetFlightInfo(ctx, pathDescriptor(query))
	if err != nil {
		return nil, remoteError("GetFlightInfo", err)
	}

	endpoints := info.GetEndpoint()
	c.logger.Debug("resolved query", zap.Int("endpoints", len(endpoints)))
	if len(endpoints) == 0 {
		return nil, &RemoteCallError{Op: "GetFlightInfo", Err: ErrNoEndpoints}
	}
	ticket := endpoints[0].GetTicket()
	if ticket == nil {
		return nil, &RemoteCallError{Op: "GetFlightInfo", Err: errors.New("first endpoint has no ticket")}
	}

	stream, err := c.client.DoGet(ctx, ticket)
	if err != nil {
		return nil, remoteError("DoGet", err)
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, remoteError("DoGet", err)
	}
	return reader, nil
}

// QueryAsArrowBatch runs the query and drains the whole result into memory.
func (c *Connection) QueryAsArrowBatch(ctx context.Context, query string) (*ResultSet, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader, err := c.GetSQL(ctx, query)
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	rs := &ResultSet{Schema: reader.Schema()}
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		rs.Records = append(rs.Records, rec)
	}
	if err := reader.Err(); err != nil {
		rs.Release()
		return nil, remoteError("DoGet", err)
	}
	return rs, nil
}

// GetSchema returns the schema the query would produce without running it.
func (c *Connection) GetSchema(ctx context.Context, query string) (*arrow.Schema, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	res, err := c.client.GetSchema(ctx, pathDescriptor(query))
	if err != nil {
		return nil, remoteError("GetSchema", err)
	}
	schema, err := flight.DeserializeSchema(res.GetSchema(), memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return schema, nil
}

// ListFlights returns the flights the server advertises, one per table.
func (c *Connection) ListFlights(ctx context.Context) ([]*flight.FlightInfo, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.client.ListFlights(ctx, &flight.Criteria{})
	if err != nil {
		return nil, remoteError("ListFlights", err)
	}

	var infos []*flight.FlightInfo
	for {
		info, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return infos, nil
		}
		if err != nil {
			return nil, remoteError("ListFlights", err)
		}
		infos = append(infos, info)
	}
}

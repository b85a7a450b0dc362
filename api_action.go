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
	"unicode/utf8"

	"github.com/apache/arrow/go/v17/arrow/flight"
	"go.uber.org/zap"
)

const (
	// ActionRefreshContext re-generates the server's tables from SciDB.
	ActionRefreshContext = "REFRESH_CONTEXT"
	// ActionClearExpiredItems drops expired session tokens and tickets on the server.
	ActionClearExpiredItems = "CLEAR_EXPIRED_ITEMS"
)

// ListActions returns the actions the server advertises, unchanged and in
// arrival order.
func (c *Connection) ListActions(ctx context.Context) ([]*flight.ActionType, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.client.ListActions(ctx, &flight.Empty{})
	if err != nil {
		return nil, remoteError("ListActions", err)
	}

	var actions []*flight.ActionType
	for {
		action, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return actions, nil
		}
		if err != nil {
			return nil, remoteError("ListActions", err)
		}
		actions = append(actions, action)
	}
}

// DoAction invokes the named action with an empty body and returns every
// result body decoded as UTF-8 text, in arrival order.
func (c *Connection) DoAction(ctx context.Context, name string) ([]string, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.logger.Debug("invoking action", zap.String("action", name))
	stream, err := c.client.DoAction(ctx, &flight.Action{Type: name})
	if err != nil {
		return nil, remoteError("DoAction", err)
	}

	results := make([]string, 0)
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, remoteError("DoAction", err)
		}
		body := res.GetBody()
		if !utf8.Valid(body) {
			return nil, &DecodingError{Action: name, Index: len(results)}
		}
		results = append(results, string(body))
	}
	c.logger.Debug("action finished", zap.String("action", name), zap.Int("results", len(results)))
	return results, nil
}

// RefreshContext asks the server to rebuild its tables. Requires an admin session.
func (c *Connection) RefreshContext(ctx context.Context) ([]string, error) {
	return c.DoAction(ctx, ActionRefreshContext)
}

// ClearExpiredItems asks the server to drop expired sessions and tickets.
// Requires an admin session.
func (c *Connection) ClearExpiredItems(ctx context.Context) ([]string, error) {
	return c.DoAction(ctx, ActionClearExpiredItems)
}

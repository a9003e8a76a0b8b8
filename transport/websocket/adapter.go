// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package websocket is an example concrete verification.Transport: a
// single persistent WebSocket connection carrying JSON-framed
// verification messages in both directions. It demonstrates the
// contract; a homeserver-backed deployment would instead frame these
// same message types as to-device events.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sas-verify/core/internal/logger"
	"github.com/sas-verify/core/verification"
)

// Envelope is the wire frame one WebSocket message carries.
type Envelope struct {
	Type          verification.MessageType `json:"type"`
	TransactionID string                   `json:"transaction_id"`
	Sender        verification.Sender      `json:"sender"`
	Payload       json.RawMessage          `json:"payload"`
}

// Dispatcher receives decoded inbound envelopes. It is implemented by
// whatever owns the verification.Manager for this connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, envelope Envelope) error
}

// ManagerDispatcher adapts a verification.Manager into a Dispatcher by
// translating the wire Envelope into verification.InboundEnvelope and
// constructing a fresh incoming transaction for unseen ids.
type ManagerDispatcher struct {
	Manager      *verification.Manager
	MakeIncoming func(transactionID string) *verification.Transaction
}

// Dispatch implements Dispatcher.
func (d ManagerDispatcher) Dispatch(ctx context.Context, envelope Envelope) error {
	return d.Manager.Dispatch(ctx, verification.InboundEnvelope{
		Type:          envelope.Type,
		TransactionID: envelope.TransactionID,
		Sender:        envelope.Sender,
		Payload:       envelope.Payload,
	}, d.MakeIncoming)
}

// Adapter implements verification.Transport over one WebSocket
// connection, the way WSTransport wraps one persistent connection for
// request/response traffic. Unlike that transport, verification
// messages are one-way: Send never waits for a reply, since replies
// arrive later as their own inbound envelopes routed to Dispatcher.
type Adapter struct {
	conn         *websocket.Conn
	self         verification.Sender
	mu           sync.Mutex
	writeTimeout time.Duration
	log          logger.Logger
}

// NewAdapter wraps an already-established connection. Use Dial to
// also establish the connection.
func NewAdapter(conn *websocket.Conn, self verification.Sender, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Adapter{conn: conn, self: self, writeTimeout: 30 * time.Second, log: log}
}

// Dial connects to url and wraps the resulting connection.
func Dial(ctx context.Context, url string, self verification.Sender, log logger.Logger) (*Adapter, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return NewAdapter(conn, self, log), nil
}

// Send implements verification.Transport.
func (a *Adapter) Send(ctx context.Context, transactionID string, msgType verification.MessageType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return a.write(Envelope{Type: msgType, TransactionID: transactionID, Sender: a.self, Payload: raw})
}

// CancelTransaction implements verification.Transport.
func (a *Adapter) CancelTransaction(ctx context.Context, transactionID, otherUserID, otherDeviceID string, code verification.CancelCode, reason string) error {
	return a.Send(ctx, transactionID, verification.MessageCancel, verification.CancelMessage{
		TransactionID: transactionID,
		Code:          code,
		Reason:        reason,
	})
}

// Done implements verification.Transport.
func (a *Adapter) Done(ctx context.Context, transactionID string) error {
	return a.Send(ctx, transactionID, verification.MessageDone, verification.DoneMessage{TransactionID: transactionID})
}

func (a *Adapter) write(env Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.conn.SetWriteDeadline(time.Now().Add(a.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := a.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Serve reads envelopes off the connection until it closes or ctx is
// cancelled, handing each to dispatcher. It blocks; run it in its own
// goroutine.
func (a *Adapter) Serve(ctx context.Context, dispatcher Dispatcher) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var env Envelope
		if err := a.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.log.Warn("websocket read error", logger.Error(err))
			}
			return err
		}
		if err := dispatcher.Dispatch(ctx, env); err != nil {
			a.log.Warn("dispatch failed", logger.Error(err), logger.String("transaction_id", env.TransactionID))
		}
	}
}

// Close closes the underlying connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return a.conn.Close()
}

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

package websocket

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sas-verify/core/internal/logger"
	"github.com/sas-verify/core/verification"
)

// Server accepts inbound WebSocket connections and serves verification
// traffic on each: every accepted connection is wrapped in an Adapter
// whose read loop feeds the supplied dispatcher. OnConnect, if set, is
// called with each new Adapter so the owner can start outgoing
// transactions over it.
type Server struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	self       verification.Sender
	log        logger.Logger

	// OnConnect observes each accepted connection's Adapter before the
	// read loop starts.
	OnConnect func(*Adapter)
}

// NewServer creates a Server for the given local identity and
// dispatcher.
func NewServer(self verification.Sender, dispatcher Dispatcher, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Server{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Device-to-device verification runs over a channel the
				// surrounding application already authenticated; origin
				// checks belong there.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		self: self,
		log:  log,
	}
}

// Handler returns an http.Handler that upgrades each request and
// serves verification envelopes on the resulting connection until it
// closes.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		adapter := NewAdapter(conn, s.self, s.log)
		defer func() { _ = adapter.Close() }()

		if s.OnConnect != nil {
			s.OnConnect(adapter)
		}
		if err := adapter.Serve(r.Context(), s.dispatcher); err != nil {
			s.log.Debug("websocket connection closed", logger.Error(err))
		}
	})
}

// ListenAndServe mounts Handler at path and blocks serving addr.
func (s *Server) ListenAndServe(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, s.Handler())
	return http.ListenAndServe(addr, mux)
}

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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsStarted tracks verification transactions created, by role.
	TransactionsStarted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transactions",
			Name:      "started_total",
			Help:      "Total number of SAS verification transactions started",
		},
		[]string{"role"}, // initiator, responder
	)

	// TransactionsVerified tracks transactions that reached the Verified state.
	TransactionsVerified = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transactions",
			Name:      "verified_total",
			Help:      "Total number of SAS verification transactions that completed successfully",
		},
		[]string{"role"},
	)

	// TransactionsCancelled tracks cancelled transactions by cancel code.
	TransactionsCancelled = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transactions",
			Name:      "cancelled_total",
			Help:      "Total number of SAS verification transactions cancelled, by reason",
		},
		[]string{"code"}, // m.user, m.mismatched_sas, m.key_mismatch, m.timeout, ...
	)

	// DerivationDuration tracks the time spent in each SAS derivation stage.
	DerivationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transactions",
			Name:      "derivation_duration_seconds",
			Help:      "Duration of SAS key-agreement and MAC derivation stages",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		},
		[]string{"stage"}, // ecdh, mac, short_code
	)
)

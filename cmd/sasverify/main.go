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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sasverify",
	Short: "SAS device verification CLI",
	Long: `sasverify drives Matrix-style Short Authentication String (SAS)
key-verification transactions between two devices: ephemeral
Curve25519 key agreement, a decimal/emoji short code for the user to
compare, and a MAC-based attestation that elevates device trust to
user trust once the user confirms the code matches.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	// Subcommands register themselves in their own files:
	// - demo.go: demoCmd (in-process Alice/Bob walkthrough)
	// - keygen.go: keygenCmd
	// - serve.go: serveCmd (WebSocket listener)
	// - version.go: versionCmd
}

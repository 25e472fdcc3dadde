// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn
//
// padlink - configuration and firmware link for the thx-c macropad
//
// A CLI for talking protocol v1 to a thx-c macropad over serial or
// WebSocket, plus a virtual device for development without hardware.

package main

import (
	"os"

	"github.com/thx4cmn/padlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

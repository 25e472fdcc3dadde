// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"bufio"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for a connected device",
	Long: `Monitor and poke a device from an interactive terminal UI.

The console performs the hello handshake on startup, then shows the
device's state, a running frame log, and response statistics.

Keys:
  h  send hello (re-handshake)
  r  refresh state (get_state)
  p  send ping
  s  edit the note preset speed and apply it
  q  quit

Supports both serial and WebSocket connections.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	m := initialConsoleModel(conn, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Reader goroutine: deliver each received line to the TUI.
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 4096), 64*1024)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			p.Send(frameLineMsg(line))
		}
		if err := scanner.Err(); err != nil {
			p.Send(connLostMsg{err: err})
		} else {
			p.Send(connLostMsg{err: ErrConnectionClosed})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console failed: %w", err)
	}
	return nil
}

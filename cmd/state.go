// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

var stateAsJSON bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Fetch and display the device state",
	Long: `Request the device's current state with get_state and print it.

By default the state is rendered as a readable summary. Use --json to
print the raw state document instead, suitable for editing and feeding
back to 'padlink apply'.`,
	RunE: runState,
}

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Perform the handshake and show device capabilities",
	Long: `Send a hello envelope and print the device's capabilities and state
from the hello_ack response.`,
	RunE: runHello,
}

func init() {
	stateCmd.Flags().BoolVar(&stateAsJSON, "json", false, "Print the raw state document as JSON")
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(helloCmd)
}

func decodeStateDocument(value any) (padproto.DeviceState, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return padproto.DeviceState{}, fmt.Errorf("state is not encodable: %w", err)
	}
	var state padproto.DeviceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return padproto.DeviceState{}, fmt.Errorf("state document does not match the expected shape: %w", err)
	}
	return state, nil
}

func printStateValue(value any) error {
	if stateAsJSON {
		raw, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	state, err := decodeStateDocument(value)
	if err != nil {
		return err
	}
	fmt.Print(padproto.FormatDeviceState(state))
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	conn, _, err := OpenConnection()
	if err != nil {
		return err
	}
	client := NewClient(conn)
	defer client.Close()

	resp, err := client.RequestOrFail(padproto.MsgGetState, map[string]any{}, 0)
	if err != nil {
		return err
	}

	return printStateValue(resp.Payload["state"])
}

func runHello(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	client := NewClient(conn)
	defer client.Close()

	resp, err := client.RequestOrFail(padproto.MsgHello, map[string]any{
		"client":                   "padlink",
		"requestedProtocolVersion": padproto.ProtocolVersion,
	}, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Connected via %s\n", connInfo)
	fmt.Printf("Device:           %v\n", resp.Payload["device"])
	fmt.Printf("Firmware version: %v\n", resp.Payload["firmwareVersion"])
	fmt.Printf("Protocol version: %v\n", resp.Payload["protocolVersion"])

	if features, ok := resp.Payload["features"].([]any); ok {
		fmt.Println("Features:")
		for _, f := range features {
			fmt.Printf("  - %v\n", f)
		}
	}

	fmt.Println()
	return printStateValue(resp.Payload["state"])
}

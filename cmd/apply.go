// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

var (
	applyConfigID       string
	applyIdempotencyKey string
)

var applyCmd = &cobra.Command{
	Use:   "apply <config.json>",
	Short: "Apply a configuration file to the device",
	Long: `Validate a JSON state document locally, then send it to the device
with apply_config.

The document is checked against the same rules the device enforces, so
most mistakes are caught before any frame is sent. On success the device
persists the new state and plays its acceptance animation.

A configId and idempotencyKey are generated automatically; pass
--idempotency-key to make retries of the same logical change safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyConfigID, "config-id", "", "Config id to report (default: random UUID)")
	applyCmd.Flags().StringVar(&applyIdempotencyKey, "idempotency-key", "", "Idempotency key for safe retries (default: random UUID)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("config file is not valid JSON: %w", err)
	}

	// Same validation and normalization the device performs, so a bad
	// document fails here with a useful message instead of a nack.
	normalized, err := padproto.NormalizeDeviceState(doc)
	if err != nil {
		return fmt.Errorf("config rejected: %v", err)
	}

	configID := applyConfigID
	if configID == "" {
		configID = uuid.NewString()
	}
	idempotencyKey := applyIdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	conn, _, err := OpenConnection()
	if err != nil {
		return err
	}
	client := NewClient(conn)
	defer client.Close()

	resp, err := client.RequestOrFail(padproto.MsgApplyConfig, map[string]any{
		"configId":       configID,
		"idempotencyKey": idempotencyKey,
		"config":         normalized,
	}, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Config applied (appliedConfigId=%v)\n", resp.Payload["appliedConfigId"])
	return nil
}

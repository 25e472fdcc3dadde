// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

var (
	updateTargetVersion string
	updateChunkSize     int
	updateAbortReason   string
)

var updateCmd = &cobra.Command{
	Use:   "update <file> [file...]",
	Short: "Perform a staged firmware update",
	Long: `Stream firmware files to the device and commit them atomically.

Each local file is declared with its size and SHA-256 digest, streamed in
base64 chunks, verified on the device, and installed only when every file
checks out and firmware_commit succeeds. The device path for each file is
"/" plus its base name, e.g. build/code.py installs as /code.py.

Chunk size is capped so every frame stays under the device's frame limit.
If a chunk is lost it can be retried; the device rejects any index other
than the next expected one, and retried requests simply pick up where the
transfer left off.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpdate,
}

var abortCmd = &cobra.Command{
	Use:   "abort <session-id>",
	Short: "Abort an in-progress firmware update",
	Long: `Send firmware_abort for the given session. Aborting is advisory and
idempotent: it succeeds even if the session no longer exists.`,
	Args: cobra.ExactArgs(1),
	RunE: runAbort,
}

func init() {
	updateCmd.Flags().StringVar(&updateTargetVersion, "target-version", "", "Firmware version being installed (required)")
	updateCmd.Flags().IntVar(&updateChunkSize, "chunk-size", 512, "Raw bytes per firmware_chunk frame")
	updateCmd.MarkFlagRequired("target-version")
	abortCmd.Flags().StringVar(&updateAbortReason, "reason", "operator abort", "Reason reported to the device")
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(abortCmd)
}

type updateFile struct {
	localPath  string
	devicePath string
	size       int64
	sha256Hex  string
}

func prepareUpdateFile(localPath string) (updateFile, error) {
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return updateFile{}, fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	if len(raw) == 0 {
		return updateFile{}, fmt.Errorf("%s is empty", localPath)
	}

	digest := sha256.Sum256(raw)
	return updateFile{
		localPath:  localPath,
		devicePath: "/" + filepath.Base(localPath),
		size:       int64(len(raw)),
		sha256Hex:  hex.EncodeToString(digest[:]),
	}, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if updateChunkSize < 1 || updateChunkSize > 600 {
		return fmt.Errorf("chunk size must be between 1 and 600 bytes to fit the frame limit")
	}

	files := make([]updateFile, 0, len(args))
	declared := make([]any, 0, len(args))
	for _, arg := range args {
		f, err := prepareUpdateFile(arg)
		if err != nil {
			return err
		}
		files = append(files, f)
		declared = append(declared, map[string]any{
			"path":   f.devicePath,
			"size":   f.size,
			"sha256": f.sha256Hex,
		})
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	client := NewClient(conn)
	defer client.Close()

	sessionID := uuid.NewString()
	fmt.Printf("Starting firmware update %s via %s (session %s)\n", updateTargetVersion, connInfo, sessionID)

	if _, err := client.RequestOrFail(padproto.MsgFirmwareBegin, map[string]any{
		"sessionId":     sessionID,
		"targetVersion": updateTargetVersion,
		"files":         declared,
	}, 0); err != nil {
		return err
	}

	start := time.Now()
	for _, f := range files {
		if err := streamFile(client, sessionID, f); err != nil {
			// Leave the session for the device to discard on the next
			// begin, but tell it we are giving up.
			client.Request(padproto.MsgFirmwareAbort, map[string]any{
				"sessionId": sessionID,
				"reason":    err.Error(),
			}, 0)
			return err
		}
	}

	resp, err := client.RequestOrFail(padproto.MsgFirmwareCommit, map[string]any{
		"sessionId":     sessionID,
		"targetVersion": updateTargetVersion,
	}, 30*time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("Update committed in %s (resetQueued=%v)\n",
		time.Since(start).Round(time.Millisecond), resp.Payload["resetQueued"])
	return nil
}

func streamFile(client *Client, sessionID string, f updateFile) error {
	raw, err := os.ReadFile(f.localPath)
	if err != nil {
		return fmt.Errorf("failed to re-read %s: %w", f.localPath, err)
	}

	chunkIndex := 0
	for offset := 0; offset < len(raw); offset += updateChunkSize {
		end := offset + updateChunkSize
		if end > len(raw) {
			end = len(raw)
		}

		if _, err := client.RequestOrFail(padproto.MsgFirmwareChunk, map[string]any{
			"sessionId":  sessionID,
			"path":       f.devicePath,
			"chunkIndex": chunkIndex,
			"dataBase64": base64.StdEncoding.EncodeToString(raw[offset:end]),
		}, 0); err != nil {
			return fmt.Errorf("%s chunk %d: %w", f.devicePath, chunkIndex, err)
		}
		chunkIndex++
	}

	if _, err := client.RequestOrFail(padproto.MsgFirmwareFileComplete, map[string]any{
		"sessionId": sessionID,
		"path":      f.devicePath,
		"size":      f.size,
		"sha256":    f.sha256Hex,
	}, 0); err != nil {
		return fmt.Errorf("%s: %w", f.devicePath, err)
	}

	fmt.Printf("  %s: %d bytes in %d chunks, verified\n", f.devicePath, f.size, chunkIndex)
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	conn, _, err := OpenConnection()
	if err != nil {
		return err
	}
	client := NewClient(conn)
	defer client.Close()

	resp, err := client.RequestOrFail(padproto.MsgFirmwareAbort, map[string]any{
		"sessionId": args[0],
		"reason":    updateAbortReason,
	}, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Session aborted (aborted=%v)\n", resp.Payload["aborted"])
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thx4cmn/padlink/pkg/macropad"
	"github.com/thx4cmn/padlink/pkg/padproto"
)

var (
	emulateStateFile  string
	emulateStagingDir string
	emulateDestRoot   string
	emulateVerbose    bool
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run a virtual macropad device",
	Long: `Run a protocol v1 device endpoint for development without hardware.

The virtual device answers on a serial port (--port) or on stdin/stdout,
persists its state to a local JSON file, and stages firmware updates into
a local directory. Acceptance animations and queued resets are reported in
the log instead of being acted on.

Useful together with the other commands:

  padlink emulate --port /dev/pts/3 &
  padlink state --port /dev/pts/4`,
	RunE: runEmulate,
}

func init() {
	emulateCmd.Flags().StringVar(&emulateStateFile, "state-file", "device_state.json", "Path of the persisted state document")
	emulateCmd.Flags().StringVar(&emulateStagingDir, "staging-dir", "firmware_staging", "Directory for staged firmware files")
	emulateCmd.Flags().StringVar(&emulateDestRoot, "dest-root", "firmware_root", "Directory firmware files are installed into")
	emulateCmd.Flags().BoolVarP(&emulateVerbose, "verbose", "v", false, "Log every processed frame")
	rootCmd.AddCommand(emulateCmd)
}

// stdioConnection adapts stdin/stdout to the Connection interface so the
// emulator shares its serve loop with serial mode.
type stdioConnection struct{}

func (stdioConnection) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConnection) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConnection) Close() error                { return nil }

func runEmulate(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if emulateVerbose {
		log.SetLevel(logrus.DebugLevel)
	}

	var conn Connection
	connInfo := "stdio"
	if portName != "" {
		opened, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return err
		}
		conn = opened
		connInfo = fmt.Sprintf("serial %s @ %d baud", portName, baudRate)
	} else {
		conn = stdioConnection{}
	}
	defer conn.Close()

	store := macropad.OpenStore(emulateStateFile, log)
	updater := macropad.NewUpdater(emulateStagingDir, emulateDestRoot, macropad.DefaultFirmwarePaths, log)
	device := macropad.NewDevice(store, updater, log)
	engine := padproto.NewEngine(device)

	log.WithFields(logrus.Fields{
		"device":     macropad.DeviceName,
		"firmware":   macropad.FirmwareVersion,
		"connection": connInfo,
		"stateFile":  emulateStateFile,
	}).Info("Virtual device ready")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- serveEngine(conn, engine, device, log) }()

	select {
	case <-sigs:
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("Connection failed")
		}
	}

	fmt.Fprintln(os.Stderr, engine.Stats().Summary())
	return nil
}

func serveEngine(conn Connection, engine *padproto.Engine, device *macropad.Device, log *logrus.Logger) error {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			ts := time.Now().UnixMilli()
			for _, frame := range engine.ProcessChunk(buf[:n], ts) {
				if _, werr := conn.Write(frame); werr != nil {
					return fmt.Errorf("write failed: %w", werr)
				}
				if log.IsLevelEnabled(logrus.DebugLevel) {
					if env, derr := padproto.DecodeFrame(frame); derr == nil {
						log.Debug(padproto.FormatEnvelope(env))
					}
				}
			}

			if device.Store().ConsumeAnimation() {
				log.Info("Playing acceptance animation")
			}
			if device.Updater().ConsumeReset() {
				log.Info("Reset queued, firmware installed")
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

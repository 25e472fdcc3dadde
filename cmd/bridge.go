// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var bridgeListenAddr string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Expose a serial-connected device over WebSocket",
	Long: `Bridge a serial device to WebSocket clients.

Listens for WebSocket connections and pipes bytes between the client and
the serial port in both directions, so the other padlink commands (and any
other protocol v1 client) can reach a device over the network with --url.

Only one client is served at a time; a second connection is refused until
the first disconnects.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVarP(&bridgeListenAddr, "listen", "l", ":8765", "Address to listen on")
	rootCmd.AddCommand(bridgeCmd)
}

type bridgeServer struct {
	log      *logrus.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	busy bool
}

func (b *bridgeServer) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy {
		return false
	}
	b.busy = true
	return true
}

func (b *bridgeServer) release() {
	b.mu.Lock()
	b.busy = false
	b.mu.Unlock()
}

func (b *bridgeServer) handle(w http.ResponseWriter, r *http.Request) {
	if !b.acquire() {
		b.log.WithField("remote", r.RemoteAddr).Warn("Rejecting client, bridge is busy")
		http.Error(w, "bridge already has a client", http.StatusConflict)
		return
	}
	defer b.release()

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	serial, err := OpenSerialConnection(portName, baudRate)
	if err != nil {
		b.log.WithError(err).Error("Failed to open serial port")
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "serial port unavailable"),
			time.Now().Add(time.Second))
		return
	}
	defer serial.Close()

	b.log.WithField("remote", r.RemoteAddr).Info("Client connected")
	defer b.log.WithField("remote", r.RemoteAddr).Info("Client disconnected")

	errs := make(chan error, 2)

	// WebSocket -> serial
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			if _, err := serial.Write(data); err != nil {
				errs <- err
				return
			}
		}
	}()

	// Serial -> WebSocket
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := serial.Read(buf)
			if n > 0 {
				if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					errs <- werr
					return
				}
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	err = <-errs
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		b.log.WithError(err).Debug("Bridge session ended")
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	if portName == "" {
		return fmt.Errorf("bridge requires --port")
	}

	log := logrus.New()
	server := &bridgeServer{
		log: log,
		upgrader: websocket.Upgrader{
			// The bridge is a development tool on a trusted network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	http.HandleFunc("/", server.handle)

	log.WithFields(logrus.Fields{
		"listen": bridgeListenAddr,
		"port":   portName,
		"baud":   baudRate,
	}).Info("Bridge listening")

	return http.ListenAndServe(bridgeListenAddr, nil)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

// pipeConnection adapts one end of a net.Pipe to the Connection interface.
type pipeConnection struct {
	net.Conn
}

// fakeDevice answers requests on the far end of the pipe using the given
// responder, which maps a decoded request to zero or more response frames.
func fakeDevice(t *testing.T, conn net.Conn, responder func(req padproto.Envelope) []padproto.Envelope) {
	t.Helper()
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			req, err := padproto.DecodeFrame(scanner.Bytes())
			if err != nil {
				continue
			}
			for _, resp := range responder(req) {
				if _, err := conn.Write(padproto.EncodeFrame(resp)); err != nil {
					return
				}
			}
		}
	}()
}

func TestClient_RequestCorrelatesByID(t *testing.T) {
	near, far := net.Pipe()
	defer far.Close()

	// The device first emits a stale frame with an unrelated id, then the
	// real response. The client must skip the stale one.
	fakeDevice(t, far, func(req padproto.Envelope) []padproto.Envelope {
		stale := padproto.NewEnvelope(padproto.MsgAck, "stale-id",
			map[string]any{"requestType": "ping"}, 1)
		real := padproto.NewEnvelope(padproto.MsgAck, req.ID,
			map[string]any{"requestType": req.Type, "pongTs": req.Ts}, 2)
		return []padproto.Envelope{stale, real}
	})

	client := NewClient(&pipeConnection{near})
	defer client.Close()

	resp, err := client.Request(padproto.MsgPing, map[string]any{}, time.Second)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.Type != padproto.MsgAck {
		t.Errorf("expected ack, got %s", resp.Type)
	}
	if resp.ID == "stale-id" {
		t.Error("client returned a stale response")
	}
}

func TestClient_RequestTimesOut(t *testing.T) {
	near, far := net.Pipe()
	defer far.Close()

	// Device reads the request but never answers.
	fakeDevice(t, far, func(padproto.Envelope) []padproto.Envelope { return nil })

	client := NewClient(&pipeConnection{near})
	defer client.Close()

	_, err := client.Request(padproto.MsgPing, map[string]any{}, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestClient_RequestOrFailConvertsNack(t *testing.T) {
	near, far := net.Pipe()
	defer far.Close()

	fakeDevice(t, far, func(req padproto.Envelope) []padproto.Envelope {
		return []padproto.Envelope{padproto.NewEnvelope(padproto.MsgNack, req.ID, map[string]any{
			"requestType": req.Type,
			"code":        padproto.ErrInvalidConfig,
			"reason":      "test rejection",
			"retryable":   false,
		}, 1)}
	})

	client := NewClient(&pipeConnection{near})
	defer client.Close()

	resp, err := client.RequestOrFail(padproto.MsgApplyConfig, map[string]any{}, time.Second)
	if err == nil {
		t.Fatal("a nack must surface as an error")
	}
	if resp.Type != padproto.MsgNack {
		t.Errorf("the nack envelope should still be returned, got %s", resp.Type)
	}
}

func TestClient_RequestOrFailConvertsErrorResponse(t *testing.T) {
	near, far := net.Pipe()
	defer far.Close()

	fakeDevice(t, far, func(req padproto.Envelope) []padproto.Envelope {
		return []padproto.Envelope{padproto.NewEnvelope(padproto.MsgError, req.ID, map[string]any{
			"code":    padproto.ErrUnsupportedType,
			"message": "Unsupported message type.",
		}, 1)}
	})

	client := NewClient(&pipeConnection{near})
	defer client.Close()

	if _, err := client.RequestOrFail("bogus", map[string]any{}, time.Second); err == nil {
		t.Fatal("an error response must surface as an error")
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"bufio"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

const defaultRequestTimeout = 5 * time.Second

// Client sends request envelopes over a Connection and correlates the
// responses by envelope id. A background goroutine splits the byte stream
// into lines; requests are issued one at a time.
type Client struct {
	conn  Connection
	lines chan []byte
	errs  chan error
}

// NewClient starts the reader loop on an open connection.
func NewClient(conn Connection) *Client {
	c := &Client{
		conn:  conn,
		lines: make(chan []byte, 16),
		errs:  make(chan error, 1),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		c.lines <- line
	}
	if err := scanner.Err(); err != nil {
		c.errs <- err
	}
	close(c.lines)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends one envelope and waits for the response carrying the same
// id. Frames with other ids (stale responses from a previous run) are
// discarded. A zero timeout uses the default.
func (c *Client) Request(msgType string, payload map[string]any, timeout time.Duration) (padproto.Envelope, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	id := uuid.NewString()
	env := padproto.NewEnvelope(msgType, id, payload, time.Now().UnixMilli())

	if _, err := c.conn.Write(padproto.EncodeFrame(env)); err != nil {
		return padproto.Envelope{}, fmt.Errorf("write failed: %w", err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case line, open := <-c.lines:
			if !open {
				select {
				case err := <-c.errs:
					return padproto.Envelope{}, fmt.Errorf("connection lost: %w", err)
				default:
					return padproto.Envelope{}, ErrConnectionClosed
				}
			}

			resp, err := padproto.DecodeFrame(line)
			if err != nil {
				// Not a protocol frame; skip noise on a shared console port.
				continue
			}
			if resp.ID != id {
				continue
			}
			return resp, nil

		case <-deadline.C:
			return padproto.Envelope{}, fmt.Errorf("timed out waiting for response to %s (id %s)", msgType, id)
		}
	}
}

// RequestOrFail is Request plus rejection handling: a nack or error
// response is converted into a Go error describing the failure.
func (c *Client) RequestOrFail(msgType string, payload map[string]any, timeout time.Duration) (padproto.Envelope, error) {
	resp, err := c.Request(msgType, payload, timeout)
	if err != nil {
		return padproto.Envelope{}, err
	}

	switch resp.Type {
	case padproto.MsgNack:
		return resp, fmt.Errorf("%s rejected: code=%v retryable=%v reason=%v",
			msgType, resp.Payload["code"], resp.Payload["retryable"], resp.Payload["reason"])
	case padproto.MsgError:
		return resp, fmt.Errorf("%s failed: code=%v message=%v",
			msgType, resp.Payload["code"], resp.Payload["message"])
	default:
		return resp, nil
	}
}

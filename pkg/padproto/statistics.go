// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package padproto

import (
	"fmt"
	"time"
)

// Statistics tracks frame and response counters for a protocol engine.
type Statistics struct {
	StartTime     time.Time
	LastFrameTime time.Time

	TotalFrames uint64
	FrameErrors uint64 // empty/oversized/non-UTF-8/unterminated lines
	Errors      uint64 // error responses (envelope/dispatch level)
	Nacks       uint64
	Acks        uint64 // ack and hello_ack responses
}

func newStatistics() Statistics {
	now := time.Now()
	return Statistics{StartTime: now, LastFrameTime: now}
}

// observe updates counters for one produced response.
func (s *Statistics) observe(resp Envelope, frameLevel bool) {
	s.TotalFrames++
	s.LastFrameTime = time.Now()

	if frameLevel {
		s.FrameErrors++
		return
	}

	switch resp.Type {
	case MsgAck, MsgHelloAck:
		s.Acks++
	case MsgNack:
		s.Nacks++
	case MsgError:
		s.Errors++
	}
}

// FrameRate returns frames/sec since the tracker started.
func (s Statistics) FrameRate() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalFrames) / elapsed
}

// Summary renders a one-line statistics report.
func (s Statistics) Summary() string {
	return fmt.Sprintf("frames=%d acks=%d nacks=%d errors=%d frame_errors=%d rate=%.1f/s",
		s.TotalFrames, s.Acks, s.Nacks, s.Errors, s.FrameErrors, s.FrameRate())
}

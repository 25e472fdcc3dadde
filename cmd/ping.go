// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 thx4cmn

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thx4cmn/padlink/pkg/padproto"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time to the device",
	Long: `Send ping envelopes and report the round-trip time for each ack.

The device echoes the request timestamp as pongTs, which is printed
alongside the measured RTT.`,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "Number of pings to send")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "Delay between pings")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	client := NewClient(conn)
	defer client.Close()

	fmt.Printf("Pinging via %s\n", connInfo)

	for i := 0; i < pingCount; i++ {
		if i > 0 {
			time.Sleep(pingInterval)
		}

		start := time.Now()
		resp, err := client.RequestOrFail(padproto.MsgPing, map[string]any{}, 0)
		if err != nil {
			fmt.Printf("ping %d: %v\n", i+1, err)
			continue
		}
		rtt := time.Since(start)

		fmt.Printf("ping %d: ack in %s (pongTs=%v)\n", i+1, rtt.Round(time.Microsecond), resp.Payload["pongTs"])
	}

	return nil
}

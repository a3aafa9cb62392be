// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode a live uplink stream and track errors",
	Long: `Decode uplinks from a serial or WebSocket source with statistics.

Every uplink goes through the segment reassembler and the frame decoder. The
monitor tracks:
  - Decoded and failed frames
  - Segments, reassembled frames, duplicates, lost segments and CRC failures
  - Warnings and extension settings stored
  - Uplink and error rates

By default, only errors and warnings are displayed. Use --show-all to display
valid uplinks too.

The terminal UI lists the devices heard and the latest values of the selected
one. Use --tui=false for a plain log with periodic statistics summaries.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all uplinks (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(cmd.Context(), conn, connInfo, p)
	}
	return runTextMode(cmd.Context(), conn, connInfo, p)
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(ctx context.Context, conn Connection, connInfo string, p *pipeline) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m := initialModel(connInfo, p, showAll)
	program := tea.NewProgram(m)

	// Reader goroutine
	go func() {
		reader := NewLineReader(conn)
		for {
			line, err := reader.Next()
			if err != nil {
				program.Send(connectionLostMsg{err: err})
				return
			}

			up, err := parseUplink(line, false)
			if err != nil {
				program.Send(uplinkMsg{err: err})
				continue
			}
			program.Send(uplinkMsg{up: up, result: p.Decode(ctx, up)})
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// runTextMode runs the monitor in text mode
func runTextMode(ctx context.Context, conn Connection, connInfo string, p *pipeline) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Printf("Sentinel - Uplink Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All uplinks\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	lines := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go readLines(conn, lines, readErr)

	for {
		select {
		case line := <-lines:
			up, err := parseUplink(line, false)
			if err != nil {
				if !errors.Is(err, lns.ErrUselessFrame) {
					printDecodeError(err)
				}
				continue
			}

			r := p.Decode(ctx, up)
			if len(r.Errors) > 0 || len(r.Warnings) > 0 || showAll {
				printUplink(up, r)
			}

		case err := <-readErr:
			if isClosed(err) {
				log.Printf("Connection closed")
			} else {
				log.Printf("Read error: %v", err)
			}
			fmt.Println()
			fmt.Print(p.Statistics())
			return nil

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(p.Statistics())
			fmt.Println()
		}
	}
}

// printUplink prints a decoded uplink, highlighting failed frames
func printUplink(up lns.Uplink, r sentinel.DecodeResult) {
	if r.Failed() {
		timestamp := up.Record.ReceivedAt.Format("15:04:05.000")
		fmt.Printf("[%s] \033[1;31mFRAME REJECTED:\033[0m %s fPort=%d\n", timestamp, up.Record.DeviceID, up.Record.ElementCount)
	}
	fmt.Print(sentinel.FormatUplink(up.Record, r))
	fmt.Println()
}

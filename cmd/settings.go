// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/spf13/cobra"
)

var (
	settingsJSON bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect the stored extension settings of devices",
	Long: `Show or delete the extension settings recorded for a device.

Extension settings arrive in system status reports and tell the decoder how to
read FFT zoom spectra. They are stored per device in the settings directory
(--settings-dir, or settings.dir in the configuration file).

Deleting the settings of a device makes its spectra fail until the next status
report.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show DEVEUI",
	Short: "Show the extension settings of a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsShow,
}

var settingsDeleteCmd = &cobra.Command{
	Use:   "delete DEVEUI",
	Short: "Delete the extension settings of a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsDelete,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsDeleteCmd)
	settingsShowCmd.Flags().BoolVar(&settingsJSON, "json", false, "Print the settings as JSON")
}

// deviceArg normalizes a device EUI given on the command line
func deviceArg(arg string) string {
	return strings.ToLower(strings.ReplaceAll(arg, "-", ""))
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openSettingsStore(cfg)
	if err != nil {
		return err
	}

	deviceID := deviceArg(args[0])
	s, err := store.Load(cmd.Context(), deviceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrSettingsNotFound) {
			return fmt.Errorf("no extension settings recorded for device %s", deviceID)
		}
		return err
	}

	if settingsJSON {
		data, err := json.MarshalIndent(s, "", "    ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", data)
		return nil
	}

	path, _ := store.Path(deviceID)
	fmt.Printf("Device: %s\n", deviceID)
	fmt.Printf("File: %s\n", path)
	writeSettings(os.Stdout, s)
	return nil
}

func runSettingsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openSettingsStore(cfg)
	if err != nil {
		return err
	}

	deviceID := deviceArg(args[0])
	if err := store.Delete(cmd.Context(), deviceID); err != nil {
		if errors.Is(err, sentinel.ErrSettingsNotFound) {
			return fmt.Errorf("no extension settings recorded for device %s", deviceID)
		}
		return err
	}
	fmt.Printf("Deleted extension settings of device %s\n", deviceID)
	return nil
}

// writeSettings prints extension settings in human-readable form
func writeSettings(w io.Writer, s sentinel.ExtensionSettings) {
	fmt.Fprintf(w, "  Handle: %d\n", s.Handle)
	fmt.Fprintf(w, "  Activation: %s (%d steps)\n", s.Activation, s.Steps)
	fmt.Fprintf(w, "  Algorithm: %s\n", s.Algorithm)
	fmt.Fprintf(w, "  Sensor: %s, orientation %s\n", s.SensorType, s.AccelerometerOrientation)
	fmt.Fprintf(w, "  Frequencies: %d - %d Hz (cut-off %d Hz)\n", s.LowerFrequency, s.UpperFrequency, s.CutOffFrequency)
	fmt.Fprintf(w, "  Compression: %s\n", s.CompressionType)
	fmt.Fprintf(w, "  Spectrum: %s\n", s.SpectrumType)
}

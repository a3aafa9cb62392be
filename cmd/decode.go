// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/sentinel/internal/lns"
	"github.com/Thermoquad/sentinel/pkg/sentinel"
	"github.com/spf13/cobra"
)

// Output formats of decoded uplinks
const (
	formatText = "text"
	formatJSON = "json"
	formatCBOR = "cbor"
)

var (
	decodeHex    string
	decodeBase64 string
	decodeFPort  uint16
	decodeDevEUI string
	decodeFormat string
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a single uplink payload",
	Long: `Decode one uplink payload given on the command line.

The payload is given in hex (--hex) or base64 (--base64) with the fPort it was
received on, which carries the element count or the segment number. The
extension settings store is used and updated, so a status report decoded
earlier enables the decoding of FFT zoom spectra.

Output formats:
  text  Human-readable values, errors and warnings (default)
  json  The decode result as JSON
  cbor  The decode result as CBOR, written raw to stdout

Examples:
  sentinel decode --fport 2 --hex 00ff7f01c0ff
  sentinel decode --fport 67 --base64 AAE= --format json`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeHex, "hex", "", "Payload as a hex string")
	decodeCmd.Flags().StringVar(&decodeBase64, "base64", "", "Payload as a base64 string")
	decodeCmd.Flags().Uint16Var(&decodeFPort, "fport", 0, "fPort the payload was received on")
	decodeCmd.Flags().StringVar(&decodeDevEUI, "deveui", "0000000000000000", "Device EUI, keys the extension settings")
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", formatText, "Output format: text, json or cbor")
}

func runDecode(cmd *cobra.Command, args []string) error {
	payload, err := payloadFromFlags(decodeHex, decodeBase64)
	if err != nil {
		return err
	}
	if err := checkFormat(decodeFormat); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	up, err := canonicalUplink(sentinel.CanonicalRecord{
		DeviceID:     strings.ToLower(decodeDevEUI),
		Bytes:        payload,
		ElementCount: decodeFPort,
		ReceivedAt:   time.Now(),
	})
	if err != nil {
		return err
	}

	r := p.Decode(cmd.Context(), up)
	return writeResult(os.Stdout, decodeFormat, up, r)
}

// payloadFromFlags decodes the payload given in hex or base64
func payloadFromFlags(hexPayload, base64Payload string) ([]byte, error) {
	switch {
	case hexPayload != "" && base64Payload != "":
		return nil, fmt.Errorf("--hex and --base64 are mutually exclusive")
	case hexPayload != "":
		payload, err := hex.DecodeString(strings.TrimPrefix(strings.ReplaceAll(hexPayload, " ", ""), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex payload: %w", err)
		}
		return payload, nil
	case base64Payload != "":
		payload, err := base64.StdEncoding.DecodeString(base64Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		return payload, nil
	}
	return nil, fmt.Errorf("either --hex or --base64 must be specified")
}

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatCBOR:
		return nil
	}
	return fmt.Errorf("unsupported output format %q (text, json or cbor)", format)
}

// decodedOutput is the JSON form of a decoded uplink
type decodedOutput struct {
	Record   sentinel.CanonicalRecord `json:"record"`
	Metadata lns.Metadata             `json:"metadata"`
	Result   sentinel.DecodeResult    `json:"result"`
}

// writeResult writes a decoded uplink in the requested format
func writeResult(w io.Writer, format string, up lns.Uplink, r sentinel.DecodeResult) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err

	case formatCBOR:
		data, err := sentinel.MarshalResultCBOR(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	_, err := fmt.Fprint(w, sentinel.FormatUplink(up.Record, r))
	return err
}

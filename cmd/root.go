package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"idchip_reader/output"
	"idchip_reader/transport"
)

var (
	version = "1.0.0"

	// Global flags
	readerIndex int
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "idchip_reader",
	Short: "ICAO 9303 BAC passport/eID chip reader",
	Long: `idchip_reader v` + version + `
Read ICAO 9303 electronic travel documents and eID chips over Basic
Access Control.

This tool supports:
  - Deriving BAC keys from a full MRZ or a composed candidate
  - Mutual authentication (GET CHALLENGE / EXTERNAL AUTHENTICATE)
  - Secure-Messaging-protected reads of EF.COM, DG1 (MRZ), and DG2 (face)
  - Scanning a range of candidate birth dates when the full MRZ is unknown`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&readerIndex, "reader", "r", -1,
		"Reader index (use 'idchip_reader read --list' to see available readers)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Output in JSON format")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// rootCtx returns a context canceled on SIGINT/SIGTERM, so a Ctrl-C during
// card-detection polling or a long BAC scan aborts cleanly.
func rootCtx() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

// connectReader is a helper that selects (auto-selecting if there is
// exactly one) and connects to a PC/SC reader, printing diagnostics unless
// JSON output was requested.
func connectReader() (*transport.Reader, error) {
	ctx := rootCtx()

	idx := readerIndex
	if idx < 0 {
		readers, err := transport.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("failed to list readers: %w", err)
		}
		if len(readers) == 0 {
			return nil, fmt.Errorf("no smart card readers found")
		}
		if len(readers) == 1 {
			idx = 0
			if !outputJSON {
				output.PrintSuccess(fmt.Sprintf("Auto-selected reader: %s", readers[0]))
			}
		} else {
			output.PrintReaderList(readers)
			return nil, fmt.Errorf("multiple readers found, use -r <index> to select one")
		}
	}

	reader, err := transport.Connect(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if !outputJSON {
		output.PrintReaderInfo(reader.Name(), reader.ATRHex())
		if atrInfo, err := transport.DecodeATR(reader.ATR()); err == nil {
			output.PrintATRDetail(atrInfo)
		}
	}

	return reader, nil
}

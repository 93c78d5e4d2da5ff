package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	idchip "idchip_reader"
	"idchip_reader/mrz"
	"idchip_reader/output"
	"idchip_reader/transport"
)

var (
	listReadersFlag bool
	docNumber       string
	birthDate       string
	expiryDate      string
	mrzKeyInputHex  string
	imagePath       string
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Run BAC and read a chip's EF.COM, DG1, and DG2",
	Long: `Authenticate with Basic Access Control and read the document's
data groups, writing the DG2 facial image to a file.

The MRZ key-input can be given either as the three MRZ fields it is
derived from, or directly as 24 bytes of hex.

Examples:
  # List available readers
  idchip_reader read --list

  # Read using the three MRZ fields (document number, DOB, expiry; YYMMDD)
  idchip_reader read --doc-number L898902C3 --dob 740812 --doe 120415 -o face.jpg

  # Read using a raw 24-byte MRZ key-input
  idchip_reader read --mrz-key-input 4C383938393032433C... -o face.jpg`,
	RunE: runRead,
}

func init() {
	readCmd.Flags().BoolVarP(&listReadersFlag, "list", "l", false,
		"List available smart card readers")
	readCmd.Flags().StringVar(&docNumber, "doc-number", "", "Document number")
	readCmd.Flags().StringVar(&birthDate, "dob", "", "Date of birth, YYMMDD")
	readCmd.Flags().StringVar(&expiryDate, "doe", "", "Date of expiry, YYMMDD")
	readCmd.Flags().StringVar(&mrzKeyInputHex, "mrz-key-input", "", "Raw 24-byte MRZ key-input, hex")
	readCmd.Flags().StringVarP(&imagePath, "out", "o", "face.jpg", "Path to write the DG2 facial image to")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	if listReadersFlag {
		readers, err := transport.ListReaders()
		if err != nil {
			return fmt.Errorf("failed to list readers: %w", err)
		}
		output.PrintReaderList(readers)
		return nil
	}

	mrzKeyInput, err := resolveMRZKeyInput()
	if err != nil {
		return err
	}

	reader, err := connectReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	sink, err := os.Create(imagePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", imagePath, err)
	}
	defer sink.Close()

	rec, err := idchip.ReadIDChip(rootCtx(), reader, mrzKeyInput, sink)
	if err != nil {
		return err
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	output.PrintSuccess(fmt.Sprintf("Face image written to %s", imagePath))
	output.PrintDocumentRecord(rec)
	return nil
}

// resolveMRZKeyInput assembles the 24-byte MRZ key-input (document number
// + check digit, birth date + check digit, expiry date + check digit) from
// either --mrz-key-input directly, or the three MRZ fields.
func resolveMRZKeyInput() ([]byte, error) {
	if mrzKeyInputHex != "" {
		b, err := hex.DecodeString(mrzKeyInputHex)
		if err != nil {
			return nil, fmt.Errorf("invalid --mrz-key-input hex: %w", err)
		}
		if len(b) != 24 {
			return nil, fmt.Errorf("--mrz-key-input must decode to 24 bytes, got %d", len(b))
		}
		return b, nil
	}

	if docNumber == "" || birthDate == "" || expiryDate == "" {
		return nil, fmt.Errorf("either --mrz-key-input, or all of --doc-number, --dob, and --doe, must be given")
	}
	if len(birthDate) != 6 || len(expiryDate) != 6 {
		return nil, fmt.Errorf("--dob and --doe must each be 6 digits, YYMMDD")
	}

	docField := []byte(padMRZ(docNumber, 9))
	birthField := []byte(birthDate)
	expiryField := []byte(expiryDate)

	docCheck, err := mrz.CheckDigit(docField)
	if err != nil {
		return nil, fmt.Errorf("invalid --doc-number: %w", err)
	}
	birthCheck, err := mrz.CheckDigit(birthField)
	if err != nil {
		return nil, fmt.Errorf("invalid --dob: %w", err)
	}
	expiryCheck, err := mrz.CheckDigit(expiryField)
	if err != nil {
		return nil, fmt.Errorf("invalid --doe: %w", err)
	}

	out := make([]byte, 0, 24)
	out = append(out, docField...)
	out = append(out, docCheck)
	out = append(out, birthField...)
	out = append(out, birthCheck)
	out = append(out, expiryField...)
	out = append(out, expiryCheck)
	return out, nil
}

// padMRZ right-pads s to width with the MRZ filler character '<'.
func padMRZ(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat("<", width-len(s))
}

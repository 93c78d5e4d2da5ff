package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	idchip "idchip_reader"
	"idchip_reader/output"
)

var (
	scanDocNumber   string
	scanYearStart   int
	scanYearEnd     int
	scanMonthStart  int
	scanMonthEnd    int
	scanDayStart    int
	scanDayEnd      int
	scanCurrentYear int
	scanImagePath   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Retry BAC across a range of candidate birth dates",
	Long: `When the holder's exact birth date is unknown, compose one MRZ
key-input per candidate birth date in the given range and retry BAC with
each until one succeeds.

Example:
  idchip_reader scan --doc-number L898902C3 \
    --birth-year-start 1970 --birth-year-end 1990 \
    --month-start 1 --month-end 12 --day-start 1 --day-end 31 \
    --current-year 2026 -o face.jpg`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanDocNumber, "doc-number", "", "Document number (9 characters)")
	scanCmd.Flags().IntVar(&scanYearStart, "birth-year-start", 1950, "First candidate birth year")
	scanCmd.Flags().IntVar(&scanYearEnd, "birth-year-end", 2010, "Last candidate birth year")
	scanCmd.Flags().IntVar(&scanMonthStart, "month-start", 1, "First candidate birth month (1-12)")
	scanCmd.Flags().IntVar(&scanMonthEnd, "month-end", 12, "Last candidate birth month (1-12)")
	scanCmd.Flags().IntVar(&scanDayStart, "day-start", 1, "First candidate birth day")
	scanCmd.Flags().IntVar(&scanDayEnd, "day-end", 31, "Last candidate birth day")
	scanCmd.Flags().IntVar(&scanCurrentYear, "current-year", 0, "Current year, for expiry bracket calculation (defaults to this year)")
	scanCmd.Flags().StringVarP(&scanImagePath, "out", "o", "face.jpg", "Path to write the DG2 facial image to")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if len(scanDocNumber) != 9 {
		return fmt.Errorf("--doc-number must be 9 characters, got %d", len(scanDocNumber))
	}
	var docNumberArr [9]byte
	copy(docNumberArr[:], scanDocNumber)

	currentYear := scanCurrentYear
	if currentYear == 0 {
		currentYear = time.Now().Year()
	}

	reader, err := connectReader()
	if err != nil {
		return err
	}
	defer reader.Close()

	sink, err := os.Create(scanImagePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", scanImagePath, err)
	}
	defer sink.Close()

	search := idchip.BirthdateSearch{
		StartYear: scanYearStart, EndYear: scanYearEnd,
		StartMonth: scanMonthStart, EndMonth: scanMonthEnd,
		StartDay: scanDayStart, EndDay: scanDayEnd,
	}

	rec, err := idchip.ReadIDChipScan(rootCtx(), reader, docNumberArr, search, currentYear, sink)
	if err != nil {
		return err
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	output.PrintSuccess(fmt.Sprintf("Face image written to %s", scanImagePath))
	output.PrintDocumentRecord(rec)
	return nil
}

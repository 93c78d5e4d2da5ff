package output

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	idchip "idchip_reader"
	"idchip_reader/transport"
)

// Color styles
var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

// getTableStyle returns the default table style
func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

// newTable creates a new table writer with default settings
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// PrintReaderInfo prints the connected reader's name and ATR.
func PrintReaderInfo(readerName, atr string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("READER & CARD INFO")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 15},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})
	t.AppendRow(table.Row{"Reader", readerName})
	t.AppendRow(table.Row{"ATR", atr})
	t.Render()
}

// PrintReaderList prints available readers.
func PrintReaderList(readers []string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AVAILABLE SMART CARD READERS")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 8},
		{Number: 2, Colors: colorValue, WidthMin: 50},
	})

	if len(readers) == 0 {
		t.AppendRow(table.Row{"Status", colorWarn.Sprint("No readers found")})
	} else {
		for i, r := range readers {
			t.AppendRow(table.Row{fmt.Sprintf("[%d]", i), r})
		}
	}
	t.Render()
}

// PrintATRDetail prints a decoded ATR's protocol and timing parameters.
func PrintATRDetail(info *transport.ATRInfo) {
	fmt.Println()
	fmt.Print(info.ToString())
}

// PrintDocumentRecord prints a successfully read document's EF.COM and MRZ
// fields.
func PrintDocumentRecord(rec *idchip.DocumentRecord) {
	fmt.Println()
	t := newTable()
	t.SetTitle("DOCUMENT")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 22},
		{Number: 2, Colors: colorValue, WidthMin: 45},
	})

	if rec.EFCOM != nil {
		t.AppendRow(table.Row{"LDS Version", rec.EFCOM.LDSVersion})
		t.AppendRow(table.Row{"Unicode Version", rec.EFCOM.UnicodeVersion})
		t.AppendRow(table.Row{"Data Group Tags", fmt.Sprintf("%X", rec.EFCOM.DataGroupTags)})
	}
	if rec.MRZ != nil {
		t.AppendRow(table.Row{"Document Code", rec.MRZ.DocumentCode})
		t.AppendRow(table.Row{"Issuing State", rec.MRZ.IssuingState})
		t.AppendRow(table.Row{"Document Number", rec.MRZ.DocumentNumber})
		t.AppendRow(table.Row{"Holder Name", rec.MRZ.HolderName})
		t.AppendRow(table.Row{"Date of Birth", rec.MRZ.DateOfBirth})
		t.AppendRow(table.Row{"Sex", rec.MRZ.Sex})
		t.AppendRow(table.Row{"Date of Expiry", rec.MRZ.DateOfExpiry})
		t.AppendRow(table.Row{"Nationality", rec.MRZ.Nationality})
	}
	t.AppendRow(table.Row{"Face Image Written", rec.FaceImageRead})
	t.Render()
}

func PrintError(msg string) {
	fmt.Println(colorError.Sprintf("✗ Error: %s", msg))
}

func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprintf("✓ %s", msg))
}

func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprintf("⚠ %s", msg))
}

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/kalambet/pulse/internal/journal"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	stepColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	faintColor   = color.New(color.Faint, color.Italic)
)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func printSuccess(format string, args ...any) {
	successColor.Fprintln(stderr, "✓ "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	errorColor.Fprintln(stderr, "✗ "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	warningColor.Fprintln(stderr, "⚠ "+fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	stepColor.Fprintln(stderr, "→ "+fmt.Sprintf(format, args...))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", labelColor.Sprint(label+":"), fmt.Sprintf(format, args...))
}

// rating formats an optional mood or energy value.
func rating(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func text(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func printEntries(entries []journal.DailyEntry) {
	if len(entries) == 0 {
		faintColor.Fprintln(stdout, "No entries yet.")
		return
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.Wrap = true
	table.AddRow(labelColor.Sprint("DATE"), labelColor.Sprint("MOOD"), labelColor.Sprint("ENERGY"), labelColor.Sprint("HIGHLIGHT"), labelColor.Sprint("GRATITUDE"))
	for _, e := range entries {
		table.AddRow(e.Date, rating(e.Mood), rating(e.Energy), text(e.Highlight), text(e.Gratitude))
	}
	fmt.Fprintln(stdout, table)
}

func printEntry(e journal.DailyEntry) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow(labelColor.Sprint("Date:"), e.Date)
	table.AddRow(labelColor.Sprint("Mood:"), rating(e.Mood))
	table.AddRow(labelColor.Sprint("Energy:"), rating(e.Energy))
	table.AddRow(labelColor.Sprint("Highlight:"), text(e.Highlight))
	table.AddRow(labelColor.Sprint("Gratitude:"), text(e.Gratitude))
	fmt.Fprintln(stdout, table)
}

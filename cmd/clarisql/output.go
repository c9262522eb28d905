package main

import (
	"fmt"
	"os"

	"github.com/kalambet/clarisql/internal/batch"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printSummary(res batch.Result) {
	s := batch.Summarize(res.Outcomes)

	printStatus("Run", "%s", res.RunID)
	printStatus("Samples", "%d completed, %d dropped", s.Total, res.Failed)
	if s.Total == 0 {
		return
	}
	printStatus("Correct", "%d/%d (%.1f%%)", s.Correct, s.Total, 100*float64(s.Correct)/float64(s.Total))
	printStatus("First attempt", "%d", s.InitOK)
	printStatus("Syntax repair", "%d", s.FixOK)
	printStatus("Refinement", "%d (avg %.2f rounds)", s.RoundOK, s.AvgRounds)
	printStatus("Cost", "$%.4f", s.TotalCost)
}

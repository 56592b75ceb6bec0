// Package ui renders the console progress output for ingestion runs.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stepColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgWhite)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Header prints a banner line for the start of a run.
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Fprintln(os.Stderr, line)
	headerColor.Fprintln(os.Stderr, center(text, headerWidth))
	headerColor.Fprintln(os.Stderr, line)
}

// Step prints a numbered progress step.
func Step(n, total int, text string) {
	stepColor.Fprintf(os.Stderr, "[%d/%d] %s\n", n, total, text)
}

// Success prints a completed-action line.
func Success(text string) {
	successColor.Fprintf(os.Stderr, "  ✓ %s\n", text)
}

// Info prints a neutral informational line.
func Info(text string) {
	infoColor.Fprintf(os.Stderr, "  · %s\n", text)
}

// Warning prints a warning line.
func Warning(text string) {
	warnColor.Fprintf(os.Stderr, "  ! %s\n", text)
}

// Error prints an error line.
func Error(text string) {
	errorColor.Fprintf(os.Stderr, "  ✗ %s\n", text)
}

// center left-pads text to sit in the middle of width; text wider than
// width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return fmt.Sprintf("%*s", (width+len(text))/2, text)
}

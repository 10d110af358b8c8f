// Package ui prints the colored startup and shutdown console output.
package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// PrintBanner writes the startup banner.
func PrintBanner() {
	cyan := color.New(color.FgCyan, color.Bold)
	hiCyan := color.New(color.FgHiCyan)
	magenta := color.New(color.FgHiMagenta, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(out)
	cyan.Fprintln(out, "╔════════════════════════════════════════════════════════════════╗")

	art := [][2]string{
		{" ██████╗ █████╗ ███████╗███████╗", "███████╗██╗      ██████╗ ██╗    ██╗"},
		{"██╔════╝██╔══██╗██╔════╝██╔════╝", "██╔════╝██║     ██╔═══██╗██║    ██║"},
		{"██║     ███████║███████╗█████╗  ", "█████╗  ██║     ██║   ██║██║ █╗ ██║"},
		{"██║     ██╔══██║╚════██║██╔══╝  ", "██╔══╝  ██║     ██║   ██║██║███╗██║"},
		{"╚██████╗██║  ██║███████║███████╗", "██║     ███████╗╚██████╔╝╚███╔███╔╝"},
		{" ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝", "╚═╝     ╚══════╝ ╚═════╝  ╚══╝╚══╝ "},
	}
	for _, row := range art {
		cyan.Fprint(out, "║ ")
		hiCyan.Fprint(out, row[0])
		magenta.Fprint(out, row[1])
		cyan.Fprintln(out, "  ║")
	}

	cyan.Fprintln(out, "╠════════════════════════════════════════════════════════════════╣")
	cyan.Fprint(out, "║ ")
	yellow.Fprint(out, "CASE ANALYSIS ROUTER")
	dim.Fprint(out, "  │  ")
	magenta.Fprint(out, "multi-provider")
	dim.Fprint(out, "  │  ")
	fmt.Fprint(out, Version)
	fmt.Fprintln(out, "                 ║")
	cyan.Fprintln(out, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)
}

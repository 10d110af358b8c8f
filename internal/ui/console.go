package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hpn/caseflow/internal/domain"
)

// Version is printed in the banner.
const Version = "v1.0.0"

var out io.Writer = color.Output

// SetOutput redirects console output. Passing nil restores the default.
func SetOutput(w io.Writer) {
	if w == nil {
		w = color.Output
	}
	out = w
}

var (
	successBadge = color.New(color.BgGreen, color.FgBlack, color.Bold)
	warningBadge = color.New(color.FgYellow, color.Bold)
	infoBadge    = color.New(color.FgCyan, color.Bold)

	successText = color.New(color.FgGreen, color.Bold)
	warningText = color.New(color.FgYellow)
	errorText   = color.New(color.FgRed)
	mutedText   = color.New(color.FgHiBlack)
	accentText  = color.New(color.FgMagenta, color.Bold)
	neonBlue    = color.New(color.FgHiCyan, color.Bold)

	methodPOST   = color.New(color.BgHiMagenta, color.FgBlack, color.Bold)
	methodGET    = color.New(color.BgHiCyan, color.FgBlack, color.Bold)
	methodPUT    = color.New(color.BgHiYellow, color.FgBlack, color.Bold)
	methodDELETE = color.New(color.BgHiRed, color.FgBlack, color.Bold)
)

// StartupInfo summarizes the running configuration.
type StartupInfo struct {
	Addr        string
	Backend     string
	Config      domain.MultiProviderConfiguration
	Transcoding bool
	Metrics     bool
}

// PrintStartupInfo prints the listen address, storage backend, configured
// providers and the category routing table.
func PrintStartupInfo(info StartupInfo) {
	fmt.Fprintln(out)
	infoBadge.Fprint(out, "[CASEFLOW]")
	fmt.Fprint(out, " Server starting on ")
	neonBlue.Fprintf(out, "http://%s\n", info.Addr)

	infoBadge.Fprint(out, "[CASEFLOW]")
	fmt.Fprint(out, " Storage: ")
	accentText.Fprint(out, info.Backend)
	fmt.Fprint(out, " | Enabled providers: ")
	if n := len(info.Config.Enabled()); n > 0 {
		successText.Fprintf(out, "%d", n)
	} else {
		errorText.Fprint(out, "0")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out)
	printProviders(info.Config.Providers)
	printRouting(info.Config.Routing)
	printEndpoints(info)
}

func printProviders(providers []domain.ProviderConfig) {
	for _, p := range providers {
		fmt.Fprint(out, "  ")
		if p.Enabled {
			successBadge.Fprint(out, " ON  ")
		} else {
			warningBadge.Fprint(out, " OFF ")
		}
		fmt.Fprintf(out, " %-12s ", domain.DisplayName(p.Provider))
		mutedText.Fprintf(out, "%-24s ", p.EffectiveModel())
		caps := make([]string, len(p.Capabilities))
		for i, c := range p.Capabilities {
			caps[i] = c.Token()
		}
		fmt.Fprintln(out, strings.Join(caps, ","))
	}
	fmt.Fprintln(out)
}

func printRouting(table domain.RoutingTable) {
	mutedText.Fprintln(out, "  Routing")
	for _, c := range domain.Categories() {
		id, ok := table[c]
		fmt.Fprintf(out, "    %-8s ", c.Token())
		warningText.Fprint(out, "→ ")
		if ok {
			accentText.Fprintln(out, string(id))
		} else {
			errorText.Fprintln(out, "unassigned")
		}
	}
	fmt.Fprintln(out)
}

type endpoint struct {
	method, path, summary string
}

func printEndpoints(info StartupInfo) {
	eps := []endpoint{
		{"GET", "/health", "Health check"},
		{"GET", "/v1/providers", "Provider registry"},
		{"GET", "/v1/config", "Provider configuration"},
		{"DELETE", "/v1/config", "Reset configuration"},
		{"PUT", "/v1/config/providers/:id", "Configure a provider"},
		{"DELETE", "/v1/config/providers/:id", "Remove a provider"},
		{"POST", "/v1/config/providers/:id/test", "Test a provider"},
		{"POST", "/v1/classify", "Classify a task"},
		{"POST", "/v1/analyze", "Analyze"},
		{"POST", "/v1/analyze/batch", "Analyze a batch"},
		{"POST", "/v1/transcribe", "Transcribe audio or video"},
	}
	if info.Transcoding {
		eps = append(eps, endpoint{"POST", "/v1/transcode", "Convert media to WAV"})
	}
	if info.Metrics {
		eps = append(eps, endpoint{"GET", "/metrics", "Prometheus metrics"})
	}

	for _, ep := range eps {
		fmt.Fprint(out, "  ")
		printMethodBadge(ep.method)
		fmt.Fprintf(out, " %-32s ", ep.path)
		mutedText.Fprintln(out, ep.summary)
	}
	fmt.Fprintln(out)
}

func printMethodBadge(method string) {
	label := fmt.Sprintf(" %-6s ", method)
	switch method {
	case "POST":
		methodPOST.Fprint(out, label)
	case "GET":
		methodGET.Fprint(out, label)
	case "PUT":
		methodPUT.Fprint(out, label)
	case "DELETE":
		methodDELETE.Fprint(out, label)
	default:
		fmt.Fprint(out, label)
	}
}

// PrintShutdown prints the shutdown notice.
func PrintShutdown() {
	fmt.Fprintln(out)
	warningBadge.Fprint(out, "[SHUTDOWN]")
	warningText.Fprintln(out, " Graceful shutdown initiated...")
}

// PrintGoodbye prints the final line after the server stopped.
func PrintGoodbye() {
	successBadge.Fprint(out, " OK ")
	fmt.Fprint(out, " ")
	successText.Fprintln(out, "Server stopped.")
}

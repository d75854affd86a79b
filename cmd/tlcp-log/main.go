// Command tlcp-log is a tool for viewing and analyzing TLCP protocol
// capture files.
//
// Capture files are written by tlcp-client with the -protocol-log flag, or
// by any program that sets client.Config.ProtocolLogger to a
// log.FileLogger.
//
// Usage:
//
//	tlcp-log <command> [flags] <file.tlog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSON or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	tlcp-log view client.tlog
//
//	# View only update frames
//	tlcp-log view --frame U client.tlog
//
//	# View only control requests
//	tlcp-log view --category request client.tlog
//
//	# Export to CSV
//	tlcp-log export --format csv -o client.csv client.tlog
//
//	# Keep one session and save to new file
//	tlcp-log filter -session S1a2b3 -o s1.tlog client.tlog
//
//	# Keep the traffic of subscription 3 and every refused request
//	tlcp-log filter -sub 3 -o sub3.tlog client.tlog
//	tlcp-log filter -op add,delete -refused -o refused.tlog client.tlog
//
//	# Show statistics
//	tlcp-log stats client.tlog
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tlcp-protocol/tlcp-go/cmd/tlcp-log/commands"
)

const usage = `tlcp-log - TLCP Protocol Capture Analyzer

Usage:
  tlcp-log <command> [flags] <file.tlog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSON or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "tlcp-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func requirePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlcp-log view - View capture file in human-readable format

Usage:
  tlcp-log view [flags] <file.tlog>

Flags:
`)
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (transport, control, engine)")
	direction := fs.String("direction", "", "Filter by direction (in, out, none)")
	category := fs.String("category", "", "Filter by category (frame, request, state, error)")
	frame := fs.String("frame", "", "Filter by frame name (e.g. U, SUBOK)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	filter := commands.ViewFilter{FrameName: *frame}

	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}

	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlcp-log export - Export capture file to JSON or CSV format

Usage:
  tlcp-log export [flags] <file.tlog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlcp-log filter - Filter capture file and write to new file

Usage:
  tlcp-log filter [flags] <file.tlog>

Events are kept when they match any of -frame, -op and -sub (or all events
when none is given), within the session, connection and time window.

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	session := fs.String("session", "", "TLCP session ID")
	conn := fs.String("conn", "", "Connection ID")
	since := fs.String("since", "", "Keep events from this time (RFC3339)")
	until := fs.String("until", "", "Keep events before this time (RFC3339)")
	frames := fs.String("frame", "", "Frame tags, comma separated (e.g. U,SUBOK,CONF)")
	ops := fs.String("op", "", "Control request operations, comma separated (e.g. add,delete)")
	subID := fs.Int("sub", 0, "Subscription ID (LS_subId)")
	refused := fs.Bool("refused", false, "Keep only refused requests and errors")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.Selection{
		Output:  *output,
		Session: *session,
		Conn:    *conn,
		Since:   *since,
		Until:   *until,
		Frames:  splitList(*frames),
		Ops:     splitList(*ops),
		SubID:   *subID,
		Refused: *refused,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tlcp-log stats - Show statistics about the capture file

Usage:
  tlcp-log stats <file.tlog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

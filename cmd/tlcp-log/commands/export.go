package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tlcp-protocol/tlcp-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{"timestamp", "connection_id", "session_id", "transport", "direction", "layer", "category", "type", "detail"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType, detail := csvPayload(event)
		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.SessionID,
			event.Transport,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			eventType,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}

// csvPayload returns the type and a one-line detail of the event payload.
func csvPayload(event log.Event) (string, string) {
	switch {
	case event.Frame != nil:
		return "frame", event.Frame.Line
	case event.Request != nil:
		detail := event.Request.Op + " " + strconv.FormatUint(event.Request.ReqID, 10) + " " + event.Request.Outcome.String()
		if event.Request.Code != nil {
			detail += " " + strconv.Itoa(*event.Request.Code)
		}
		return "request", detail
	case event.StateChange != nil:
		sc := event.StateChange
		return "state", sc.Entity.String() + " " + sc.OldState + "->" + sc.NewState
	case event.Error != nil:
		return "error", event.Error.Message
	default:
		return "unknown", ""
	}
}

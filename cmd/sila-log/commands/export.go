package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sila-protocol/sila-go/pkg/log"
)

// RunExport exports the log file as JSON lines or CSV. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	var export func(string, io.Writer) error
	switch format {
	case "jsonl":
		export = exportJSONL
	case "csv":
		export = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return export(path, w)
}

func exportJSONL(path string, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return each(path, log.Filter{}, func(event log.Event) error {
		if event.Message != nil {
			msg := *event.Message
			msg.Payload = jsonable(msg.Payload)
			event.Message = &msg
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

var csvHeader = []string{"timestamp", "connection_id", "direction", "layer", "category", "server_id", "target", "type", "message_id"}

func exportCSV(path string, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := each(path, log.Filter{}, func(event log.Event) error {
		msgID := ""
		if event.Message != nil {
			msgID = strconv.FormatUint(uint64(event.Message.MessageID), 10)
		}
		row := []string{
			event.Timestamp.UTC().Format(timeLayout),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.ServerID,
			event.Target,
			eventType(event),
			msgID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

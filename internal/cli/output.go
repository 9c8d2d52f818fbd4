package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/waystation/wayside/internal/journal"
	"github.com/waystation/wayside/internal/way"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func encodeAsJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// encodeAsYAML goes through JSON so custom marshalers, and the fields they
// preserve, shape the document.
func encodeAsYAML(out io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func writeWaystation(out io.Writer, format string, ws way.Waystation) error {
	switch format {
	case formatJSON:
		return encodeAsJSON(out, ws)
	case formatYAML:
		return encodeAsYAML(out, ws)
	}
	name := ws.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "%s [%s]\n", name, ws.ID)
	if len(ws.Marks) == 0 {
		fmt.Fprintln(out, "  no marks")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, m := range ws.Marks {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", i+1, m.Location(), strings.TrimSpace(m.Context))
	}
	return tw.Flush()
}

func writeEntries(out io.Writer, format string, entries []journal.Entry) error {
	if entries == nil {
		entries = []journal.Entry{}
	}
	switch format {
	case formatJSON:
		return encodeAsJSON(out, entries)
	case formatYAML:
		return encodeAsYAML(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMMAND\tOUTCOME\tWAYSTATION\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Command, e.Outcome, e.WaystationID, e.Detail)
	}
	return tw.Flush()
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// OutputWriter renders command results as text lines, a table or the JSON
// envelope. Results go to out; progress and prompts go to errOut.
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	out      io.Writer
	errOut   io.Writer
	warnings []types.CLIWarning
}

func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet && !verbose,
		out:      os.Stdout,
		errOut:   os.Stderr,
		warnings: []types.CLIWarning{},
	}
}

func (w *OutputWriter) WithWriters(out, errOut io.Writer) *OutputWriter {
	w.out, w.errOut = out, errOut
	return w
}

// AddWarning attaches a warning to the next JSON envelope
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{Code: code, Message: message, Severity: severity})
}

func (w *OutputWriter) envelope(command string, data interface{}, errs ...types.CLIError) types.CLIOutput {
	if errs == nil {
		errs = []types.CLIError{}
	}
	return types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        errs,
	}
}

func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	switch w.format {
	case types.OutputFormatJSON:
		return w.encode(w.envelope(command, data))
	case types.OutputFormatTable:
		return w.writeTable(command, data)
	}
	return w.writeText(command, data)
}

// WriteError always uses the JSON envelope; text mode errors are printed by Execute
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	return w.encode(w.envelope(command, nil, cliErr))
}

func (w *OutputWriter) encode(v types.CLIOutput) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w *OutputWriter) writeText(command string, data interface{}) error {
	var lines []string
	switch v := data.(type) {
	case nil:
		return nil
	case types.LineRenderer:
		lines = v.Lines()
	case map[string]interface{}:
		for _, k := range sortedKeys(v) {
			lines = append(lines, fmt.Sprintf("%s: %v", k, v[k]))
		}
	default:
		return w.writeTable(command, data)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return err
		}
	}
	return nil
}

func (w *OutputWriter) writeTable(command string, data interface{}) error {
	switch v := data.(type) {
	case types.TableRenderer:
		return w.renderTable(v)
	case types.TableRenderable:
		return w.renderTable(v.AsTableRenderer())
	case map[string]interface{}:
		t := w.newTable([]string{"Key", "Value"})
		for _, k := range sortedKeys(v) {
			t.Append([]string{k, fmt.Sprintf("%v", v[k])})
		}
		t.Render()
		return nil
	}
	return w.encode(w.envelope(command, data))
}

func (w *OutputWriter) renderTable(r types.TableRenderer) error {
	rows := r.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			_, err := fmt.Fprintln(w.out, r.EmptyMessage())
			return err
		}
		return nil
	}
	t := w.newTable(r.Headers())
	t.AppendBulk(rows)
	t.Render()
	return nil
}

func (w *OutputWriter) newTable(headers []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w.out)
	t.SetHeader(headers)
	t.SetBorder(false)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// Log writes a progress line to errOut unless quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.errOut, format+"\n", args...)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

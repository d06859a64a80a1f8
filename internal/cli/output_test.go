package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/syncapp/internal/sync/index"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

func newTestWriter(format types.OutputFormat, quiet bool) (*OutputWriter, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewOutputWriter(format, quiet, false).WithWriters(out, errOut), out, errOut
}

func TestWriteSuccessText(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{
			name: "lines",
			data: queueList{{ID: 1, SrcURL: "file:///a/x", DstURL: "s3://b/x"}},
			want: "file:///a/x s3://b/x\n",
		},
		{
			name: "sorted map",
			data: map[string]interface{}{"total": 2, "failed": 0},
			want: "failed: 0\ntotal: 2\n",
		},
		{
			name: "nil",
			data: nil,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out, _ := newTestWriter(types.OutputFormatText, false)
			if err := w.WriteSuccess("test", tt.data); err != nil {
				t.Fatalf("WriteSuccess: %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("got %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestWriteSuccessJSONEnvelope(t *testing.T) {
	w, out, _ := newTestWriter(types.OutputFormatJSON, false)
	w.AddWarning("PARTIAL", "one URL skipped", "warning")
	if err := w.WriteSuccess("syncapp count", countList{{URL: "file:///a", Count: 3}}); err != nil {
		t.Fatalf("WriteSuccess: %v", err)
	}

	var env struct {
		SchemaVersion string             `json:"schemaVersion"`
		Command       string             `json:"command"`
		Data          []map[string]any   `json:"data"`
		Warnings      []types.CLIWarning `json:"warnings"`
		Errors        []types.CLIError   `json:"errors"`
	}
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if env.SchemaVersion != utils.SchemaVersion {
		t.Errorf("schemaVersion = %q", env.SchemaVersion)
	}
	if env.Command != "syncapp count" {
		t.Errorf("command = %q", env.Command)
	}
	if len(env.Data) != 1 || env.Data[0]["url"] != "file:///a" || env.Data[0]["count"] != float64(3) {
		t.Errorf("data = %v", env.Data)
	}
	if len(env.Warnings) != 1 || env.Warnings[0].Code != "PARTIAL" {
		t.Errorf("warnings = %v", env.Warnings)
	}
	if env.Errors == nil || len(env.Errors) != 0 {
		t.Errorf("errors = %v, want empty list", env.Errors)
	}
}

func TestWriteErrorJSON(t *testing.T) {
	w, out, _ := newTestWriter(types.OutputFormatJSON, false)
	cliErr := utils.NewCLIError(utils.ErrCodeInvalidURL, "bad url").Build()
	if err := w.WriteError("syncapp cp", cliErr); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	var env types.CLIOutput
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want null", env.Data)
	}
	if len(env.Errors) != 1 || env.Errors[0].Code != utils.ErrCodeInvalidURL {
		t.Errorf("errors = %v", env.Errors)
	}
}

func TestWriteSuccessTable(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		w, out, _ := newTestWriter(types.OutputFormatTable, false)
		run := time.Now().Add(-time.Hour)
		data := configList{
			{ID: 1, SrcURL: "file:///a", DstURL: "gs://b/a", LastRun: &run},
			{ID: 2, SrcURL: "file:///c", DstURL: "s3://d/c"},
		}
		if err := w.WriteSuccess("test", data); err != nil {
			t.Fatalf("WriteSuccess: %v", err)
		}
		got := out.String()
		for _, want := range []string{"SOURCE", "gs://b/a", "s3://d/c", "never", "hour ago"} {
			if !strings.Contains(got, want) {
				t.Errorf("table missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		w, out, _ := newTestWriter(types.OutputFormatTable, false)
		if err := w.WriteSuccess("test", blacklistList(nil)); err != nil {
			t.Fatalf("WriteSuccess: %v", err)
		}
		if strings.TrimSpace(out.String()) != "Blacklist is empty." {
			t.Errorf("got %q", out.String())
		}
	})

	t.Run("empty quiet", func(t *testing.T) {
		w, out, _ := newTestWriter(types.OutputFormatTable, true)
		if err := w.WriteSuccess("test", queueList(nil)); err != nil {
			t.Fatalf("WriteSuccess: %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("quiet table printed %q", out.String())
		}
	})

	t.Run("map", func(t *testing.T) {
		w, out, _ := newTestWriter(types.OutputFormatTable, false)
		if err := w.WriteSuccess("test", map[string]interface{}{"total": 4}); err != nil {
			t.Fatalf("WriteSuccess: %v", err)
		}
		if !strings.Contains(out.String(), "total") || !strings.Contains(out.String(), "4") {
			t.Errorf("got %q", out.String())
		}
	})
}

func TestLogRespectsQuiet(t *testing.T) {
	w, _, errOut := newTestWriter(types.OutputFormatText, true)
	w.Log("hello %s", "there")
	if errOut.Len() != 0 {
		t.Errorf("quiet writer logged %q", errOut.String())
	}

	w, _, errOut = newTestWriter(types.OutputFormatText, false)
	w.Log("hello %s", "there")
	if errOut.String() != "hello there\n" {
		t.Errorf("got %q", errOut.String())
	}
}

func TestPairListRendering(t *testing.T) {
	p := pairList{{Src: "file:///a/x", Dst: "s3://b/x", Size: "1.0 kB"}, {Src: "file:///a/y", Dst: "s3://b/y"}}
	if got := p.Lines(); len(got) != 2 || got[0] != "file:///a/x s3://b/x" {
		t.Errorf("Lines() = %v", got)
	}
	rows := p.Rows()
	if rows[1][2] != "-" {
		t.Errorf("missing size rendered as %q", rows[1][2])
	}
}

func TestBlacklistLines(t *testing.T) {
	b := blacklistList{index.BlacklistEntry{ID: 7, URL: "file:///tmp/"}}
	if got := b.Lines(); len(got) != 1 || got[0] != "7\tfile:///tmp/" {
		t.Errorf("Lines() = %v", got)
	}
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dl-alexandre/syncapp/internal/config"
	"github.com/dl-alexandre/syncapp/internal/sync/scanner"
	tu "github.com/dl-alexandre/syncapp/internal/testing"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

// runCLI executes the root command against a private config directory and
// returns what it wrote to stdout
func runCLI(t *testing.T, configDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvPrefix+"CONFIG_DIR", configDir)
	globalFlags = types.GlobalFlags{}
	for _, c := range rootCmd.Commands() {
		if f := c.Flags().Lookup("url"); f != nil {
			if v, ok := f.Value.(interface{ Replace([]string) error }); ok {
				_ = v.Replace(nil)
			}
			f.Changed = false
		}
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

func decodeEnvelope(t *testing.T, raw string, data interface{}) types.CLIOutput {
	t.Helper()
	env := types.CLIOutput{Data: data}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return env
}

func errCode(err error) string {
	return utils.AsCLIError(err).Code
}

func TestSyncCommandsEndToEnd(t *testing.T) {
	cfgDir := t.TempDir()
	a, b := t.TempDir(), t.TempDir()
	tu.WriteFile(t, a, "one.txt", "1")
	tu.WriteFile(t, a, "sub/two.txt", "22")
	urlA, urlB := scanner.LocalURL(a), scanner.LocalURL(b)

	_, err := runCLI(t, cfgDir, "add", urlA, urlB)
	tu.AssertNoError(t, err, "add")

	out, err := runCLI(t, cfgDir, "show-config")
	tu.AssertNoError(t, err, "show-config")
	tu.AssertEqual(t, strings.TrimSpace(out), urlA+" "+urlB)

	out, err = runCLI(t, cfgDir, "sync")
	tu.AssertNoError(t, err, "sync")
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 {
		t.Fatalf("sync printed %d queue lines:\n%s", len(lines), out)
	}

	_, err = runCLI(t, cfgDir, "process")
	tu.AssertNoError(t, err, "process")

	got, err := os.ReadFile(filepath.Join(b, "sub", "two.txt"))
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, string(got), "22")

	out, err = runCLI(t, cfgDir, "show")
	tu.AssertNoError(t, err, "show")
	tu.AssertEqual(t, out, "")

	if _, err := os.Stat(filepath.Join(cfgDir, config.DatabaseFileName)); err != nil {
		t.Errorf("index database not created under config dir: %v", err)
	}
}

func TestCountJSON(t *testing.T) {
	cfgDir := t.TempDir()
	a := t.TempDir()
	tu.WriteFile(t, a, "x", "x")
	tu.WriteFile(t, a, "y/z", "z")

	out, err := runCLI(t, cfgDir, "--json", "count", scanner.LocalURL(a))
	tu.AssertNoError(t, err)

	var data []struct {
		URL   string `json:"url"`
		Count int    `json:"count"`
	}
	env := decodeEnvelope(t, out, &data)
	tu.AssertEqual(t, env.Command, "syncapp count")
	if len(data) != 1 || data[0].Count != 2 {
		t.Errorf("data = %+v", data)
	}
}

func TestShowConfigTable(t *testing.T) {
	cfgDir := t.TempDir()
	_, err := runCLI(t, cfgDir, "add", "file:///srv/a", "s3://bucket/a")
	tu.AssertNoError(t, err)

	out, err := runCLI(t, cfgDir, "--output", "table", "show-config")
	tu.AssertNoError(t, err)
	for _, want := range []string{"SOURCE", "s3://bucket/a", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestURLFlagKeepsCommas(t *testing.T) {
	cfgDir := t.TempDir()
	src, dst := "file:///srv/reports,2024", "s3://bucket/reports,2024"

	_, err := runCLI(t, cfgDir, "add", "-u", src, "-u", dst)
	tu.AssertNoError(t, err, "add")
	out, err := runCLI(t, cfgDir, "show-config")
	tu.AssertNoError(t, err, "show-config")
	tu.AssertEqual(t, strings.TrimSpace(out), src+" "+dst)

	_, err = runCLI(t, cfgDir, "rm-config", src, dst)
	tu.AssertNoError(t, err, "rm-config")
	out, err = runCLI(t, cfgDir, "show-config")
	tu.AssertNoError(t, err, "show-config")
	tu.AssertEqual(t, out, "")
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad output format", []string{"--output", "xml", "show"}, utils.ErrCodeInvalidArgument},
		{"negative workers", []string{"--workers=-1", "show"}, utils.ErrCodeInvalidArgument},
		{"copy needs two urls", []string{"cp", "file:///only"}, utils.ErrCodeInvalidArgument},
		{"unsupported scheme", []string{"count", "ftp://host/x"}, utils.ErrCodeInvalidURL},
		{"move across services", []string{"mv", "file:///a/x", "s3://b/x"}, utils.ErrCodeServiceTypeMismatch},
		{"bad blacklist id", []string{"blacklist", "rm", "abc"}, utils.ErrCodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, t.TempDir(), tt.args...)
			if err == nil {
				t.Fatalf("%v: expected error", tt.args)
			}
			tu.AssertEqual(t, errCode(err), tt.want)
		})
	}
}

func TestBlacklistCommands(t *testing.T) {
	cfgDir := t.TempDir()
	_, err := runCLI(t, cfgDir, "blacklist", "add", "file:///data/tmp/")
	tu.AssertNoError(t, err)

	out, err := runCLI(t, cfgDir, "blacklist", "ls")
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, out, "1\tfile:///data/tmp/\n")

	_, err = runCLI(t, cfgDir, "blacklist", "rm", "1")
	tu.AssertNoError(t, err)

	out, err = runCLI(t, cfgDir, "--json", "blacklist", "ls")
	tu.AssertNoError(t, err)
	var entries []map[string]interface{}
	decodeEnvelope(t, out, &entries)
	if len(entries) != 0 {
		t.Errorf("entries after rm = %v", entries)
	}
}

func TestConfigSet(t *testing.T) {
	cfgDir := t.TempDir()

	_, err := runCLI(t, cfgDir, "config", "set", "workers", "8")
	tu.AssertNoError(t, err)

	t.Setenv(config.EnvPrefix+"CONFIG_DIR", cfgDir)
	cfg, err := config.Load()
	tu.AssertNoError(t, err)
	tu.AssertEqual(t, cfg.Workers, 8)

	for _, args := range [][]string{
		{"config", "set", "workers", "0"},
		{"config", "set", "workers", "many"},
		{"config", "set", "nosuchkey", "1"},
		{"config", "set", "defaultoutputformat", "xml"},
	} {
		_, err := runCLI(t, cfgDir, args...)
		if err == nil {
			t.Errorf("%v: expected error", args)
			continue
		}
		tu.AssertEqual(t, errCode(err), utils.ErrCodeInvalidArgument, args)
	}
}

func TestLogConfigFollowsFlags(t *testing.T) {
	cfg := config.DefaultConfig()

	globalFlags = types.GlobalFlags{OutputFormat: types.OutputFormatJSON}
	if logConfig(cfg).EnableConsole {
		t.Error("json output should keep the console logger quiet")
	}

	globalFlags = types.GlobalFlags{OutputFormat: types.OutputFormatText, Verbose: true}
	lc := logConfig(cfg)
	if !lc.EnableConsole {
		t.Error("verbose text output should log to the console")
	}
	tu.AssertEqual(t, lc.Level.String(), "DEBUG")

	globalFlags = types.GlobalFlags{OutputFormat: types.OutputFormatText, Quiet: true, LogFile: "/tmp/x.log"}
	lc = logConfig(cfg)
	if lc.EnableConsole {
		t.Error("quiet should disable console logging")
	}
	tu.AssertEqual(t, lc.OutputFile, "/tmp/x.log")
}

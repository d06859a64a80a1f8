// Package ssh implements the backend for ssh://user@host[:port]/path URLs.
//
// Listings are produced by running this tool on the remote host against a
// file:// URL and parsing its NDJSON serialization. Transfers go through scp
// and mutations through remote shell commands. Commands to one host are
// serialized.
package ssh

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/dl-alexandre/syncapp/internal/api"
	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/fileinfo"
	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

const defaultPort = 22

// Options name the local and remote programs
type Options struct {
	SSHCommand    string
	SCPCommand    string
	RemoteCommand string
	// Compress asks the remote side for a gzip serialization
	Compress bool
}

func (o Options) withDefaults() Options {
	if o.SSHCommand == "" {
		o.SSHCommand = "ssh"
	}
	if o.SCPCommand == "" {
		o.SCPCommand = "scp"
	}
	if o.RemoteCommand == "" {
		o.RemoteCommand = utils.DefaultRemoteCommand
	}
	return o
}

// Host is the remote end of an ssh URL
type Host struct {
	User string
	Name string
	Port int
}

// HostFromURL parses user, host and port. The port defaults to 22.
func HostFromURL(u *url.URL) (Host, error) {
	if u.Hostname() == "" {
		return Host{}, fmt.Errorf("no host in %q", u.String())
	}
	h := Host{Name: u.Hostname(), Port: defaultPort}
	if u.User != nil {
		h.User = u.User.Username()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Host{}, fmt.Errorf("invalid port %q", p)
		}
		h.Port = port
	}
	return h, nil
}

func (h Host) userHost() string {
	if h.User == "" {
		return h.Name
	}
	return h.User + "@" + h.Name
}

// URLPrefix is the ssh:// prefix remote paths are appended to
func (h Host) URLPrefix() string {
	host := h.Name
	if h.Port != defaultPort {
		host = fmt.Sprintf("%s:%d", h.Name, h.Port)
	}
	if h.User == "" {
		return "ssh://" + host
	}
	return "ssh://" + h.User + "@" + host
}

// sshArgs are the arguments running cmd on the host
func (h Host) sshArgs(cmd string) []string {
	var args []string
	if h.Port != defaultPort {
		args = append(args, "-p", strconv.Itoa(h.Port))
	}
	return append(args, h.userHost(), cmd)
}

// scpTarget renders user@host:path with spaces escaped for the remote shell
func (h Host) scpTarget(p string) string {
	return h.userHost() + ":" + escapeSpaces(p)
}

func (h Host) scpArgs(src, dst string) []string {
	var args []string
	if h.Port != defaultPort {
		args = append(args, "-P", strconv.Itoa(h.Port))
	}
	return append(args, src, dst)
}

func escapeSpaces(p string) string {
	return strings.ReplaceAll(p, " ", `\ `)
}

type Adapter struct {
	list   *backend.FileList
	host   Host
	runner Runner
	locks  *backend.HostLocks
	client *api.Client
	opts   Options
	logger logging.Logger
}

// New builds an adapter for an ssh:// URL. The session is
// ssh://user@host[:port]/basepath.
func New(rawURL string, runner Runner, locks *backend.HostLocks, opts Options, client *api.Client, logger logging.Logger) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "ssh" {
		return nil, fmt.Errorf("%w: %s", fileinfo.ErrWrongScheme, u.Scheme)
	}
	host, err := HostFromURL(u)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if locks == nil {
		locks = backend.NewHostLocks()
	}
	if client == nil {
		client = api.NewClient("ssh", api.NoRetry(), logger)
	}
	client = client.WithClassifier(classifyCommand(host.Name))
	basePath := u.Path
	session := host.URLPrefix() + basePath
	return &Adapter{
		list:   backend.NewFileList(u.String(), basePath, fileinfo.ServiceSSH, session),
		host:   host,
		runner: runner,
		locks:  locks,
		client: client,
		opts:   opts.withDefaults(),
		logger: logging.OrNoOp(logger).With(logging.F("backend", "ssh"), logging.F("host", host.Name)),
	}, nil
}

func (a *Adapter) List() *backend.FileList { return a.list }

// sshTransportExit is the status ssh exits with when the connection itself
// failed rather than the remote command
const sshTransportExit = 255

type exitCoder interface {
	ExitCode() int
}

// classifyCommand maps a failed local program to an app error. Transport
// failures are retryable; a remote command that ran and failed is not.
func classifyCommand(host string) api.Classifier {
	return func(err error, reqCtx *types.RequestContext, _ logging.Logger) error {
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return err
		}
		code, retryable := utils.ErrCodeRemoteCommandFailed, false
		var exit exitCoder
		if errors.As(err, &exit) && exit.ExitCode() == sshTransportExit {
			code, retryable = utils.ErrCodeNetworkError, true
		}
		return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
			WithContext("host", host).
			WithContext("url", reqCtx.URL).
			WithRetryable(retryable).
			Build(), err)
	}
}

// run executes one local program while holding the host lock
func (a *Adapter) run(ctx context.Context, rawURL, name string, args ...string) ([]byte, error) {
	reqCtx := a.client.NewRequestContext(a.list.Session(), types.RequestTypeCommand)
	reqCtx.URL = rawURL
	return api.ExecuteWithRetry(ctx, a.client, reqCtx, func() ([]byte, error) {
		lock := a.locks.For(a.host.Name)
		lock.Lock()
		defer lock.Unlock()

		a.logger.Debug("Running command", logging.F("cmd", name), logging.F("args", strings.Join(args, " ")))
		return a.runner.Run(ctx, name, args...)
	})
}

func (a *Adapter) remote(ctx context.Context, rawURL, cmd string) ([]byte, error) {
	return a.run(ctx, rawURL, a.opts.SSHCommand, a.host.sshArgs(cmd)...)
}

func (a *Adapter) remoteTool(subcommand string, extra ...string) string {
	parts := append([]string{a.opts.RemoteCommand, subcommand, "-u", "file://" + escapeSpaces(a.list.BasePath())}, extra...)
	return strings.Join(parts, " ")
}

// FillFileList indexes the base path on the remote host and reads back its
// serialization. A serialization whose length differs from the remote count
// is fetched again, up to MaxRemoteTries times.
func (a *Adapter) FillFileList(ctx context.Context) ([]*fileinfo.FileInfo, error) {
	base := a.list.BaseURL()
	if _, err := a.remote(ctx, base, a.remoteTool("index")); err != nil {
		return nil, err
	}
	out, err := a.remote(ctx, base, a.remoteTool("count"))
	if err != nil {
		return nil, err
	}
	expected := parseCount(out)
	if expected == 0 {
		a.logger.Info("Remote path empty", logging.F("path", a.list.BasePath()))
		return []*fileinfo.FileInfo{}, nil
	}

	var extra []string
	if a.opts.Compress {
		extra = append(extra, "--compress")
	}
	actual := 0
	for attempt := 1; attempt <= utils.MaxRemoteTries; attempt++ {
		raw, err := a.remote(ctx, base, a.remoteTool("ser", extra...))
		if err != nil {
			return nil, err
		}
		files, err := a.decode(raw)
		if err != nil {
			return nil, err
		}
		if len(files) == expected {
			return files, nil
		}
		actual = len(files)
		a.logger.Warn("Remote listing incomplete",
			logging.F("attempt", attempt),
			logging.F("expected", expected),
			logging.F("actual", actual),
		)
	}
	return nil, fmt.Errorf("%s %s Expected %d doesn't match actual count %d",
		fileinfo.ServiceSSH, a.list.Session(), expected, actual)
}

// parseCount reads the second tab separated field of the first line
func parseCount(out []byte) int {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0
	}
	return n
}

// decode parses a remote serialization and rewrites local identities into
// this host's
func (a *Adapter) decode(raw []byte) ([]*fileinfo.FileInfo, error) {
	var r io.Reader = bytes.NewReader(raw)
	if a.opts.Compress {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("remote serialization: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	files, err := fileinfo.ReadNDJSON(r)
	if err != nil {
		return nil, err
	}
	prefix := a.host.URLPrefix()
	for _, f := range files {
		f.URL = strings.Replace(f.URL, "file://", prefix, 1)
		f.ServiceType = fileinfo.ServiceSSH
		f.ServiceID = a.list.BaseURL()
		f.ServiceSession = a.list.Session()
	}
	return files, nil
}

// PrintList runs a remote listing and prefixes each path with the host URL
func (a *Adapter) PrintList(ctx context.Context, w io.Writer) error {
	out, err := a.remote(ctx, a.list.BaseURL(), a.remoteTool("ls"))
	if err != nil {
		return err
	}
	prefix := a.host.URLPrefix()
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(w, prefix+line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func remotePath(f *fileinfo.FileInfo) (*url.URL, error) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", f.URL, err)
	}
	return u, nil
}

// CopyFrom fetches a remote file with scp
func (a *Adapter) CopyFrom(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceSSH, fileinfo.ServiceLocal); err != nil {
		return err
	}
	u, err := remotePath(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst.Filepath), 0755); err != nil {
		return err
	}
	_, err = a.run(ctx, src.URL, a.opts.SCPCommand, a.host.scpArgs(a.host.scpTarget(u.Path), dst.Filepath)...)
	return err
}

// CopyTo creates the remote parent directory and pushes a local file with scp
func (a *Adapter) CopyTo(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if err := backend.CheckTypes(src, dst, fileinfo.ServiceLocal, fileinfo.ServiceSSH); err != nil {
		return err
	}
	u, err := remotePath(dst)
	if err != nil {
		return err
	}
	if _, err := a.remote(ctx, dst.URL, "mkdir -p "+escapeSpaces(path.Dir(u.Path))); err != nil {
		return err
	}
	_, err = a.run(ctx, dst.URL, a.opts.SCPCommand, a.host.scpArgs(src.Filepath, a.host.scpTarget(u.Path))...)
	return err
}

// MoveFile renames on the remote host. Moves between different users or
// hosts are ignored.
func (a *Adapter) MoveFile(ctx context.Context, src, dst *fileinfo.FileInfo) error {
	if !backend.SameBackend(fileinfo.ServiceSSH, src, dst) {
		return nil
	}
	u0, err := remotePath(src)
	if err != nil {
		return err
	}
	u1, err := remotePath(dst)
	if err != nil {
		return err
	}
	if u0.User.Username() != u1.User.Username() || u0.Hostname() != u1.Hostname() {
		return nil
	}
	_, err = a.remote(ctx, dst.URL, "mv "+escapeSpaces(u0.Path)+" "+escapeSpaces(u1.Path))
	return err
}

func (a *Adapter) Delete(ctx context.Context, f *fileinfo.FileInfo) error {
	if f.ServiceType != fileinfo.ServiceSSH {
		return fmt.Errorf("%w: cannot delete %s object from ssh backend", backend.ErrServiceTypeMismatch, f.ServiceType)
	}
	u, err := remotePath(f)
	if err != nil {
		return err
	}
	_, err = a.remote(ctx, f.URL, "rm "+escapeSpaces(u.Path))
	return err
}

func (a *Adapter) Cleanup() error { return nil }

var _ backend.Adapter = (*Adapter)(nil)

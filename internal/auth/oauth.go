package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dl-alexandre/syncapp/internal/logging"
)

const defaultAuthTimeout = 5 * time.Minute

var errNoOAuthConfig = errors.New("OAuth config not set")

// OAuthFlow is one PKCE authorization-code exchange. A loopback flow
// receives the code on a local callback server; a manual flow has no
// listener and expects the user to paste the code.
type OAuthFlow struct {
	config       *oauth2.Config
	listener     net.Listener
	redirectURL  string
	state        string
	codeVerifier string
	codeChan     chan string
	errChan      chan error
}

func NewOAuthFlow(config *oauth2.Config, listener net.Listener, redirectURL string) (*OAuthFlow, error) {
	if config == nil {
		return nil, errNoOAuthConfig
	}
	cfg := *config
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL not set")
	}

	state, err := randomToken(base64.URLEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier, err := randomToken(base64.RawURLEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &OAuthFlow{
		config:       &cfg,
		listener:     listener,
		redirectURL:  cfg.RedirectURL,
		state:        state,
		codeVerifier: verifier,
		codeChan:     make(chan string, 1),
		errChan:      make(chan error, 1),
	}, nil
}

// GetAuthURL returns the consent URL carrying the state and S256 challenge
func (f *OAuthFlow) GetAuthURL() string {
	return f.config.AuthCodeURL(
		f.state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", codeChallengeS256(f.codeVerifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// StartCallbackServer serves /callback on the flow's listener until ctx is done
func (f *OAuthFlow) StartCallbackServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.handleCallback)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(f.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.fail(err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
}

func (f *OAuthFlow) fail(err error) {
	select {
	case f.errChan <- err:
	default:
	}
}

func (f *OAuthFlow) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != f.state {
		f.fail(fmt.Errorf("invalid state parameter"))
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		f.fail(fmt.Errorf("auth error: %s", q.Get("error")))
		http.Error(w, "No code received", http.StatusBadRequest)
		return
	}

	select {
	case f.codeChan <- code:
	default:
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, `<html><body><h1>syncapp is authorized</h1><p>You can close this window.</p></body></html>`)
}

// WaitForCode blocks until the callback delivers a code or timeout elapses
func (f *OAuthFlow) WaitForCode(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case code := <-f.codeChan:
		return code, nil
	case err := <-f.errChan:
		return "", err
	case <-timer.C:
		return "", fmt.Errorf("authentication timed out after %s", timeout)
	}
}

// ExchangeCode trades the authorization code and verifier for a token
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := f.config.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", f.codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tok, nil
}

func (f *OAuthFlow) Close() {
	if f.listener != nil {
		_ = f.listener.Close()
	}
}

func randomToken(enc *base64.Encoding) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return enc.EncodeToString(b), nil
}

func codeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// readAuthCode accepts either the bare code or the whole redirected URL
func readAuthCode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read authorization code: %w", err)
	}
	line = strings.TrimSpace(line)
	if u, err := url.Parse(line); err == nil && u.Query().Get("code") != "" {
		return u.Query().Get("code"), nil
	}
	if line == "" {
		return "", fmt.Errorf("no authorization code entered")
	}
	return line, nil
}

// OAuthAuthOptions controls OAuth authentication behavior.
type OAuthAuthOptions struct {
	NoBrowser bool
	// Prompt receives the instructions shown to the user (stderr when nil)
	Prompt io.Writer
	// Input supplies the pasted code in the manual flow (stdin when nil)
	Input   io.Reader
	Timeout time.Duration
}

func (o OAuthAuthOptions) withDefaults() OAuthAuthOptions {
	if o.Prompt == nil {
		o.Prompt = os.Stderr
	}
	if o.Input == nil {
		o.Input = os.Stdin
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultAuthTimeout
	}
	return o
}

// Authenticate obtains a token for a Drive session and stores it. The
// browser and loopback callback are tried first; headless environments,
// NoBrowser and a browser that fails to launch fall back to pasting the code.
func (m *Manager) Authenticate(ctx context.Context, session string, openBrowser func(string) error, opts OAuthAuthOptions) (*oauth2.Token, error) {
	if m.oauthConfig == nil {
		return nil, errNoOAuthConfig
	}
	opts = opts.withDefaults()

	var (
		flow *OAuthFlow
		code string
		err  error
	)
	if !opts.NoBrowser && !isHeadlessEnv() {
		flow, code, err = m.browserCode(ctx, openBrowser, opts)
	}
	if flow == nil && err == nil {
		flow, code, err = m.manualCode(opts)
	}
	if err != nil {
		return nil, err
	}

	tok, err := flow.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := m.SaveToken(session, tok); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	m.logger.Info("Stored Drive token", logging.F("session", session), logging.F("store", m.StoreName()))
	return tok, nil
}

// browserCode runs the loopback flow. A nil flow with a nil error means the
// browser route is unavailable and the caller should fall back.
func (m *Manager) browserCode(ctx context.Context, openBrowser func(string) error, opts OAuthAuthOptions) (*OAuthFlow, string, error) {
	flow, err := newLoopbackFlow(m.oauthConfig)
	if err != nil {
		m.logger.Debug("Loopback callback unavailable", logging.Err(err))
		return nil, "", nil
	}
	defer flow.Close()

	cbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	flow.StartCallbackServer(cbCtx)

	authURL := flow.GetAuthURL()
	if openBrowser == nil {
		return nil, "", nil
	}
	if err := openBrowser(authURL); err != nil {
		fmt.Fprintf(opts.Prompt, "Failed to open browser: %v\nSwitching to manual authentication.\n", err)
		return nil, "", nil
	}
	fmt.Fprintf(opts.Prompt, "Opening browser for authentication...\nIf it doesn't open, visit: %s\n", authURL)

	code, err := flow.WaitForCode(opts.Timeout)
	if err != nil {
		return nil, "", err
	}
	return flow, code, nil
}

func (m *Manager) manualCode(opts OAuthAuthOptions) (*OAuthFlow, string, error) {
	flow, err := newManualFlow(m.oauthConfig)
	if err != nil {
		return nil, "", err
	}
	fmt.Fprintf(opts.Prompt, "Open this URL in a browser and approve access:\n%s\n"+
		"You will be redirected to a localhost address that does not load.\n"+
		"Paste that address (or just its code parameter) here: ", flow.GetAuthURL())
	code, err := readAuthCode(opts.Input)
	if err != nil {
		return nil, "", err
	}
	return flow, code, nil
}

func newLoopbackFlow(config *oauth2.Config) (*OAuthFlow, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	flow, err := NewOAuthFlow(config, listener, fmt.Sprintf("http://127.0.0.1:%d/callback", port))
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return flow, nil
}

func newManualFlow(config *oauth2.Config) (*OAuthFlow, error) {
	return NewOAuthFlow(config, nil, fmt.Sprintf("http://127.0.0.1:%d/callback", pickManualPort()))
}

// pickManualPort returns a loopback port with no listener behind it
func pickManualPort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 8765
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func isHeadlessEnv() bool {
	for _, k := range []string{"SYNCAPP_NO_BROWSER", "CI", "GITHUB_ACTIONS", "SSH_CONNECTION", "SSH_TTY"} {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return runtime.GOOS != "windows" && runtime.GOOS != "darwin" &&
		os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == ""
}

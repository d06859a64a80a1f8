package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dl-alexandre/syncapp/internal/logging"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

const (
	keyringService     = "syncapp"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager loads, refreshes and persists OAuth tokens per Drive session
type Manager struct {
	tokenDir     string
	store        TokenStore
	oauthConfig  *oauth2.Config
	storeWarning string
	logger       logging.Logger

	mu sync.Mutex
}

// ManagerOptions select the token store
type ManagerOptions struct {
	ForceEncryptedFile bool
	ForcePlainFile     bool
	// Store overrides the store selection entirely
	Store  TokenStore
	Logger logging.Logger
}

// NewManager picks the system keyring when usable, otherwise an encrypted
// file store under tokenDir.
func NewManager(tokenDir string, opts ManagerOptions) *Manager {
	m := &Manager{tokenDir: tokenDir, logger: logging.OrNoOp(opts.Logger)}

	switch {
	case opts.Store != nil:
		m.store = opts.Store
	case opts.ForcePlainFile:
		m.store = NewPlainFileStore(tokenDir)
		m.storeWarning = "WARNING: Using unencrypted file storage. Tokens are stored in plain text."
	case opts.ForceEncryptedFile || !keyringAvailable(keyringService):
		store, err := NewEncryptedFileStore(tokenDir)
		if err != nil {
			m.store = NewPlainFileStore(tokenDir)
			m.storeWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		m.store = store
		if !opts.ForceEncryptedFile {
			m.storeWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		m.store = NewKeyringStore(keyringService)
	}
	return m
}

// BundledOAuthClientID and BundledOAuthClientSecret are set at build time
// with -ldflags -X
var (
	BundledOAuthClientID     string
	BundledOAuthClientSecret string
)

// LoadClientSecret reads an installed-app client secret file. With no file
// the client compiled into the binary is used.
func (m *Manager) LoadClientSecret(path string, scopes ...string) error {
	if len(scopes) == 0 {
		scopes = utils.ScopesDriveSync
	}
	if path == "" {
		if BundledOAuthClientID == "" {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeConfigError,
				"No Drive client secret configured. Set gdriveSecretFile.").Build())
		}
		m.SetOAuthConfig(&oauth2.Config{
			ClientID:     BundledOAuthClientID,
			ClientSecret: BundledOAuthClientSecret,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		})
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError,
			fmt.Sprintf("cannot read client secret %s", path)).Build(), err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError,
			fmt.Sprintf("invalid client secret %s", path)).Build(), err)
	}
	m.SetOAuthConfig(cfg)
	return nil
}

func (m *Manager) SetOAuthConfig(cfg *oauth2.Config) {
	m.oauthConfig = cfg
}

func (m *Manager) OAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

// LoadToken returns the stored token for a session without refreshing it
func (m *Manager) LoadToken(session string) (*oauth2.Token, error) {
	data, err := m.store.Load(session)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return &tok, nil
}

func (m *Manager) SaveToken(session string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return m.store.Save(session, data)
}

func (m *Manager) DeleteToken(session string) error {
	return m.store.Delete(session)
}

// NeedsRefresh reports whether tok expires within the refresh buffer
func NeedsRefresh(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(tokenRefreshBuffer).After(tok.Expiry)
}

// Token returns a valid access token for session, refreshing and saving it
// when it is close to expiry.
func (m *Manager) Token(ctx context.Context, session string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.LoadToken(session)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No token for %s. Run 'syncapp auth login %s' first.", session, session)).Build(), err)
	}
	if !NeedsRefresh(tok) {
		return tok, nil
	}
	if m.oauthConfig == nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeConfigError, "OAuth config not set").Build())
	}

	// Force the refresh by presenting the token as already expired
	stale := *tok
	stale.Expiry = time.Now().Add(-time.Minute)
	fresh, err := m.oauthConfig.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			fmt.Sprintf("Token refresh failed for %s. Run 'syncapp auth login %s'.", session, session)).Build(), err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := m.SaveToken(session, fresh); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	m.logger.Debug("Token refreshed", logging.F("session", session), logging.F("expiry", fresh.Expiry))
	return fresh, nil
}

// TokenSource adapts Token to oauth2.TokenSource
func (m *Manager) TokenSource(ctx context.Context, session string) oauth2.TokenSource {
	return &managedSource{ctx: ctx, m: m, session: session}
}

type managedSource struct {
	ctx     context.Context
	m       *Manager
	session string
}

func (s *managedSource) Token() (*oauth2.Token, error) {
	return s.m.Token(s.ctx, s.session)
}

// HTTPClient returns a client that authorizes requests for session
func (m *Manager) HTTPClient(ctx context.Context, session string) (*http.Client, error) {
	if _, err := m.Token(ctx, session); err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, m.TokenSource(ctx, session))), nil
}

// HasToken reports whether a token is stored for session
func (m *Manager) HasToken(session string) bool {
	_, err := m.store.Load(session)
	return err == nil
}

func (m *Manager) TokenDir() string {
	return m.tokenDir
}

func (m *Manager) StoreName() string {
	return m.store.Name()
}

func (m *Manager) StoreWarning() string {
	return m.storeWarning
}

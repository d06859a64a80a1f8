package cli

import (
	"io"
	"sync"

	"github.com/dl-alexandre/syncapp/internal/auth"
	"github.com/dl-alexandre/syncapp/internal/backend/factory"
	"github.com/dl-alexandre/syncapp/internal/logging"
	syncengine "github.com/dl-alexandre/syncapp/internal/sync"
	"github.com/dl-alexandre/syncapp/internal/sync/index"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

var (
	authOnce      sync.Once
	authMgr       *auth.Manager
	authSecretErr error
)

// authManager builds the Drive token manager on first use so commands that
// never touch gdrive:// URLs leave the keyring alone. A missing client secret
// does not stop token inspection; driveAuth reports it.
func authManager() *auth.Manager {
	authOnce.Do(func() {
		authMgr = auth.NewManager(appConfig.GDriveTokenPath, auth.ManagerOptions{Logger: logger})
		if err := authMgr.LoadClientSecret(appConfig.GDriveSecretFile, utils.ScopesDriveSync...); err != nil {
			authSecretErr = utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				"Google Drive client secret unavailable: "+err.Error()).Build(), err)
		}
		if w := authMgr.StoreWarning(); w != "" {
			logger.Debug(w)
		}
	})
	return authMgr
}

// driveAuth returns a manager able to run the OAuth flow and refresh tokens
func driveAuth() (*auth.Manager, error) {
	mgr := authManager()
	if authSecretErr != nil {
		return nil, authSecretErr
	}
	return mgr, nil
}

// openEngine opens the index database and wires the adapter factory
func openEngine(out io.Writer) (*syncengine.Engine, error) {
	db, err := index.Open(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeConfigError,
			"open index database: "+err.Error()).
			WithContext("path", appConfig.DatabasePath).
			Build(), err)
	}
	f := factory.New(appConfig, db, factory.DefaultServices(appConfig, driveAuth), logger)
	logger.Debug("Opened index", logging.F("path", appConfig.DatabasePath), logging.F("workers", workers()))
	return syncengine.NewEngine(db, f, syncengine.Options{Workers: workers(), Out: out}, logger), nil
}

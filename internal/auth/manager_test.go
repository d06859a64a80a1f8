package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/dl-alexandre/syncapp/internal/utils"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManager(dir, ManagerOptions{Store: NewPlainFileStore(dir)})
}

func TestNeedsRefresh(t *testing.T) {
	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"expired", time.Now().Add(-time.Hour), true},
		{"expiring within buffer", time.Now().Add(3 * time.Minute), true},
		{"valid", time.Now().Add(time.Hour), false},
		{"no expiry", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRefresh(&oauth2.Token{Expiry: tt.expiry}); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenMissing(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Token(context.Background(), "nobody@gmail.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := utils.AsCLIError(err).Code; code != utils.ErrCodeAuthRequired {
		t.Errorf("code = %s, want AUTH_REQUIRED", code)
	}
	if m.HasToken("nobody@gmail.com") {
		t.Error("HasToken should be false")
	}
}

func TestTokenValidIsReturnedAsIs(t *testing.T) {
	m := newTestManager(t)
	want := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}
	if err := m.SaveToken("user@gmail.com", want); err != nil {
		t.Fatal(err)
	}
	got, err := m.Token(context.Background(), "user@gmail.com")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got.AccessToken != "at" {
		t.Errorf("access token = %q", got.AccessToken)
	}
}

func TestTokenRefreshIsPersisted(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.FormValue("grant_type") != "refresh_token" || r.FormValue("refresh_token") != "rt" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	m := newTestManager(t)
	m.SetOAuthConfig(testOAuthConfig(srv.URL))
	if err := m.SaveToken("user@gmail.com", &oauth2.Token{AccessToken: "old", RefreshToken: "rt", Expiry: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}

	got, err := m.Token(context.Background(), "user@gmail.com")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got.AccessToken != "fresh" || got.RefreshToken != "rt" {
		t.Errorf("token = %+v", got)
	}
	stored, err := m.LoadToken("user@gmail.com")
	if err != nil || stored.AccessToken != "fresh" {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	if _, err := m.Token(context.Background(), "user@gmail.com"); err != nil {
		t.Fatal(err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
}

func TestTokenRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	m := newTestManager(t)
	m.SetOAuthConfig(testOAuthConfig(srv.URL))
	_ = m.SaveToken("user@gmail.com", &oauth2.Token{AccessToken: "old", RefreshToken: "rt", Expiry: time.Now().Add(-time.Minute)})

	_, err := m.Token(context.Background(), "user@gmail.com")
	if code := utils.AsCLIError(err).Code; code != utils.ErrCodeAuthExpired {
		t.Errorf("code = %s, want AUTH_EXPIRED", code)
	}
}

func TestLoadClientSecret(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "client_secret.json")
	body := `{"installed":{"client_id":"cid","client_secret":"cs","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(secret, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t)
	if err := m.LoadClientSecret(secret); err != nil {
		t.Fatalf("LoadClientSecret: %v", err)
	}
	if m.OAuthConfig().ClientID != "cid" || len(m.OAuthConfig().Scopes) != 1 {
		t.Errorf("config = %+v", m.OAuthConfig())
	}

	err := m.LoadClientSecret(filepath.Join(dir, "missing.json"))
	if code := utils.AsCLIError(err).Code; code != utils.ErrCodeConfigError {
		t.Errorf("code = %s, want CONFIG_ERROR", code)
	}
}

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrNoToken is returned when no token is stored for a session
var ErrNoToken = errors.New("no stored token")

// TokenStore persists serialized tokens keyed by session
type TokenStore interface {
	Save(session string, data []byte) error
	Load(session string) ([]byte, error)
	Delete(session string) error
	Name() string
}

// KeyringStore keeps tokens in the system keyring
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Save(session string, data []byte) error {
	return keyring.Set(s.service, session, string(data))
}

func (s *KeyringStore) Load(session string) ([]byte, error) {
	data, err := keyring.Get(s.service, session)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s", ErrNoToken, session)
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (s *KeyringStore) Delete(session string) error {
	err := keyring.Delete(s.service, session)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (s *KeyringStore) Name() string {
	return "system-keyring"
}

// keyringAvailable probes the keyring with a throwaway entry
func keyringAvailable(service string) bool {
	probe := service + "-probe"
	if err := keyring.Set(service, probe, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(service, probe)
	return true
}

// tokenFile maps a session to a file name inside dir. Sessions are email
// addresses or host URLs so path separators are replaced.
func tokenFile(dir, session, ext string) string {
	name := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(session)
	return filepath.Join(dir, name+"_token"+ext)
}

// EncryptedFileStore stores AES-GCM encrypted tokens next to a generated key
type EncryptedFileStore struct {
	dir string
	key []byte
}

func NewEncryptedFileStore(dir string) (*EncryptedFileStore, error) {
	key, err := loadOrCreateKey(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	return &EncryptedFileStore{dir: dir, key: key}, nil
}

func (s *EncryptedFileStore) Save(session string, data []byte) error {
	sealed, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(s.dir, session, ".enc"), sealed, 0600)
}

func (s *EncryptedFileStore) Load(session string) ([]byte, error) {
	sealed, err := os.ReadFile(tokenFile(s.dir, session, ".enc"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w for %s", ErrNoToken, session)
	}
	if err != nil {
		return nil, err
	}
	return s.decrypt(sealed)
}

func (s *EncryptedFileStore) Delete(session string) error {
	err := os.Remove(tokenFile(s.dir, session, ".enc"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *EncryptedFileStore) Name() string {
	return "encrypted-file"
}

func (s *EncryptedFileStore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *EncryptedFileStore) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *EncryptedFileStore) decrypt(sealed []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("invalid ciphertext")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	return plaintext, nil
}

func loadOrCreateKey(dir string) ([]byte, error) {
	keyFile := filepath.Join(dir, ".keyfile")
	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyFile, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// PlainFileStore writes tokens as JSON files (development only)
type PlainFileStore struct {
	dir string
}

func NewPlainFileStore(dir string) *PlainFileStore {
	return &PlainFileStore{dir: dir}
}

func (s *PlainFileStore) Save(session string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(s.dir, session, ".json"), data, 0600)
}

func (s *PlainFileStore) Load(session string) ([]byte, error) {
	data, err := os.ReadFile(tokenFile(s.dir, session, ".json"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w for %s", ErrNoToken, session)
	}
	return data, err
}

func (s *PlainFileStore) Delete(session string) error {
	err := os.Remove(tokenFile(s.dir, session, ".json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *PlainFileStore) Name() string {
	return "plain-file"
}

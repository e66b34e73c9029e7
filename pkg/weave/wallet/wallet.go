// Package wallet keeps a JWK wallet encrypted at rest with an age
// passphrase (scrypt) recipient, and resolves the wallet used to sign a
// deploy.
package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/adrg/xdg"
	"github.com/google/renameio"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/logging"
)

// DefaultWorkFactor is the scrypt work factor used for new wallet files.
const DefaultWorkFactor = 18

var (
	// ErrNoWallet is returned when no saved wallet exists.
	ErrNoWallet = errors.New("no saved wallet")

	// ErrBadPassphrase is returned when the passphrase does not decrypt
	// the saved wallet.
	ErrBadPassphrase = errors.New("incorrect wallet passphrase")

	// ErrEmptyPassphrase is returned when saving with an empty passphrase.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
)

// Passphrase supplies the passphrase for the saved wallet, usually by
// prompting.
type Passphrase func() (string, error)

// Store is the on-disk location of the encrypted wallet.
type Store struct {
	Path string

	// WorkFactor overrides DefaultWorkFactor when non-zero.
	WorkFactor int
}

// DefaultPath returns $XDG_DATA_HOME/weave/wallet.age.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "weave", "wallet.age")
}

// NewStore returns a store at path, or at DefaultPath when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{Path: path}
}

// Exists reports whether a saved wallet is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Save validates jwk and writes it encrypted with passphrase, replacing
// any previously saved wallet.
func (s *Store) Save(jwk []byte, passphrase string) (*arweave.Wallet, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	w, err := arweave.ParseWallet(jwk)
	if err != nil {
		return nil, err
	}
	plain, err := w.MarshalJSON()
	if err != nil {
		return nil, err
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	factor := s.WorkFactor
	if factor == 0 {
		factor = DefaultWorkFactor
	}
	recipient.SetWorkFactor(factor)

	var buf bytes.Buffer
	armored := armor.NewWriter(&buf)
	enc, err := age.Encrypt(armored, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := enc.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypting wallet: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wallet encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wallet armor: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating wallet directory: %w", err)
	}
	if err := renameio.WriteFile(s.Path, buf.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("writing wallet: %w", err)
	}
	logging.Get("wallet").Info("wallet saved", "path", s.Path, "address", w.Address())
	return w, nil
}

// Export returns the decrypted JWK.
func (s *Store) Export(passphrase string) ([]byte, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoWallet
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(armor.NewReader(f), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrBadPassphrase
		}
		return nil, fmt.Errorf("decrypting wallet: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypting wallet: %w", err)
	}
	return data, nil
}

// Load decrypts and parses the saved wallet.
func (s *Store) Load(passphrase string) (*arweave.Wallet, error) {
	data, err := s.Export(passphrase)
	if err != nil {
		return nil, err
	}
	return arweave.ParseWallet(data)
}

// Forget deletes the saved wallet.
func (s *Store) Forget() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoWallet
	}
	if err != nil {
		return err
	}
	logging.Get("wallet").Info("wallet removed", "path", s.Path)
	return nil
}

// Resolve returns the signing wallet: the JWK file at keyPath when set,
// else the saved wallet decrypted with the passphrase from ask.
func Resolve(keyPath string, store *Store, ask Passphrase) (*arweave.Wallet, error) {
	if keyPath != "" {
		return arweave.LoadWallet(keyPath)
	}
	if store == nil || !store.Exists() {
		return nil, ErrNoWallet
	}
	if ask == nil {
		return nil, errors.New("saved wallet requires a passphrase")
	}
	passphrase, err := ask()
	if err != nil {
		return nil, err
	}
	return store.Load(passphrase)
}

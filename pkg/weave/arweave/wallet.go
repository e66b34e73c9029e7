package arweave

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
)

// ErrInvalidKey is returned when a key file is not a usable RSA JWK.
var ErrInvalidKey = errors.New("invalid wallet key")

// Signer produces signatures over arbitrary messages and exposes the
// public modulus that identifies it on the network.
type Signer interface {
	Owner() []byte
	Sign(message []byte) ([]byte, error)
}

// JWK is the JSON Web Key representation of an RSA wallet.
type JWK struct {
	Kty string `json:"kty"`
	E   string `json:"e"`
	N   string `json:"n"`
	D   string `json:"d,omitempty"`
	P   string `json:"p,omitempty"`
	Q   string `json:"q,omitempty"`
	DP  string `json:"dp,omitempty"`
	DQ  string `json:"dq,omitempty"`
	QI  string `json:"qi,omitempty"`
}

// Wallet is an RSA key pair used to sign transactions and data items.
type Wallet struct {
	key *rsa.PrivateKey
	jwk JWK
}

// LoadWallet reads a JWK key file from disk.
func LoadWallet(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading wallet: %w", err)
	}
	return ParseWallet(data)
}

// ParseWallet decodes a JWK document.
func ParseWallet(data []byte) (*Wallet, error) {
	var jwk JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewWalletFromJWK(jwk)
}

// NewWalletFromJWK builds a wallet from a decoded JWK.
func NewWalletFromJWK(jwk JWK) (*Wallet, error) {
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("%w: key type %q", ErrInvalidKey, jwk.Kty)
	}

	ints := make(map[string]*big.Int)
	for name, field := range map[string]string{"n": jwk.N, "e": jwk.E, "d": jwk.D, "p": jwk.P, "q": jwk.Q} {
		if field == "" {
			return nil, fmt.Errorf("%w: missing %q", ErrInvalidKey, name)
		}
		b, err := DecodeB64(field)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidKey, name, err)
		}
		ints[name] = new(big.Int).SetBytes(b)
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: ints["n"], E: int(ints["e"].Int64())},
		D:         ints["d"],
		Primes:    []*big.Int{ints["p"], ints["q"]},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key.Precompute()

	return &Wallet{key: key, jwk: jwk}, nil
}

// GenerateWallet creates a new wallet with a key of the given size.
// Arweave wallets use 4096-bit keys.
func GenerateWallet(random io.Reader, bits int) (*Wallet, error) {
	if random == nil {
		random = rand.Reader
	}
	key, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	key.Precompute()

	jwk := JWK{
		Kty: "RSA",
		E:   EncodeB64(big.NewInt(int64(key.E)).Bytes()),
		N:   EncodeB64(key.N.Bytes()),
		D:   EncodeB64(key.D.Bytes()),
		P:   EncodeB64(key.Primes[0].Bytes()),
		Q:   EncodeB64(key.Primes[1].Bytes()),
		DP:  EncodeB64(key.Precomputed.Dp.Bytes()),
		DQ:  EncodeB64(key.Precomputed.Dq.Bytes()),
		QI:  EncodeB64(key.Precomputed.Qinv.Bytes()),
	}
	return &Wallet{key: key, jwk: jwk}, nil
}

// JWK returns the wallet's key document.
func (w *Wallet) JWK() JWK {
	return w.jwk
}

// MarshalJSON encodes the wallet as its JWK.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.jwk)
}

// Owner returns the raw public modulus.
func (w *Wallet) Owner() []byte {
	return w.key.N.Bytes()
}

// OwnerB64 returns the public modulus in wire encoding.
func (w *Wallet) OwnerB64() string {
	return EncodeB64(w.Owner())
}

// Address returns the wallet address: the hash of the public modulus.
func (w *Wallet) Address() string {
	return OwnerToAddress(w.Owner())
}

// Sign signs message with RSA-PSS over SHA-256.
func (w *Wallet) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, w.key, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: 32})
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return sig, nil
}

// OwnerToAddress derives an address from a raw public modulus.
func OwnerToAddress(owner []byte) string {
	sum := sha256.Sum256(owner)
	return EncodeB64(sum[:])
}

// VerifySignature checks an RSA-PSS signature made by owner over message.
func VerifySignature(owner, message, signature []byte) bool {
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(owner), E: 65537}
	digest := sha256.Sum256(message)
	err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
	return err == nil
}

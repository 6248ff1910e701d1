package run

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"framerand/internal/fileutil"
)

// Signer signs deterministic run serializations with an Ed25519 key.
type Signer struct {
	key ed25519.PrivateKey
}

// LoadSigner reads a PKCS#8 PEM-encoded Ed25519 private key.
func LoadSigner(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("private key file is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want Ed25519", parsed)
	}
	return &Signer{key: key}, nil
}

// GenerateKey writes a fresh PKCS#8 PEM-encoded Ed25519 private key to path.
func GenerateKey(path string) error {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return fileutil.WriteAtomic(path, pem.EncodeToMemory(block), 0o600)
}

// Serialize produces the canonical byte form of a run state. Field order is
// fixed by the struct definitions, so equal states always serialize to
// equal bytes.
func Serialize(state State) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("serialize run state: %w", err)
	}
	return string(raw), nil
}

// Sign serializes the state and signs the bytes, returning the serialized
// form and the base64 signature.
func (s *Signer) Sign(state State) (string, string, error) {
	signedString, err := Serialize(state)
	if err != nil {
		return "", "", err
	}
	signature := ed25519.Sign(s.key, []byte(signedString))
	return signedString, base64.StdEncoding.EncodeToString(signature), nil
}

// PublicKey returns the base64 raw public key matching the signing key.
func (s *Signer) PublicKey() string {
	pub := s.key.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}

// Verify checks a base64 signature over signedString against a base64 raw
// Ed25519 public key.
func Verify(publicKey, signedString, signature string) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(signedString), sig), nil
}

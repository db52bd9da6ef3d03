// Package crypto signs and verifies the Ember configuration cache.
//
// The cache lives in a world-readable temp directory, so every payload is
// prefixed with an RSA-PSS signature. The private key never touches the
// project directory: it is handed to the OS secret store as a PEM string,
// while the public half is persisted as a regular file shared by all of the
// user's projects.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SignatureSize is the byte length of every signature produced by Sign.
// It follows from the 4096-bit modulus and is consumed by the cache layer
// to slice stored files into [signature][payload].
const SignatureSize = 512

const (
	keyBits        = 4096
	publicKeyType  = "PUBLIC KEY"
	privateKeyType = "PRIVATE KEY"
)

// PSSSaltLengthAuto picks the largest possible salt when signing and
// auto-detects it when verifying.
var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// GenerateKeyPair creates a fresh RSA-4096 key pair. The PEM-encoded public
// key is written to publicKeyPath as a side effect so later invocations can
// verify without the secret store.
func GenerateKeyPair(publicKeyPath string) ([]byte, *rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	publicKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{Type: publicKeyType, Bytes: publicKeyDER})

	if err := os.MkdirAll(filepath.Dir(publicKeyPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(publicKeyPath, publicKeyPEM, 0o644); err != nil {
		return nil, nil, fmt.Errorf("failed to persist public key: %w", err)
	}

	return publicKeyPEM, privateKey, nil
}

// Sign produces the fixed-size PSS signature over the SHA-256 digest of
// payload.
func Sign(payload []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(payload)
	signature, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return signature, nil
}

// Verify reports whether signature is a valid signature of payload under the
// PEM-encoded public key. Structural failures (bad PEM, wrong key type,
// truncated signature) report false rather than an error: an unreadable key
// and a tampered payload deserve the same treatment from the cache.
func Verify(payload, signature, publicKeyPEM []byte) bool {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil || block.Type != publicKeyType {
		return false
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPSS(publicKey, crypto.SHA256, digest[:], signature, pssOptions) == nil
}

// EncodePrivateKey serializes a private key to an unencrypted PKCS#8 PEM
// string suitable for the OS secret store.
func EncodePrivateKey(privateKey *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: privateKeyType, Bytes: der})), nil
}

// DecodePrivateKey parses a private key previously produced by
// EncodePrivateKey.
func DecodePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil || block.Type != privateKeyType {
		return nil, errors.New("no private key block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	privateKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("stored key is not an RSA private key")
	}
	return privateKey, nil
}

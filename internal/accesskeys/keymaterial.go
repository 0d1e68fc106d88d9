package accesskeys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// GenerateSigningKey creates a new P-256 private key for Minter, returned
// alongside its base64-DER encoding so it can be persisted (e.g. into a
// config file) for reuse across restarts.
func GenerateSigningKey() (*ecdsa.PrivateKey, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("accesskeys: generate signing key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, "", fmt.Errorf("accesskeys: marshal signing key: %w", err)
	}
	return key, base64.StdEncoding.EncodeToString(der), nil
}

// ParseSigningKey parses a P-256 private key from PEM or base64-encoded DER,
// as produced by GenerateSigningKey or `openssl ecparam -genkey`.
func ParseSigningKey(data string) (*ecdsa.PrivateKey, error) {
	if data == "" {
		return nil, fmt.Errorf("accesskeys: signing key is required")
	}
	if block, _ := pem.Decode([]byte(data)); block != nil {
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("accesskeys: parse pem signing key: %w", err)
		}
		return key, nil
	}

	der, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("accesskeys: decode base64 signing key: %w", err)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("accesskeys: parse der signing key: %w", err)
	}
	return key, nil
}

package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when key material cannot be parsed.
var ErrInvalidKey = errors.New("invalid key material")

// KeyMaterial holds the process-wide signing configuration for platform tokens.
// It is loaded once at startup and never mutated afterwards.
type KeyMaterial struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// SymmetricKey builds HS256 key material from a hex-encoded shared secret,
// the format the platform distributes to communication plugins.
func SymmetricKey(hexSecret string) (*KeyMaterial, error) {
	secret, err := hex.DecodeString(strings.TrimSpace(hexSecret))
	if err != nil || len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	return &KeyMaterial{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
	}, nil
}

// AsymmetricKey builds RS256 or ES256 key material from PEM-encoded keys.
// Either argument may be inline PEM or a path to a PEM file. privateKey may be
// empty for verify-only material.
func AsymmetricKey(privateKey, publicKey string) (*KeyMaterial, error) {
	pub, err := parsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	var method jwt.SigningMethod
	switch pub.(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	km := &KeyMaterial{method: method, verifyKey: pub}
	if strings.TrimSpace(privateKey) != "" {
		priv, err := parsePrivateKey(privateKey)
		if err != nil {
			return nil, err
		}
		km.signKey = priv
	}
	return km, nil
}

// CanSign reports whether this key material includes a signing key.
func (k *KeyMaterial) CanSign() bool {
	return k != nil && k.signKey != nil
}

// SigningMethod returns the JWT signing method this material uses.
func (k *KeyMaterial) SigningMethod() jwt.SigningMethod {
	return k.method
}

// SignerKey returns the private signing key for use with the signing method.
func (k *KeyMaterial) SignerKey() any {
	return k.signKey
}

// loadPEM returns s as bytes when it looks like inline PEM, otherwise reads it as a file path.
func loadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

func parsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	default:
		return nil, ErrInvalidKey
	}
}

func parsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

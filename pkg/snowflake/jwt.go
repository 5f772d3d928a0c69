package snowflake

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = time.Minute * 60

type JWTConfig struct {
	AccountIdentifier string
	UserIdentifier    string
	PrivateKeyValue   *rsa.PrivateKey
}

// accountName strips any region or cloud suffix and uppercases the result,
// e.g. "xy12345.us-east-1" becomes "XY12345".
func accountName(account string) string {
	if i := strings.Index(account, "."); i > 0 {
		account = account[:i]
	}
	return strings.ToUpper(account)
}

func (c *JWTConfig) GetIssuer() (string, error) {
	fp, err := PublicKeyFingerprint(c.PrivateKeyValue)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", c.GetSubject(), fp), nil
}

func (c *JWTConfig) GetSubject() string {
	return fmt.Sprintf("%s.%s", accountName(c.AccountIdentifier), strings.ToUpper(c.UserIdentifier))
}

func (c *JWTConfig) GenerateBearerToken() (string, error) {
	if c.PrivateKeyValue == nil {
		return "", fmt.Errorf("no private key configured")
	}

	issuer, err := c.GetIssuer()
	if err != nil {
		return "", err
	}

	issuedAt := time.Now().UTC()
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": c.GetSubject(),
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(tokenLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

	tokenString, err := token.SignedString(c.PrivateKeyValue)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// PublicKeyFingerprint matches the RSA_PUBLIC_KEY_FP value reported by DESC USER.
func PublicKeyFingerprint(key *rsa.PrivateKey) (string, error) {
	pubBytes, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	hash := sha256.Sum256(pubBytes)
	return "SHA256:" + base64.StdEncoding.EncodeToString(hash[:]), nil
}

// ReadPrivateKey loads an unencrypted PKCS#1 or PKCS#8 RSA key from a PEM file.
func ReadPrivateKey(path string) (*rsa.PrivateKey, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}

	return privateKey, nil
}

// Package signing produces and checks the keyed hash that ties a
// certificate's fields to its id.
//
// The scheme is a symmetric HMAC-SHA256 over the pipe-joined tuple
// (name, course, date, cert_id). Anyone holding the key can mint valid
// signatures, so this is tamper evidence for the issuer's own ledger and
// not a digital signature: it offers no non-repudiation.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrEmptyKey is returned by NewSigner when no key is configured.
var ErrEmptyKey = errors.New("signing: empty key")

// Tuple is the canonical set of fields a certificate signature covers.
type Tuple struct {
	Name   string
	Course string
	Date   string
	CertID string
}

// Canonical joins the tuple fields with '|'.
func (t Tuple) Canonical() string {
	return strings.Join([]string{t.Name, t.Course, t.Date, t.CertID}, "|")
}

// Signer signs and verifies tuples with a fixed key.
type Signer struct {
	key []byte
}

func NewSigner(key string) (*Signer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Signer{key: []byte(key)}, nil
}

// Sign returns the hex encoded HMAC-SHA256 of the canonical tuple.
func (s *Signer) Sign(t Tuple) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(t.Canonical()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches t, in constant time.
func (s *Signer) Verify(t Tuple, signature string) bool {
	expected := s.Sign(t)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}

// ContentHash returns the hex SHA-256 of the canonical tuple.
func ContentHash(t Tuple) string {
	sum := sha256.Sum256([]byte(t.Canonical()))
	return hex.EncodeToString(sum[:])
}

// NewCertificateID returns a URL-safe random id carrying 128 bits of
// entropy.
func NewCertificateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

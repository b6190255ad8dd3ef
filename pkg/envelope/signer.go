package envelope

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a MAC construction.
type Algorithm string

const (
	// AlgorithmHMACSHA256 signs with HMAC-SHA256 over the raw key.
	AlgorithmHMACSHA256 Algorithm = "hmac-sha256"

	// AlgorithmBLAKE3 signs with keyed BLAKE3. The 32-byte MAC key is
	// derived from the configured secret.
	AlgorithmBLAKE3 Algorithm = "blake3"
)

// DefaultSalt separates envelope signatures from any other use of the
// same secret.
const DefaultSalt = "reactor.component.state"

const blake3Context = "reactor envelope 2024-01-01 mac key"

var (
	// ErrEmptyKey is returned by NewSigner when no secret is given.
	ErrEmptyKey = errors.New("envelope: empty signing key")

	// ErrUnknownAlgorithm is returned by NewSigner for an unsupported algorithm.
	ErrUnknownAlgorithm = errors.New("envelope: unknown algorithm")

	// ErrBadSignature means the MAC does not verify under the current key.
	ErrBadSignature = errors.New("envelope: bad signature")

	// ErrMalformed means the envelope or its payload could not be parsed.
	ErrMalformed = errors.New("envelope: malformed")

	// ErrWrongID means a verified payload was issued for another component.
	ErrWrongID = errors.New("envelope: issued for another id")
)

// IntegrityError is returned by Decode for any envelope that must be
// rejected. Callers treat it as "reject the mount request".
type IntegrityError struct {
	Err error
}

// Error returns the error message.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("envelope: integrity check failed: %v", e.Err)
}

// Unwrap returns the underlying reason for errors.Is/As.
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Signer encodes and decodes envelopes under one key. It is safe for
// concurrent use.
type Signer struct {
	key       []byte
	algorithm Algorithm
	salt      string
}

// Option configures a Signer.
type Option func(*Signer)

// WithAlgorithm selects the MAC algorithm. Default: AlgorithmHMACSHA256.
func WithAlgorithm(a Algorithm) Option {
	return func(s *Signer) {
		s.algorithm = a
	}
}

// WithSalt overrides DefaultSalt.
func WithSalt(salt string) Option {
	return func(s *Signer) {
		s.salt = salt
	}
}

// NewSigner creates a signer for secret.
func NewSigner(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyKey
	}

	s := &Signer{
		algorithm: AlgorithmHMACSHA256,
		salt:      DefaultSalt,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch s.algorithm {
	case AlgorithmHMACSHA256:
		s.key = append([]byte(nil), secret...)
	case AlgorithmBLAKE3:
		s.key = make([]byte, 32)
		blake3.DeriveKey(blake3Context, secret, s.key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s.algorithm)
	}
	return s, nil
}

// Algorithm returns the configured algorithm.
func (s *Signer) Algorithm() Algorithm {
	return s.algorithm
}

// Encode signs payload. A nil payload encodes as an empty object.
func (s *Signer) Encode(payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("envelope: encode: %w", err)
	}

	mac, err := s.mac(raw)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw) + "." + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Decode verifies envelope and returns its payload. Any failure is an
// *IntegrityError; the payload is never parsed before the signature
// verifies.
func (s *Signer) Decode(envelope string) (map[string]any, error) {
	body, sig, ok := strings.Cut(envelope, ".")
	if !ok || body == "" || sig == "" {
		return nil, &IntegrityError{Err: ErrMalformed}
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, &IntegrityError{Err: fmt.Errorf("%w: payload encoding", ErrMalformed)}
	}
	given, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, &IntegrityError{Err: fmt.Errorf("%w: signature encoding", ErrMalformed)}
	}

	want, err := s.mac(raw)
	if err != nil {
		return nil, &IntegrityError{Err: err}
	}
	if !hmac.Equal(given, want) {
		return nil, &IntegrityError{Err: ErrBadSignature}
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&payload); err != nil {
		return nil, &IntegrityError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// DecodeFor decodes envelope for the component id. A payload carrying a
// different "id" was signed for another component and is rejected, so a
// state cannot be replayed under a new id. Payloads without an id are
// accepted as is.
func (s *Signer) DecodeFor(envelope, id string) (map[string]any, error) {
	payload, err := s.Decode(envelope)
	if err != nil {
		return nil, err
	}
	if v, ok := payload["id"]; ok {
		if got, _ := v.(string); got != id {
			return nil, &IntegrityError{Err: fmt.Errorf("%w: %v", ErrWrongID, v)}
		}
	}
	return payload, nil
}

// mac computes the signature over salt, algorithm and message.
func (s *Signer) mac(message []byte) ([]byte, error) {
	switch s.algorithm {
	case AlgorithmBLAKE3:
		h, err := blake3.NewKeyed(s.key)
		if err != nil {
			return nil, fmt.Errorf("envelope: blake3 key: %w", err)
		}
		s.writeHeader(h)
		h.Write(message)
		return h.Sum(nil), nil
	default:
		h := hmac.New(sha256.New, s.key)
		s.writeHeader(h)
		h.Write(message)
		return h.Sum(nil), nil
	}
}

type writer interface {
	Write(p []byte) (int, error)
}

func (s *Signer) writeHeader(w writer) {
	w.Write([]byte(s.salt))
	w.Write([]byte{0})
	w.Write([]byte(s.algorithm))
	w.Write([]byte{0})
}

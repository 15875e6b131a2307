package notify

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/kmun/registration-service/internal/domain"
)

// ErrUnsealable is returned when a sealed field cannot be opened.
var ErrUnsealable = errors.New("sealed notification field cannot be opened")

// sensitiveFields never leave the process in clear text.
var sensitiveFields = []string{"password"}

const nonceSize = 24

// Sealer encrypts sensitive notification data while it sits in the queue.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("notification payload key is empty")
	}
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("kmun notification payload"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	return s, nil
}

// Seal returns a copy of n with its sensitive Data entries moved into Sealed.
func (s *Sealer) Seal(n domain.Notification) (domain.Notification, error) {
	data := make(map[string]string, len(n.Data))
	sealed := make(map[string]string, len(n.Sealed))
	for k, v := range n.Sealed {
		sealed[k] = v
	}
	for k, v := range n.Data {
		data[k] = v
	}
	for _, field := range sensitiveFields {
		v, ok := data[field]
		if !ok {
			continue
		}
		var nonce [nonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return n, fmt.Errorf("seal %s: %w", field, err)
		}
		box := secretbox.Seal(nonce[:], []byte(v), &nonce, &s.key)
		sealed[field] = base64.StdEncoding.EncodeToString(box)
		delete(data, field)
	}
	n.Data = data
	n.Sealed = nil
	if len(sealed) > 0 {
		n.Sealed = sealed
	}
	return n, nil
}

// Open returns a copy of n with every Sealed entry decrypted back into Data.
func (s *Sealer) Open(n domain.Notification) (domain.Notification, error) {
	if len(n.Sealed) == 0 {
		return n, nil
	}
	data := make(map[string]string, len(n.Data)+len(n.Sealed))
	for k, v := range n.Data {
		data[k] = v
	}
	for field, encoded := range n.Sealed {
		box, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(box) < nonceSize+secretbox.Overhead {
			return n, fmt.Errorf("%w: %s", ErrUnsealable, field)
		}
		var nonce [nonceSize]byte
		copy(nonce[:], box[:nonceSize])
		plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
		if !ok {
			return n, fmt.Errorf("%w: %s", ErrUnsealable, field)
		}
		data[field] = string(plain)
	}
	n.Data = data
	n.Sealed = nil
	return n, nil
}

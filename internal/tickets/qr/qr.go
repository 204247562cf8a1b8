package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidPayload = errors.New("qr payload is not a valid ticket")

// Payload is what a door scanner reads off a ticket.
type Payload struct {
	TicketID string `json:"tid"`
	EventID  string `json:"eid"`
	Email    string `json:"email"`
}

// Generator seals payloads with AES-GCM so scanners can trust them without a
// lookup and attendees cannot forge them.
type Generator struct {
	aead cipher.AEAD
}

func NewGenerator(secret string) (*Generator, error) {
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead}, nil
}

// Seal returns the URL-safe string encoded into the QR image.
func (g *Generator) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (g *Generator) Open(encoded string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < g.aead.NonceSize() {
		return Payload{}, ErrInvalidPayload
	}

	nonce, ciphertext := raw[:g.aead.NonceSize()], raw[g.aead.NonceSize():]
	data, err := g.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil || p.TicketID == "" {
		return Payload{}, ErrInvalidPayload
	}
	return p, nil
}

// PNG renders the sealed payload as a QR code image.
func (g *Generator) PNG(p Payload, size int) ([]byte, error) {
	sealed, err := g.Seal(p)
	if err != nil {
		return nil, fmt.Errorf("seal ticket payload: %w", err)
	}
	return qrcode.Encode(sealed, qrcode.Medium, size)
}

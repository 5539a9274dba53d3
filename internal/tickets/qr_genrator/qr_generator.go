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
	"time"

	"github.com/skip2/go-qrcode"

	"ms-sales/internal/models"
)

// Payload is what a gate scanner reads back from a ticket QR code.
type Payload struct {
	TicketID     int64     `json:"ticket_id"`
	TicketTypeID *int64    `json:"ticket_type_id,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR returns a 256px PNG whose content is the sealed
// payload for the ticket.
func (q *QRGenerator) GenerateEncryptedQR(ticket models.Ticket) ([]byte, error) {
	token, err := q.Seal(Payload{
		TicketID:     ticket.ID,
		TicketTypeID: ticket.TicketTypeID,
		IssuedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, 256)
}

// Seal encrypts the payload with AES-GCM and returns it URL-safe encoded.
func (q *QRGenerator) Seal(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	gcm, err := q.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Tampered or foreign tokens fail authentication.
func (q *QRGenerator) Open(token string) (*Payload, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode qr token: %w", err)
	}
	gcm, err := q.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("qr token too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open qr token: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse qr payload: %w", err)
	}
	return &p, nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

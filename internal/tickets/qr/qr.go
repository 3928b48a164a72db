package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// Payload is what the gate scanner recovers from a QR credential.
type Payload struct {
	TicketID string    `json:"ticket_id"`
	EventID  string    `json:"event_id"`
	IssuedAt time.Time `json:"issued_at"`
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// Credential encrypts the payload into the opaque string printed on the
// ticket. The random IV makes every credential unique even for identical
// payloads.
func (g *Generator) Credential(payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}

// Decode reverses Credential. A credential produced with a different secret
// fails JSON decoding and is rejected.
func (g *Generator) Decode(credential string) (*Payload, error) {
	raw, err := base64.URLEncoding.DecodeString(credential)
	if err != nil {
		return nil, errors.New("malformed credential")
	}
	if len(raw) < aes.BlockSize {
		return nil, errors.New("malformed credential")
	}

	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}

	iv := raw[:aes.BlockSize]
	data := make([]byte, len(raw)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, raw[aes.BlockSize:])

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.New("invalid credential")
	}
	if payload.TicketID == "" {
		return nil, errors.New("invalid credential")
	}
	return &payload, nil
}

// PNG renders the credential as a scannable QR image.
func (g *Generator) PNG(credential string) ([]byte, error) {
	return qrcode.Encode(credential, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

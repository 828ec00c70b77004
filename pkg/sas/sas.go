package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer creates shared access signature tokens from a symmetric key.
type Signer struct {
	signingKey []byte
}

// NewSigner decodes a base64 symmetric key as issued by IoT Hub and DPS.
func NewSigner(base64Key string) (*Signer, error) {
	if base64Key == "" {
		return nil, errors.New("shared access key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decode shared access key: %w", err)
	}
	return &Signer{signingKey: key}, nil
}

// Sign generates an HMAC-SHA256 signature for the payload and returns it base64 encoded.
func (s *Signer) Sign(payload []byte) (string, error) {
	h := hmac.New(sha256.New, s.signingKey)
	if _, err := h.Write(payload); err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Token returns a SharedAccessSignature for resource valid until expiry.
// keyName is appended as skn when set, which DPS requires for registrations.
func (s *Signer) Token(resource string, expiry time.Time, keyName string) (string, error) {
	encodedResource := url.QueryEscape(resource)
	se := strconv.FormatInt(expiry.Unix(), 10)

	sig, err := s.Sign([]byte(encodedResource + "\n" + se))
	if err != nil {
		return "", err
	}

	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s", encodedResource, url.QueryEscape(sig), se)
	if keyName != "" {
		token += "&skn=" + url.QueryEscape(keyName)
	}
	return token, nil
}

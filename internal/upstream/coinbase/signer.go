package coinbase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ob-sync/internal/dtos"
)

// Signer authenticates feed subscriptions with the account's API credentials.
type Signer struct {
	key        string
	secret     string
	passphrase string
	now        func() time.Time
}

func NewSigner(key, secret, passphrase string) *Signer {
	return &Signer{
		key:        key,
		secret:     secret,
		passphrase: passphrase,
		now:        time.Now,
	}
}

// Sign stamps the request with the key, passphrase, timestamp and signature of
// GET /users/self/verify, which is what the feed verifies subscriptions against.
func (s *Signer) Sign(req *dtos.SubscriptionRequest) error {
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	signature, err := computeSignature(s.secret, timestamp+http.MethodGet+verifyPath)
	if err != nil {
		return err
	}

	req.Key = s.key
	req.Passphrase = s.passphrase
	req.Timestamp = timestamp
	req.Signature = signature

	return nil
}

func computeSignature(secret, message string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		// secrets are sometimes handed out without padding
		key, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(secret, "="))
		if err != nil {
			return "", fmt.Errorf("decoding api secret: %w", err)
		}
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

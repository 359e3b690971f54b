package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"
)

// Signer produces authentication headers for a request.
type Signer interface {
	Headers(method, path, body string) (http.Header, error)
}

const okxTimestampLayout = "2006-01-02T15:04:05.000Z"

// OKXSigner signs requests with HMAC-SHA256 over timestamp+method+path+body.
type OKXSigner struct {
	creds Credentials
	now   func() time.Time
}

func NewOKXSigner(creds Credentials) *OKXSigner {
	return &OKXSigner{creds: creds, now: time.Now}
}

func (s *OKXSigner) Headers(method, path, body string) (http.Header, error) {
	ts := s.now().UTC().Format(okxTimestampLayout)

	h := hmac.New(sha256.New, []byte(s.creds.APISecret))
	h.Write([]byte(ts + method + path + body))
	sign := base64.StdEncoding.EncodeToString(h.Sum(nil))

	headers := make(http.Header)
	headers.Set("OK-ACCESS-KEY", s.creds.APIKey)
	headers.Set("OK-ACCESS-SIGN", sign)
	headers.Set("OK-ACCESS-TIMESTAMP", ts)
	headers.Set("OK-ACCESS-PASSPHRASE", s.creds.Passphrase)

	return headers, nil
}

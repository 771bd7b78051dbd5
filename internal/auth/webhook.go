package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/Thedongraphix/Minisend-sub001/internal/observability/metrics"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "X-Provider-Signature"

// WebhookAuthMiddleware validates provider webhook signatures: a lowercase
// hex HMAC-SHA256 over the exact raw request body. Only signature problems
// produce 401; payload problems are the handler's concern.
type WebhookAuthMiddleware struct {
	Secret []byte
}

// NewWebhookAuthMiddleware constructs webhook auth middleware.
func NewWebhookAuthMiddleware(secret []byte) *WebhookAuthMiddleware {
	return &WebhookAuthMiddleware{Secret: secret}
}

// Wrap enforces webhook signature validation.
func (m *WebhookAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Secret) == 0 {
			metrics.IncWebhookRejected("unconfigured")
			http.Error(w, "webhook auth not configured", http.StatusUnauthorized)
			return
		}
		signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
		if signature == "" {
			metrics.IncWebhookRejected("missing_signature")
			http.Error(w, "missing webhook signature", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body error", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()

		expected := ComputeWebhookSignature(m.Secret, body)
		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			metrics.IncWebhookRejected("invalid_signature")
			http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// ComputeWebhookSignature returns the lowercase hex HMAC-SHA256 of body.
func ComputeWebhookSignature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

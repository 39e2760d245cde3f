// ABOUTME: Twilio request signature computation and validation
// ABOUTME: HMAC-SHA1 over the public URL plus sorted POST parameters

package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries Twilio's request signature.
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing twilio signature")
	ErrInvalidSignature = errors.New("invalid twilio signature")
)

// Signature computes the signature Twilio sends for a request to fullURL
// with the given POST parameters.
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks signature against the expected value.
func ValidateSignature(authToken, fullURL string, params url.Values, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expected := Signature(authToken, fullURL, params)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignatureMiddleware rejects requests whose signature does not match.
// publicURL is the externally visible base URL; when empty the request's
// own host is used.
func SignatureMiddleware(authToken, publicURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			fullURL := requestURL(r, publicURL)
			if err := ValidateSignature(authToken, fullURL, r.PostForm, r.Header.Get(SignatureHeader)); err != nil {
				logger.Warn("rejected twilio webhook", "path", r.URL.Path, "error", err)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

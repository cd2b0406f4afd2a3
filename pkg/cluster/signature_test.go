package cluster

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "shared-secret"

func signedRequest(t *testing.T, body []byte, timestamp string, serverID, secret string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/projects", strings.NewReader(string(body)))
	req.Header.Set(headerSignature, Sign(secret, body, timestamp))
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerServerID, serverID)
	return req
}

func lookupFor(serverID, secret string) SecretLookup {
	return func(id string) (string, bool) {
		if id == serverID {
			return secret, true
		}
		return "", false
	}
}

func TestVerifySignatureAcceptsValidRequest(t *testing.T) {
	body := []byte(`{"name":"demo"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := signedRequest(t, body, ts, "server-1", testSecret)

	var receivedBody []byte
	handler := VerifySignature(lookupFor("server-1", testSecret), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, len(body))
		n, _ := r.Body.Read(buf)
		receivedBody = buf[:n]
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, receivedBody)
}

func TestVerifySignatureRejectsMissingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/projects", strings.NewReader(""))
	handler := VerifySignature(lookupFor("server-1", testSecret), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	req := signedRequest(t, body, ts, "server-1", testSecret)

	handler := VerifySignature(lookupFor("server-1", testSecret), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignatureAcceptsFutureTimestamp(t *testing.T) {
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	req := signedRequest(t, body, ts, "server-1", testSecret)

	handler := VerifySignature(lookupFor("server-1", testSecret), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "a timestamp ahead of the server's clock must be accepted")
}

func TestVerifySignatureRejectsUnknownServer(t *testing.T) {
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := signedRequest(t, body, ts, "server-unknown", testSecret)

	handler := VerifySignature(lookupFor("server-1", testSecret), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"name":"demo"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := signedRequest(t, body, ts, "server-1", testSecret)
	req.Body = http.NoBody
	req.ContentLength = 0

	handler := VerifySignature(lookupFor("server-1", testSecret), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "signature computed over the original body must not validate an empty body")
}

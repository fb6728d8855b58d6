package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"
)

const testWebhookURL = "https://astro.example.com/bot"

// mockValidator はSignatureValidatorのテスト用実装。
type mockValidator struct {
	validateFn func(url string, params map[string]string, signature string) bool
}

func (m *mockValidator) Validate(url string, params map[string]string, signature string) bool {
	return m.validateFn(url, params, signature)
}

// computeSignature はTwilioの署名アルゴリズム（URL + ソート済みパラメータのHMAC-SHA1）を再現する。
func computeSignature(token, rawURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteString(rawURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write(b.Bytes())
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureMiddleware_PassesParamsAndURLToValidator(t *testing.T) {
	var gotURL, gotSig string
	var gotParams map[string]string
	v := &mockValidator{validateFn: func(u string, p map[string]string, s string) bool {
		gotURL, gotParams, gotSig = u, p, s
		return true
	}}

	called := false
	handler := NewSignatureMiddleware(v, testWebhookURL, newBufferLogger(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
	)

	req := newFormRequest("/bot", url.Values{"From": {"whatsapp:+911234567890"}, "Body": {"hi"}})
	req.Header.Set("X-Twilio-Signature", "sig")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("next handler was not called, status = %d", rec.Code)
	}
	if gotURL != testWebhookURL {
		t.Errorf("url = %q, want %q", gotURL, testWebhookURL)
	}
	if gotSig != "sig" {
		t.Errorf("signature = %q, want sig", gotSig)
	}
	if gotParams["From"] != "whatsapp:+911234567890" || gotParams["Body"] != "hi" {
		t.Errorf("params = %v", gotParams)
	}
}

func TestSignatureMiddleware_RejectsInvalidSignature(t *testing.T) {
	v := &mockValidator{validateFn: func(string, map[string]string, string) bool { return false }}
	called := false
	handler := NewSignatureMiddleware(v, testWebhookURL, newBufferLogger(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
	)

	req := newFormRequest("/bot", url.Values{"Body": {"hi"}})
	req.Header.Set("X-Twilio-Signature", "forged")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("next handler should not be called")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestSignatureMiddleware_MissingHeader_Returns403(t *testing.T) {
	v := &mockValidator{validateFn: func(string, map[string]string, string) bool {
		t.Error("validator should not be called without a signature")
		return true
	}}
	handler := NewSignatureMiddleware(v, testWebhookURL, newBufferLogger(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newFormRequest("/bot", url.Values{"Body": {"hi"}}))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestSignatureMiddleware_TwilioValidator(t *testing.T) {
	const token = "test-auth-token"
	params := map[string]string{"From": "whatsapp:+911234567890", "Body": "hello"}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	handler := NewSignatureMiddleware(NewTwilioValidator(token), testWebhookURL, newBufferLogger(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("success")) }),
	)

	t.Run("valid", func(t *testing.T) {
		req := newFormRequest("/bot", form)
		req.Header.Set("X-Twilio-Signature", computeSignature(token, testWebhookURL, params))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := newFormRequest("/bot", form)
		req.Header.Set("X-Twilio-Signature", computeSignature("other-token", testWebhookURL, params))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}

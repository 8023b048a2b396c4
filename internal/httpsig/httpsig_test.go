package httpsig

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSignAndVerifyPostRoundTrip(t *testing.T) {
	key := testKey(t)
	body := []byte(`{"type":"Create"}`)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/inbox", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Host", req.URL.Host)
	if err := SignPost(req, body, key, "https://example.com/actors/app#main-key"); err != nil {
		t.Fatalf("SignPost: %v", err)
	}
	if req.Header.Get("Signature") == "" {
		t.Fatal("expected a Signature header after signing")
	}

	keyID, err := Verify(req, body, func(id string) (*rsa.PublicKey, error) {
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if keyID != "https://example.com/actors/app#main-key" {
		t.Fatalf("keyID = %q", keyID)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	key := testKey(t)
	body := []byte(`{"type":"Create"}`)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/inbox", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Host", req.URL.Host)
	if err := SignPost(req, body, key, "https://example.com/actors/app#main-key"); err != nil {
		t.Fatalf("SignPost: %v", err)
	}

	tampered := []byte(`{"type":"Delete"}`)
	if _, err := Verify(req, tampered, func(id string) (*rsa.PublicKey, error) {
		return &key.PublicKey, nil
	}); err == nil {
		t.Fatal("expected digest mismatch to reject the tampered body")
	}
}

func TestDigestFormat(t *testing.T) {
	d := Digest([]byte("hello"))
	if len(d) < len("sha-256=") || d[:len("sha-256=")] != "sha-256=" {
		t.Fatalf("Digest() = %q, want sha-256=... prefix", d)
	}
}

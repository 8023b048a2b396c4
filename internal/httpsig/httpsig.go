// upub-fed/core is an ActivityPub federation engine.
// Copyright (C) 2026 The upub-fed/core authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package httpsig implements §4.b: building and verifying the draft-cavage
// "Signing HTTP Messages" scheme used across the fediverse, on top of
// github.com/go-fed/httpsig.
package httpsig

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	gofedhttpsig "github.com/go-fed/httpsig"

	"github.com/upub-fed/core/internal/apperr"
)

// GetHeaders are the headers signed on an outbound GET (a dereference).
var GetHeaders = []string{gofedhttpsig.RequestTarget, "host", "date"}

// PostHeaders are the headers signed on an outbound POST (a delivery).
var PostHeaders = []string{gofedhttpsig.RequestTarget, "host", "date", "digest"}

var signAlgorithms = []gofedhttpsig.Algorithm{gofedhttpsig.RSA_SHA256}

// maxDateSkew bounds how stale an incoming request's Date header may be
// before it is treated as a replay.
const maxDateSkew = 30 * time.Second

// Digest computes the request body digest header value, "sha-256=BASE64".
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("sha-256=%s", base64.StdEncoding.EncodeToString(sum[:]))
}

// SignGet signs req (which must have no body) with privKey under keyID,
// covering GetHeaders.
func SignGet(req *http.Request, privKey crypto.PrivateKey, keyID string) error {
	signer, _, err := gofedhttpsig.NewSigner(signAlgorithms, gofedhttpsig.DigestSha256, GetHeaders, gofedhttpsig.Signature, 0)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	return signer.SignRequest(privKey, keyID, req, nil)
}

// SignPost signs req and body with privKey under keyID, covering
// PostHeaders, including the Digest header.
func SignPost(req *http.Request, body []byte, privKey crypto.PrivateKey, keyID string) error {
	signer, _, err := gofedhttpsig.NewSigner(signAlgorithms, gofedhttpsig.DigestSha256, PostHeaders, gofedhttpsig.Signature, 0)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	req.Header.Set("Digest", Digest(body))
	return signer.SignRequest(privKey, keyID, req, body)
}

// KeyResolver fetches the RSA public key published at keyID (an actor's
// publicKey.id, typically "{actorIRI}#main-key"); the caller of Verify
// supplies it, so this package stays free of store/network concerns.
type KeyResolver func(keyID string) (*rsa.PublicKey, error)

// Verify checks req's Signature header (and, if body is non-empty, its
// Digest header) against the key resolver. It returns the verified keyID on
// success.
func Verify(req *http.Request, body []byte, resolve KeyResolver) (string, error) {
	dateStr := req.Header.Get("Date")
	if dateStr == "" {
		return "", apperr.HTTPSignaturef("missing Date header")
	}
	reqTime, err := http.ParseTime(dateStr)
	if err != nil {
		return "", apperr.HTTPSignaturef("invalid Date header %q", dateStr)
	}
	if skew := time.Since(reqTime); skew > maxDateSkew || skew < -maxDateSkew {
		return "", apperr.HTTPSignaturef("Date header too skewed (%v)", skew.Round(time.Second))
	}

	if len(body) > 0 {
		if err := verifyDigest(body, req.Header.Get("Digest")); err != nil {
			return "", apperr.HTTPSignaturef("%s", err)
		}
	}

	verifier, err := gofedhttpsig.NewVerifier(req)
	if err != nil {
		return "", apperr.HTTPSignaturef("no signature present: %s", err)
	}
	keyID := verifier.KeyId()

	pub, err := resolve(keyID)
	if err != nil {
		return "", apperr.Incompletef("resolving signer key %s: %s", keyID, err)
	}

	if err := verifier.Verify(pub, gofedhttpsig.RSA_SHA256); err != nil {
		return "", apperr.HTTPSignaturef("verification failed: %s", err)
	}
	return keyID, nil
}

func verifyDigest(body []byte, header string) error {
	if header == "" {
		return nil
	}
	const prefix = "sha-256="
	h := header
	if len(h) >= len(prefix) && equalFold(h[:len(prefix)], prefix) {
		h = h[len(prefix):]
	} else if len(h) >= len("SHA-256=") && equalFold(h[:len("SHA-256=")], "SHA-256=") {
		h = h[len("SHA-256="):]
	} else {
		return nil // unknown digest algorithm: skip rather than reject
	}
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	if h != want {
		return fmt.Errorf("digest mismatch")
	}
	return nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

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

package bootstrap

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/upub-fed/core/internal/config"
	"github.com/upub-fed/core/internal/model"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   string
	}{
		{"bare domain", "example.com", "https://example.com"},
		{"already https", "https://example.com", "https://example.com"},
		{"dev http", "http://localhost:8080", "http://localhost:8080"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{Instance: config.InstanceConfig{Domain: tt.domain}}
			if got := baseURL(cfg); got != tt.want {
				t.Errorf("baseURL(%q) = %q, want %q", tt.domain, got, tt.want)
			}
		})
	}
}

func TestMarshalAndParsePrivateKeyRoundtrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pem, err := marshalPrivateKey(key)
	if err != nil {
		t.Fatalf("marshalPrivateKey: %v", err)
	}

	actor := &model.Actor{APID: "https://local.test/actor", PrivateKeyPEM: &pem}
	got, err := parsePrivateKey(actor)
	if err != nil {
		t.Fatalf("parsePrivateKey: %v", err)
	}
	if got.N.Cmp(key.N) != 0 {
		t.Error("parsePrivateKey did not recover the original modulus")
	}
}

func TestParsePrivateKeyRejectsMissingKey(t *testing.T) {
	actor := &model.Actor{APID: "https://local.test/actor"}
	if _, err := parsePrivateKey(actor); err == nil {
		t.Fatal("parsePrivateKey should reject an actor with no private key")
	}
}

func TestMarshalPublicKeyProducesPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	got, err := marshalPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshalPublicKey: %v", err)
	}
	if got == "" {
		t.Fatal("marshalPublicKey returned empty string")
	}
}

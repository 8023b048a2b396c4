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

package ctxcore

import "testing"

func TestNewNormalizesDomain(t *testing.T) {
	tests := []struct {
		name         string
		domain       string
		wantDomain   string
		wantProtocol string
	}{
		{"bare host", "example.com", "example.com", "https://"},
		{"https prefix", "https://example.com", "example.com", "https://"},
		{"http prefix", "http://localhost:8080", "localhost:8080", "http://"},
		{"trailing slash", "https://example.com/", "example.com", "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := New(nil, nil, tt.domain, nil, nil, nil)
			if ctx.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", ctx.Domain, tt.wantDomain)
			}
			if ctx.Protocol != tt.wantProtocol {
				t.Errorf("Protocol = %q, want %q", ctx.Protocol, tt.wantProtocol)
			}
		})
	}
}

func TestBase(t *testing.T) {
	ctx := New(nil, nil, "example.com", nil, nil, nil)
	if got, want := ctx.Base(), "https://example.com"; got != want {
		t.Errorf("Base() = %q, want %q", got, want)
	}
}

func TestIsLocal(t *testing.T) {
	ctx := New(nil, nil, "example.com", nil, nil, nil)
	tests := []struct {
		id   string
		want bool
	}{
		{"https://example.com/users/alice", true},
		{"https://elsewhere.com/users/bob", false},
	}
	for _, tt := range tests {
		if got := ctx.IsLocal(tt.id); got != tt.want {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestIRIBuilders(t *testing.T) {
	ctx := New(nil, nil, "example.com", nil, nil, nil)
	if got, want := ctx.UserIRI("alice"), "https://example.com/users/alice"; got != want {
		t.Errorf("UserIRI() = %q, want %q", got, want)
	}
	if got, want := ctx.ObjectIRI("abc"), "https://example.com/objects/abc"; got != want {
		t.Errorf("ObjectIRI() = %q, want %q", got, want)
	}
	if got, want := ctx.ActivityIRI("abc"), "https://example.com/activities/abc"; got != want {
		t.Errorf("ActivityIRI() = %q, want %q", got, want)
	}
}

func TestWakeDispatcherDoesNotBlock(t *testing.T) {
	ctx := New(nil, nil, "example.com", nil, nil, nil)
	// Buffered channel of size 1: first call fills it, second must not block.
	ctx.WakeDispatcher()
	ctx.WakeDispatcher()

	select {
	case <-ctx.Wake:
	default:
		t.Fatal("expected a pending wake signal")
	}
}

func TestServer(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"https://example.com/users/alice", "example.com"},
		{"http://localhost:8080/inbox", "localhost:8080"},
		{"https://example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := Server(tt.id); got != tt.want {
			t.Errorf("Server(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

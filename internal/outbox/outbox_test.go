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

package outbox

import (
	"testing"

	"github.com/upub-fed/core/internal/apjson"
)

func TestContainsString(t *testing.T) {
	tests := []struct {
		name string
		list []string
		s    string
		want bool
	}{
		{"empty list", nil, "https://remote.test/users/bob", false},
		{"present", []string{"https://remote.test/users/bob"}, "https://remote.test/users/bob", true},
		{"absent", []string{"https://remote.test/users/alice"}, "https://remote.test/users/bob", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsString(tt.list, tt.s); got != tt.want {
				t.Errorf("containsString(%v, %q) = %v, want %v", tt.list, tt.s, got, tt.want)
			}
		})
	}
}

func TestUnionTargets(t *testing.T) {
	doc, err := apjson.Parse([]byte(`{
		"id": "https://local.test/activities/1",
		"type": "Create",
		"actor": "https://local.test/users/alice",
		"to": ["https://remote.test/users/bob"],
		"cc": ["https://www.w3.org/ns/activitystreams#Public"],
		"audience": "https://remote.test/groups/1"
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := unionTargets(doc)
	want := map[string]bool{
		"https://remote.test/users/bob":               true,
		"https://www.w3.org/ns/activitystreams#Public": true,
		"https://remote.test/groups/1":                 true,
	}
	if len(got) != len(want) {
		t.Fatalf("unionTargets = %v, want %d entries", got, len(want))
	}
	for _, target := range got {
		if !want[target] {
			t.Errorf("unexpected target %q", target)
		}
	}
}

func TestMentionPattern(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantUser   string
		wantDomain string
		wantMatch  bool
	}{
		{"simple mention", "hello @alice@remote.test", "alice", "remote.test", true},
		{"no mention", "hello world", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := mentionPattern.FindStringSubmatch(tt.content)
			if !tt.wantMatch {
				if sub != nil {
					t.Errorf("FindStringSubmatch(%q) = %v, want no match", tt.content, sub)
				}
				return
			}
			if sub == nil {
				t.Fatalf("FindStringSubmatch(%q) = nil, want a match", tt.content)
			}
			if sub[1] != tt.wantUser || sub[2] != tt.wantDomain {
				t.Errorf("FindStringSubmatch(%q) = (%q, %q), want (%q, %q)", tt.content, sub[1], sub[2], tt.wantUser, tt.wantDomain)
			}
		})
	}
}

func TestDecodeDocAndReparseRoundtrip(t *testing.T) {
	raw := []byte(`{"type":"Like","object":"https://remote.test/objects/1"}`)
	m, err := decodeDoc(raw)
	if err != nil {
		t.Fatalf("decodeDoc: %v", err)
	}
	m["id"] = "https://local.test/activities/1"
	m["actor"] = "https://local.test/users/alice"

	doc, _, err := reparse(m)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	id, err := doc.ID()
	if err != nil || id != "https://local.test/activities/1" {
		t.Errorf("ID() = %q, %v, want https://local.test/activities/1", id, err)
	}
	if objectIRI, ok := doc.ObjectIRI(); !ok || objectIRI != "https://remote.test/objects/1" {
		t.Errorf("ObjectIRI() = %q, %v, want https://remote.test/objects/1", objectIRI, ok)
	}
}

func TestDecodeDocRejectsMalformedBody(t *testing.T) {
	if _, err := decodeDoc([]byte(`not json`)); err == nil {
		t.Fatal("decodeDoc should reject invalid JSON")
	}
}

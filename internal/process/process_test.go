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

package process

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

func TestAudienceOf(t *testing.T) {
	withAudience, err := apjson.Parse([]byte(`{"id":"https://local.test/a","type":"Create","actor":"https://local.test/alice","audience":"https://remote.test/groups/1"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := audienceOf(withAudience); got == nil || *got != "https://remote.test/groups/1" {
		t.Errorf("audienceOf = %v, want https://remote.test/groups/1", got)
	}

	without, err := apjson.Parse([]byte(`{"id":"https://local.test/a","type":"Create","actor":"https://local.test/alice"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := audienceOf(without); got != nil {
		t.Errorf("audienceOf = %v, want nil", got)
	}
}

func TestProcessRejectsNonActivity(t *testing.T) {
	doc, err := apjson.Parse([]byte(`{"id":"https://remote.test/users/bob","type":"Person","preferredUsername":"bob","inbox":"https://remote.test/users/bob/inbox","publicKey":{"id":"k","owner":"https://remote.test/users/bob","publicKeyPem":"pem"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p := &Processor{}
	if err := p.Process(nil, doc); err == nil {
		t.Fatal("Process on a non-activity document should fail before touching the store")
	}
}

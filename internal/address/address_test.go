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

package address

import (
	"strings"
	"testing"

	"github.com/upub-fed/core/internal/apjson"
)

func TestKeepTarget(t *testing.T) {
	isLocal := func(s string) bool { return strings.HasPrefix(s, "https://local.test/") }

	tests := []struct {
		name   string
		target string
		local  bool
		want   bool
	}{
		{"empty string dropped", "", false, false},
		{"followers url always dropped", "https://remote.test/users/bob/followers", true, false},
		{"remote target kept when entity is local", "https://remote.test/users/bob", true, true},
		{"remote target dropped when entity is remote", "https://remote.test/users/bob", false, false},
		{"public kept regardless of locality", apjson.PublicURI, false, true},
		{"local actor target kept even for a remote entity", "https://local.test/users/alice", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keepTarget(tt.target, tt.local, isLocal); got != tt.want {
				t.Errorf("keepTarget(%q, local=%v) = %v, want %v", tt.target, tt.local, got, tt.want)
			}
		})
	}
}

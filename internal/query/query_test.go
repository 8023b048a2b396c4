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

package query

import (
	"testing"

	"github.com/upub-fed/core/internal/model"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultLimit},
		{"negative uses default", -5, DefaultLimit},
		{"within range", 50, 50},
		{"over max is capped", 500, MaxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampLimit(tt.limit); got != tt.want {
				t.Errorf("clampLimit(%d) = %d, want %d", tt.limit, got, tt.want)
			}
		})
	}
}

func TestThreadReturnsRootWhenNoContext(t *testing.T) {
	s := &Selector{}
	root := &model.Object{Internal: 1, APID: "https://local.test/objects/1"}
	got, err := s.Thread(nil, root, 10)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(got) != 1 || got[0].Object != root {
		t.Fatalf("Thread() = %v, want a single entry wrapping root", got)
	}
}

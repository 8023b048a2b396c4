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

package normalize

import (
	"strings"
	"testing"
)

func TestContentPolicyAllowsPlainMarkup(t *testing.T) {
	p := contentPolicy()
	if got, want := p.Sanitize(`<p>hello</p>`), `<p>hello</p>`; got != want {
		t.Errorf("Sanitize(plain paragraph) = %q, want %q", got, want)
	}
}

func TestContentPolicyStripsScripts(t *testing.T) {
	p := contentPolicy()
	out := p.Sanitize(`<script>alert(1)</script>`)
	if strings.Contains(out, "script") || strings.Contains(out, "alert") {
		t.Errorf("Sanitize left script content behind: %q", out)
	}
}

func TestContentPolicyStripsEventHandlersAndStyle(t *testing.T) {
	p := contentPolicy()
	out := p.Sanitize(`<p onclick="alert(1)" style="color:red">hi</p>`)
	if strings.Contains(out, "onclick") || strings.Contains(out, "style") {
		t.Errorf("Sanitize left an event handler or style attribute behind: %q", out)
	}
	if !strings.Contains(out, "hi") {
		t.Errorf("Sanitize dropped the text content: %q", out)
	}
}

func TestMediaTypeFromExtension(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantOk  bool
	}{
		{"https://x.test/a.png", "image/png", true},
		{"https://x.test/a.webp", "image/webp", true},
		{"https://x.test/a.jpeg", "image/jpeg", true},
		{"https://x.test/a.jpg", "image/jpeg", true},
		{"https://x.test/a.gif", "", false},
		{"https://x.test/a", "", false},
	}
	for _, tt := range tests {
		got, ok := mediaTypeFromExtension(tt.url)
		if got != tt.want || ok != tt.wantOk {
			t.Errorf("mediaTypeFromExtension(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOk)
		}
	}
}

func TestContainsString(t *testing.T) {
	list := []string{"a", "b", "c"}
	if !containsString(list, "b") {
		t.Error("expected list to contain \"b\"")
	}
	if containsString(list, "d") {
		t.Error("expected list not to contain \"d\"")
	}
	if containsString(nil, "a") {
		t.Error("expected nil list not to contain anything")
	}
}

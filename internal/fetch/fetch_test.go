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

package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/upub-fed/core/internal/apjson"
	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
)

func mustDoc(t *testing.T, raw string) *apjson.Doc {
	t.Helper()
	doc, err := apjson.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestPullUnwrap(t *testing.T) {
	actorDoc := mustDoc(t, `{"id":"https://x.test/users/a","type":"Person","preferredUsername":"a","inbox":"https://x.test/users/a/inbox"}`)
	activityDoc := mustDoc(t, `{"id":"https://x.test/activities/1","type":"Follow","actor":"https://x.test/users/a"}`)
	objectDoc := mustDoc(t, `{"id":"https://x.test/objects/1","type":"Note"}`)

	tests := []struct {
		name    string
		pull    Pull
		unwrap  func(Pull) (*apjson.Doc, error)
		wantErr bool
	}{
		{"actor as actor", Pull{Kind: apjson.KindActor, Doc: actorDoc}, Pull.Actor, false},
		{"activity as actor", Pull{Kind: apjson.KindActivity, Doc: activityDoc}, Pull.Actor, true},
		{"activity as activity", Pull{Kind: apjson.KindActivity, Doc: activityDoc}, Pull.Activity, false},
		{"object as activity", Pull{Kind: apjson.KindObject, Doc: objectDoc}, Pull.Activity, true},
		{"object as object", Pull{Kind: apjson.KindObject, Doc: objectDoc}, Pull.Object, false},
		{"actor as object", Pull{Kind: apjson.KindActor, Doc: actorDoc}, Pull.Object, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := tt.unwrap(tt.pull)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				if k, _ := apperr.KindOf(err); k != apperr.Unprocessable {
					t.Errorf("KindOf(err) = %v, want Unprocessable", k)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc != tt.pull.Doc {
				t.Error("unwrap returned a different Doc than the one Pull carried")
			}
		})
	}
}

func newTestFetcher(t *testing.T, client *http.Client) *Fetcher {
	t.Helper()
	return &Fetcher{
		Ctx:    &ctxcore.Context{Domain: "local.test", Protocol: "https://"},
		Client: client,
	}
}

func TestWebfingerMatchingSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/jrd+json")
		w.Write([]byte(`{
			"subject": "acct:alice@remote.test",
			"aliases": ["https://remote.test/users/alice"],
			"links": [
				{"rel": "http://webfinger.net/rel/profile-page", "href": "https://remote.test/@alice"},
				{"rel": "self", "type": "application/activity+json", "href": "https://remote.test/users/alice"}
			]
		}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	id, err := f.webfingerAt(srv.URL, "alice", "remote.test")
	if err != nil {
		t.Fatalf("webfingerAt: %v", err)
	}
	if want := "https://remote.test/users/alice"; id != want {
		t.Errorf("got %q, want %q", id, want)
	}
}

func TestWebfingerSubjectMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subject": "acct:someoneelse@remote.test", "links": []}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	id, err := f.webfingerAt(srv.URL, "alice", "remote.test")
	if err != nil {
		t.Fatalf("expected a nil error on mismatch, got %v", err)
	}
	if id != "" {
		t.Errorf("expected empty id on subject mismatch, got %q", id)
	}
}

func TestWebfingerFallsBackToFirstAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"subject": "acct:alice@remote.test",
			"aliases": ["https://remote.test/users/alice"],
			"links": [{"rel": "http://webfinger.net/rel/profile-page", "href": "https://remote.test/@alice"}]
		}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	id, err := f.webfingerAt(srv.URL, "alice", "remote.test")
	if err != nil {
		t.Fatalf("webfingerAt: %v", err)
	}
	if want := "https://remote.test/users/alice"; id != want {
		t.Errorf("got %q, want %q", id, want)
	}
}

func TestWebfingerNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.Client())
	if _, err := f.webfingerAt(srv.URL, "alice", "remote.test"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

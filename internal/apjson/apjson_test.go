package apjson

import "testing"

func TestClassifyType(t *testing.T) {
	cases := map[string]Kind{
		"Note":              KindObject,
		"Article":           KindObject,
		"Create":            KindActivity,
		"Follow":            KindActivity,
		"Person":            KindActor,
		"Service":           KindActor,
		"Collection":        KindCollection,
		"OrderedCollection": KindCollection,
		"CollectionPage":    KindCollectionPage,
		"Link":              KindLink,
		"Mention":           KindLink,
		"Tombstone":         KindTombstone,
		"":                  KindUnknown,
	}
	for raw, want := range cases {
		if got := ClassifyType(raw); got != want {
			t.Errorf("ClassifyType(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestDocParseRequiresObject(t *testing.T) {
	if _, err := Parse([]byte(`"just a string"`)); err == nil {
		t.Fatal("expected error parsing a bare string")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("expected error parsing invalid json")
	}
}

func TestDocBasicFields(t *testing.T) {
	raw := []byte(`{
		"id": "https://example.com/o/1",
		"type": "Note",
		"content": "hello world",
		"attributedTo": "https://example.com/users/alice",
		"to": ["https://www.w3.org/ns/activitystreams#Public"],
		"cc": [{"id": "https://example.com/users/bob"}]
	}`)
	d, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	id, err := d.ID()
	if err != nil || id != "https://example.com/o/1" {
		t.Fatalf("ID() = %q, %v", id, err)
	}
	if d.TypeString() != "Note" {
		t.Fatalf("TypeString() = %q", d.TypeString())
	}
	if d.Kind() != KindObject {
		t.Fatalf("Kind() = %v", d.Kind())
	}
	content, ok := d.Content()
	if !ok || content != "hello world" {
		t.Fatalf("Content() = %q, %v", content, ok)
	}
	attrib, ok := d.AttributedTo()
	if !ok || attrib != "https://example.com/users/alice" {
		t.Fatalf("AttributedTo() = %q, %v", attrib, ok)
	}
	to := d.To()
	if len(to) != 1 || !IsPublic(to...) {
		t.Fatalf("To() = %v", to)
	}
	cc := d.CC()
	if len(cc) != 1 || cc[0] != "https://example.com/users/bob" {
		t.Fatalf("CC() = %v", cc)
	}
}

func TestActivityObjectShapes(t *testing.T) {
	bareObjectIRI := []byte(`{"id":"https://e.com/a/1","type":"Like","actor":"https://e.com/u/a","object":"https://e.com/o/1"}`)
	d, err := Parse(bareObjectIRI)
	if err != nil {
		t.Fatal(err)
	}
	iri, ok := d.ObjectIRI()
	if !ok || iri != "https://e.com/o/1" {
		t.Fatalf("ObjectIRI() = %q, %v", iri, ok)
	}
	if _, ok := d.ObjectDoc(); ok {
		t.Fatal("ObjectDoc() should be false for a bare IRI object")
	}

	embedded := []byte(`{"id":"https://e.com/a/2","type":"Create","actor":"https://e.com/u/a","object":{"id":"https://e.com/o/2","type":"Note","content":"hi"}}`)
	d2, err := Parse(embedded)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d2.ObjectIRI(); ok {
		t.Fatal("ObjectIRI() should be false for an embedded object")
	}
	obj, ok := d2.ObjectDoc()
	if !ok {
		t.Fatal("ObjectDoc() should be true for an embedded object")
	}
	content, _ := obj.Content()
	if content != "hi" {
		t.Fatalf("embedded object content = %q", content)
	}
}

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder().
		SetID("https://e.com/o/99").
		SetType("Note").
		SetString("content", "built by hand").
		SetStringArray("to", []string{PublicURI})
	doc := b.Doc()
	id, err := doc.ID()
	if err != nil || id != "https://e.com/o/99" {
		t.Fatalf("round-tripped ID = %q, %v", id, err)
	}
	content, ok := doc.Content()
	if !ok || content != "built by hand" {
		t.Fatalf("round-tripped content = %q, %v", content, ok)
	}
	to := doc.To()
	if len(to) != 1 || to[0] != PublicURI {
		t.Fatalf("round-tripped to = %v", to)
	}
}

func TestIsFollowersURL(t *testing.T) {
	followers := "https://e.com/u/alice/followers"
	if !IsFollowersURL(followers, followers) {
		t.Fatal("expected exact match")
	}
	if IsFollowersURL("https://e.com/u/bob/followers", followers) {
		t.Fatal("expected mismatch across different actors")
	}
}

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

package apjson

import (
	"time"

	"github.com/valyala/fastjson"
)

// Builder assembles a JSON document field by field, the mutation-side
// (*Mut) counterpart to Doc's read accessors. The Outbox Builder uses one
// per activity/object it mints.
type Builder struct {
	arena *fastjson.Arena
	obj   *fastjson.Value
}

// NewBuilder starts a fresh object document.
func NewBuilder() *Builder {
	a := &fastjson.Arena{}
	return &Builder{arena: a, obj: a.NewObject()}
}

// NewBuilderFrom starts from an existing parsed document, so overwriting a
// handful of fields doesn't require re-stating every untouched one.
func NewBuilderFrom(d *Doc) *Builder {
	a := &fastjson.Arena{}
	return &Builder{arena: a, obj: d.v}
}

func (b *Builder) set(key string, v *fastjson.Value) {
	b.obj.Set(key, v)
}

// SetID sets the "id" field.
func (b *Builder) SetID(id string) *Builder {
	b.set("id", b.arena.NewString(id))
	return b
}

// SetType sets the "type" field to a single type string.
func (b *Builder) SetType(t string) *Builder {
	b.set("type", b.arena.NewString(t))
	return b
}

// SetString sets an arbitrary string field; a zero value is a no-op so
// optional fields are simply never set rather than set to "".
func (b *Builder) SetString(key, value string) *Builder {
	if value == "" {
		return b
	}
	b.set(key, b.arena.NewString(value))
	return b
}

// SetBool sets an arbitrary boolean field.
func (b *Builder) SetBool(key string, value bool) *Builder {
	if value {
		b.set(key, b.arena.NewTrue())
	} else {
		b.set(key, b.arena.NewFalse())
	}
	return b
}

// SetTime sets a field to an RFC3339 timestamp.
func (b *Builder) SetTime(key string, t time.Time) *Builder {
	if t.IsZero() {
		return b
	}
	b.set(key, b.arena.NewString(t.UTC().Format(time.RFC3339)))
	return b
}

// SetStringArray sets a field to a JSON array of strings; empty input is a
// no-op, matching how an absent to/cc list is simply omitted on the wire.
func (b *Builder) SetStringArray(key string, values []string) *Builder {
	if len(values) == 0 {
		return b
	}
	arr := b.arena.NewArray()
	for i, v := range values {
		arr.SetArrayItem(i, b.arena.NewString(v))
	}
	b.set(key, arr)
	return b
}

// SetRaw attaches an already-built value (e.g. an embedded object document)
// under key.
func (b *Builder) SetRaw(key string, v *fastjson.Value) *Builder {
	if v == nil {
		return b
	}
	b.set(key, v)
	return b
}

// SetDoc embeds another Builder's result under key — used to nest the
// object inside a freshly minted Create activity.
func (b *Builder) SetDoc(key string, inner *Builder) *Builder {
	return b.SetRaw(key, inner.Value())
}

// Value returns the underlying fastjson.Value for embedding or further
// inspection.
func (b *Builder) Value() *fastjson.Value { return b.obj }

// Doc wraps the built value for read-back via the accessor interfaces,
// letting the Outbox Builder verify what it just built.
func (b *Builder) Doc() *Doc { return Wrap(b.obj) }

// Bytes serializes the built document.
func (b *Builder) Bytes() []byte { return b.obj.MarshalTo(nil) }

// String serializes the built document.
func (b *Builder) String() string { return b.obj.String() }

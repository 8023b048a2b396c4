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

package session

import (
	"bytes"
	"testing"
)

func TestNewSaltEnforcesMinimumSize(t *testing.T) {
	salt, err := newSalt(4)
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	if len(salt) != saltSize {
		t.Errorf("len(salt) = %d, want %d (requested size below the minimum should be raised)", len(salt), saltSize)
	}

	salt, err = newSalt(32)
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	if len(salt) != 32 {
		t.Errorf("len(salt) = %d, want 32", len(salt))
	}
}

func TestNewSaltIsRandom(t *testing.T) {
	a, err := newSalt(saltSize)
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	b, err := newSalt(saltSize)
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two independently generated salts should not collide")
	}
}

func TestHashPasswordAndPasswordEquals(t *testing.T) {
	salt, err := newSalt(saltSize)
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	hash, err := hashPassword("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}

	if !passwordEquals("correct horse battery staple", salt, hash) {
		t.Error("passwordEquals should accept the password it was hashed with")
	}
	if passwordEquals("wrong password", salt, hash) {
		t.Error("passwordEquals should reject a different password")
	}

	otherSalt, err := newSalt(saltSize)
	if err != nil {
		t.Fatalf("newSalt: %v", err)
	}
	if passwordEquals("correct horse battery staple", otherSalt, hash) {
		t.Error("passwordEquals should reject a different salt")
	}
}

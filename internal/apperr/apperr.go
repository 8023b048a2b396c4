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

// Package apperr defines the tagged error kinds shared by every processing
// layer (Fetcher, Normalizer, Addresser, Processor, Outbox Builder, Queue).
// Every kind maps to the HTTP status the outer (out-of-scope) handler layer
// would use, mirroring the Kind/HttpStatus split in github.com/go-ap/errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags the reason processing stopped, so callers branch with errors.Is
// instead of string matching.
type Kind int

const (
	// Malformed means a wire document was missing or had an invalid
	// required field.
	Malformed Kind = iota
	// Unauthorized means a signature mismatch or an actor tried to
	// mutate a resource it does not own.
	Unauthorized
	// Incomplete means a referenced entity could not be resolved.
	Incomplete
	// AlreadyProcessed means a duplicate activity or duplicate Like;
	// callers should treat this as an idempotent success.
	AlreadyProcessed
	// Unprocessable means the activity type is not implemented here.
	Unprocessable
	// Tombstone means the fetched resource is a Tombstone.
	Tombstone
	// Database wraps a failure from the store.
	Database
	// Pull wraps a failed outbound fetch, carrying the response status.
	Pull
	// HTTPSignature means signature verification failed.
	HTTPSignature
	// Normalization wraps a failure turning a document into a model row.
	Normalization
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case Unauthorized:
		return "unauthorized"
	case Incomplete:
		return "incomplete"
	case AlreadyProcessed:
		return "already-processed"
	case Unprocessable:
		return "unprocessable"
	case Tombstone:
		return "tombstone"
	case Database:
		return "database"
	case Pull:
		return "pull"
	case HTTPSignature:
		return "http-signature"
	case Normalization:
		return "normalization"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code §7 of the spec assigns this kind when
// it surfaces synchronously (ingestion-time rejection). Job-queue callers
// ignore this and instead branch on Kind directly to decide retry.
func (k Kind) Status() int {
	switch k {
	case Malformed:
		return http.StatusUnprocessableEntity
	case Unauthorized:
		return http.StatusForbidden
	case Incomplete:
		return http.StatusNotFound
	case AlreadyProcessed:
		return http.StatusOK
	case Unprocessable:
		return http.StatusNotImplemented
	case Tombstone:
		return http.StatusGone
	case Database:
		return http.StatusServiceUnavailable
	case HTTPSignature:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is the concrete error type every layer returns. Field is set for
// Malformed errors and names the offending field, matching spec §7's
// Malformed(field).
type Error struct {
	Kind   Kind
	Field  string
	Status_ int // non-zero only for Pull, where the remote status matters
	Body   string
	cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case Malformed:
		if e.Field != "" {
			return fmt.Sprintf("malformed: missing or invalid field %q", e.Field)
		}
		return "malformed document"
	case Pull:
		return fmt.Sprintf("pull failed with status %d: %s", e.Status_, e.Body)
	default:
		if e.cause != nil {
			return fmt.Sprintf("%s: %s", e.Kind, e.cause)
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, target) match when target is an *Error of the same
// Kind, whatever its message or cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newErr(k Kind, cause error) *Error { return &Error{Kind: k, cause: cause} }

// Malformedf builds a Malformed error naming the offending field.
func Malformedf(field string) *Error {
	return &Error{Kind: Malformed, Field: field}
}

// Unauthorizedf builds an Unauthorized error.
func Unauthorizedf(format string, args ...any) *Error {
	return newErr(Unauthorized, fmt.Errorf(format, args...))
}

// Incompletef builds an Incomplete error.
func Incompletef(format string, args ...any) *Error {
	return newErr(Incomplete, fmt.Errorf(format, args...))
}

// AlreadyProcessedf builds an AlreadyProcessed error.
func AlreadyProcessedf(format string, args ...any) *Error {
	return newErr(AlreadyProcessed, fmt.Errorf(format, args...))
}

// Unprocessablef builds an Unprocessable error.
func Unprocessablef(format string, args ...any) *Error {
	return newErr(Unprocessable, fmt.Errorf(format, args...))
}

// Tombstonef builds a Tombstone error.
func Tombstonef(format string, args ...any) *Error {
	return newErr(Tombstone, fmt.Errorf(format, args...))
}

// Databasef wraps a lower-level database error.
func Databasef(cause error) *Error {
	return newErr(Database, cause)
}

// Pullf builds a Pull error carrying the remote HTTP status and body.
func Pullf(status int, body string) *Error {
	return &Error{Kind: Pull, Status_: status, Body: body}
}

// HTTPSignaturef builds an HTTPSignature error.
func HTTPSignaturef(format string, args ...any) *Error {
	return newErr(HTTPSignature, fmt.Errorf(format, args...))
}

// Normalizationf wraps a lower-level normalization error.
func Normalizationf(cause error) *Error {
	return newErr(Normalization, cause)
}

// Is reports whether err (or a wrapped cause) carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind from err, returning (Database, false) if err is
// not one of ours — Database is the conservative default for an opaque
// failure (§7: "Database → 503 on read; reinsert-with-backoff on job").
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Database, false
}

// Retryable reports whether a job-queue caller should reinsert the job with
// backoff rather than drop it permanently. Matches §7: a permanent 4xx Pull
// drops the job, a transient 5xx/timeout or a Database failure reinserts.
func Retryable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return true // unknown error: be conservative, retry
	}
	switch k {
	case Database, Incomplete:
		return true
	case Pull:
		var e *Error
		errors.As(err, &e)
		return e.Status_ >= 500 || e.Status_ == 0
	default:
		return false
	}
}

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

// Package logging provides the two process-wide loggers used across every
// component: Info for state transitions, Error for swallowed failures.
package logging

import (
	"io"
	"os"

	"github.com/google/logger"
)

var (
	// Info logs state transitions: an activity accepted, a job dispatched,
	// a delivery that succeeded.
	Info *logger.Logger = logger.Init("upub", false, false, os.Stdout)
	// Error logs failures that are swallowed (best-effort sub-fetches) or
	// that will be retried by the job queue.
	Error *logger.Logger = logger.Init("upub", false, false, os.Stderr)
)

// ToWriter redirects both loggers to w, preserving the "log to syslog too"
// flag.
func ToWriter(system bool, w io.Writer) {
	reopen(&Info, system, w)
	reopen(&Error, system, w)
}

// ToStdStreams resets both loggers to os.Stdout/os.Stderr, e.g. for tests.
func ToStdStreams() {
	reopen(&Info, false, os.Stdout)
	reopen(&Error, false, os.Stderr)
}

func reopen(l **logger.Logger, system bool, w io.Writer) {
	(*l).Close()
	*l = logger.Init("upub", false, system, w)
}

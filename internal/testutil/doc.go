// SPDX-License-Identifier: MPL-2.0

// Package testutil provides the Clock abstraction used for deterministic
// timeouts and helpers that materialise module trees for tests.
package testutil

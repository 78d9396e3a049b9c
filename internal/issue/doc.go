// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries operation, resource and suggestions for CLI output;
// the Issue catalog holds Markdown guidance rendered with glamour.
package issue

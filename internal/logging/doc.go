// Package logging provides slog construction, shared attribute helpers, and
// the standard field keys used by every pipeline component.
package logging

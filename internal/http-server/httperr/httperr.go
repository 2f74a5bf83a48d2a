// Package httperr maps store errors onto HTTP status codes. This
// control plane exposes CRUD over accounts/rules/messages where a
// caller needs to distinguish "not found" from "bad request" from
// "conflict", so this package gives every handler package one
// consistent mapping instead of each reinventing it.
package httperr

import "github.com/themadorg/mailaggregator/internal/store"

// StatusFor returns the HTTP status code a store error should surface
// as. Defaults to 400, treating any unclassified failure as a bad
// request.
func StatusFor(err error) int {
	switch {
	case store.ErrNotFound(err):
		return 404
	case store.ErrConflict(err):
		return 409
	default:
		return 400
	}
}

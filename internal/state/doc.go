// Package state provides the in-memory session store.
package state

import "github.com/user/relaybot/internal/types"

// Compile-time interface compliance check.
var _ types.SessionStore = (*SessionStore)(nil)

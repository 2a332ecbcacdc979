// Package operation defines the unit of work that requests permission.
package operation

import "errors"

// Context describes one operation asking for permission. Immutable once
// constructed; never persisted.
type Context struct {
	Operation string
	Service   string
	Resources []string
	Tags      map[string]string
}

// Validate rejects malformed contexts. A malformed context is the one hard
// failure the elevation chain does not absorb.
func (c Context) Validate() error {
	if c.Operation == "" {
		return errors.New("operation context: operation is required")
	}
	if c.Service == "" {
		return errors.New("operation context: service is required")
	}
	return nil
}

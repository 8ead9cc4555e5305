//go:build !windows

package tds

// ensureWinsockInitialized is a no-op outside Windows.
func ensureWinsockInitialized() error { return nil }

//go:build windows

package tds

import (
	"sync"

	"golang.org/x/sys/windows"
)

var wsaInitOnce sync.Once
var wsaInitErr error

// ensureWinsockInitialized calls WSAStartup exactly once per process. The
// net package normally does this itself, but PRELOGIN's raw socket option
// probing (TCP_NODELAY before Dial has run) needs it to have happened
// first on Windows.
func ensureWinsockInitialized() error {
	wsaInitOnce.Do(func() {
		var data windows.WSAData
		wsaInitErr = windows.WSAStartup(uint32(0x0202), &data) // MAKEWORD(2,2)
	})
	return wsaInitErr
}

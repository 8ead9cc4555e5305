// Package fedauth provides the Azure AD federated-authentication token
// lifecycle the core consumes: a narrow TokenProvider seam (acquiring the
// OAuth2 bearer token itself is the caller's concern — an external
// identity client, not this package), expiry-aware caching, and the
// Azure-hostname detection that drives the PRELOGIN FEDAUTHREQUIRED
// option and mandatory certificate hostname verification.
package fedauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
)

// Token is an acquired Azure AD access token and its expiry, as returned
// by a TokenProvider.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// expired reports whether the token is expired or within skew of
// expiring, leaving a safety margin for the LOGIN7 round trip that will
// use it.
func (t Token) expired(now time.Time, skew time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(skew))
}

// TokenProvider acquires a fresh Azure AD access token scoped for
// SQL Database/Managed Instance access. The host application supplies
// the concrete implementation (typically backed by an MSAL/azidentity
// credential); this package never talks to the token endpoint itself.
type TokenProvider interface {
	AcquireToken(ctx context.Context) (Token, error)
}

// TokenProviderFunc adapts a plain function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (Token, error)

func (f TokenProviderFunc) AcquireToken(ctx context.Context) (Token, error) { return f(ctx) }

// skew is the safety margin subtracted from a token's expiry before it is
// considered stale, giving the LOGIN7 round trip headroom to complete
// before the server would reject it as expired.
const skew = 2 * time.Minute

// Cache wraps a TokenProvider with expiry-aware reuse: concurrent callers
// share the same acquired token until it nears expiry, at which point the
// next caller triggers exactly one refresh.
type Cache struct {
	provider TokenProvider

	mu      sync.Mutex
	current Token
	have    bool
}

// NewCache wraps provider in an expiry-aware cache.
func NewCache(provider TokenProvider) *Cache {
	return &Cache{provider: provider}
}

// Token returns a token known-fresh as of now, acquiring or refreshing one
// through the wrapped provider if the cached token is missing or within
// skew of expiring, so a pool factory reacquiring a connection always
// presents a token that won't expire mid-handshake.
func (c *Cache) Token(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.have && !c.current.expired(time.Now(), skew) {
		return c.current, nil
	}
	tok, err := c.provider.AcquireToken(ctx)
	if err != nil {
		return Token{}, errx.Wrap(err, errx.KindAuthentication, "fedauth: token acquisition failed")
	}
	c.current = tok
	c.have = true
	return tok, nil
}

// Invalidate forces the next Token call to reacquire, used when the
// server itself rejects a token the cache believed was still fresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.have = false
}

// azureHostSuffixes are the Azure SQL endpoint hostname suffixes that
// require FEDAUTHREQUIRED advertisement and mandatory certificate
// hostname verification, regardless of the caller's trust settings.
var azureHostSuffixes = []string{
	".database.windows.net",
	".datawarehouse.fabric.microsoft.com",
	".sql.azuresynapse.net",
	".pbidedicated.windows.net",
}

// IsAzureHost reports whether host is a recognized Azure SQL endpoint.
func IsAzureHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, suffix := range azureHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

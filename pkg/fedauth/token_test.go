package fedauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheReusesFreshToken(t *testing.T) {
	calls := 0
	provider := TokenProviderFunc(func(ctx context.Context) (Token, error) {
		calls++
		return Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})
	c := NewCache(provider)

	tok1, err := c.Token(context.Background())
	require.NoError(t, err)
	tok2, err := c.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok", tok1.Value)
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, 1, calls)
}

func TestCacheRefreshesNearExpiry(t *testing.T) {
	calls := 0
	provider := TokenProviderFunc(func(ctx context.Context) (Token, error) {
		calls++
		return Token{Value: "tok", ExpiresAt: time.Now().Add(skew / 2)}, nil
	})
	c := NewCache(provider)

	_, err := c.Token(context.Background())
	require.NoError(t, err)
	_, err = c.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "a token within skew of expiry must trigger a refresh on next use")
}

func TestCacheInvalidateForcesReacquire(t *testing.T) {
	calls := 0
	provider := TokenProviderFunc(func(ctx context.Context) (Token, error) {
		calls++
		return Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})
	c := NewCache(provider)

	_, err := c.Token(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCacheWrapsProviderError(t *testing.T) {
	provider := TokenProviderFunc(func(ctx context.Context) (Token, error) {
		return Token{}, assert.AnError
	})
	c := NewCache(provider)
	_, err := c.Token(context.Background())
	assert.Error(t, err)
}

func TestIsAzureHost(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"myserver.database.windows.net", true},
		{"MYSERVER.DATABASE.WINDOWS.NET", true},
		{"myfabric.datawarehouse.fabric.microsoft.com", true},
		{"myserver.sql.azuresynapse.net", true},
		{"myworkspace.pbidedicated.windows.net", true},
		{"localhost", false},
		{"db.internal.corp", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsAzureHost(c.host), c.host)
	}
}

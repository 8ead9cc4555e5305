package tlsutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientConfigTrustsOnPremServerByDefault(t *testing.T) {
	cfg := ClientConfig("db.internal.corp", true)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestClientConfigVerifiesOnPremWhenNotTrusted(t *testing.T) {
	cfg := ClientConfig("db.internal.corp", false)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestClientConfigAlwaysVerifiesAzureHost(t *testing.T) {
	cfg := ClientConfig("myserver.database.windows.net", true)
	assert.False(t, cfg.InsecureSkipVerify, "trust-server-certificate must not bypass Azure hostname verification")
}

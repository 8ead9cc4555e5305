package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	o := Defaults()
	o.Host = "sql.internal"
	o.Database = "orders"
	return o
}

func TestDefaultsMatchOptionTable(t *testing.T) {
	o := Defaults()
	assert.Equal(t, DefaultPort, o.Port)
	assert.Equal(t, DefaultConnectionLimit, o.ConnectionLimit)
	assert.True(t, o.ConnectionCache)
	assert.False(t, o.OrderPushdown)
	assert.False(t, o.CopyTablock)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validOptions().Validate())
}

func TestValidateRejectsMissingHost(t *testing.T) {
	o := validOptions()
	o.Host = ""
	assert.Error(t, o.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	o := validOptions()
	o.Port = 0
	assert.Error(t, o.Validate())
	o.Port = 70000
	assert.Error(t, o.Validate())
}

func TestValidateRejectsMinConnectionsAboveLimit(t *testing.T) {
	o := validOptions()
	o.ConnectionLimit = 5
	o.MinConnections = 6
	assert.Error(t, o.Validate())
}

func TestValidateRejectsNegativeTimeouts(t *testing.T) {
	o := validOptions()
	o.ConnectionTimeout = -1
	assert.Error(t, o.Validate())
}

func TestValidateRejectsOutOfRangeDebugVerbosity(t *testing.T) {
	o := validOptions()
	o.DebugVerbosity = 4
	assert.Error(t, o.Validate())
}

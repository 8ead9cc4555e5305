package mssqlext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mssqlext/mssql-extension/pkg/config"
)

func TestAttachOptionsRejectsInvalidOptionsBeforeDialing(t *testing.T) {
	_, err := AttachOptions(context.Background(), config.Options{})
	assert.Error(t, err)
}

func TestAttachRejectsMalformedDSNBeforeDialing(t *testing.T) {
	_, err := Attach(context.Background(), "not a connection string")
	assert.Error(t, err)
}

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/addon"
	"github.com/c360/flowmesh/errors"
)

const testConfig = `{"ten": {"uri": "test://app/", "log": {"level": 4}}}`

func TestNewRequiresURI(t *testing.T) {
	reg := addon.NewRegistry()

	_, err := New([]byte(`{"ten": {}}`), reg)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))

	_, err = New([]byte(`{"ten": {"uri": ""}}`), reg)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))

	_, err = New([]byte(`not json`), reg)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestNewReadsURI(t *testing.T) {
	a, err := New([]byte(testConfig), addon.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "test://app/", a.URI())
	assert.NotNil(t, a.Dispatcher())
	assert.NotNil(t, a.Metrics())
}

func TestRunReturnsAfterClose(t *testing.T) {
	a, err := New([]byte(testConfig), addon.NewRegistry())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		a.Run()
		close(done)
	}()

	a.Close()
	<-done
	// Close is idempotent.
	a.Close()
}

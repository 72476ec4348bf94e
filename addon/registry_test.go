package addon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
)

type stubExtension struct {
	extension.DefaultExtension
	name string
}

func TestRegisterAndCreate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterExtension("stub", func(name string) extension.Extension {
		return &stubExtension{name: name}
	}))

	ext, err := r.Create("stub", "instance_a")
	require.NoError(t, err)
	stub, ok := ext.(*stubExtension)
	require.True(t, ok)
	assert.Equal(t, "instance_a", stub.name)
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	factory := func(string) extension.Extension { return &stubExtension{} }

	require.NoError(t, r.RegisterExtension("stub", factory))
	err := r.RegisterExtension("stub", factory)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestCreateUnknownAddonFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("ghost", "x")
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Registration{Name: "x"}))
	assert.Error(t, r.Register(&Registration{Factory: func(string) extension.Extension { return nil }}))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterExtension("stub", func(string) extension.Extension { return &stubExtension{} }))

	r.Unregister("stub")
	_, err := r.Lookup("stub")
	assert.Error(t, err)
	assert.Empty(t, r.Names())
}

package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvStore_Read(t *testing.T) {
	store := &EnvStore{Var: "CRED_TEST_KEY"}

	t.Run("missing variable", func(t *testing.T) {
		_, err := store.Read(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set variable", func(t *testing.T) {
		t.Setenv("CRED_TEST_KEY", "sk-secret")

		secret, err := store.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "sk-secret", secret)
	})
}

func TestEnvStore_WriteIsReadOnly(t *testing.T) {
	store := &EnvStore{Var: "CRED_TEST_KEY"}

	err := store.Write(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrReadOnly)
}

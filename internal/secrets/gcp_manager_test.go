package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quantity-sync-service/internal/config"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var _ Source = (*MockSource)(nil)

func TestManagerCachesSecrets(t *testing.T) {
	source := new(MockSource)
	source.On("AccessSecret", mock.Anything, "projects/p1/secrets/murphy-token").
		Return([]byte("shpat_abc\n"), nil).Once()

	m := NewManager(source, "p1", time.Minute)

	value, err := m.GetSecret(context.Background(), "murphy-token")
	require.NoError(t, err)
	assert.Equal(t, "shpat_abc", value)

	value, err = m.GetSecret(context.Background(), "projects/p1/secrets/murphy-token")
	require.NoError(t, err)
	assert.Equal(t, "shpat_abc", value)

	source.AssertExpectations(t)
}

func TestManagerInvalidateCache(t *testing.T) {
	source := new(MockSource)
	source.On("AccessSecret", mock.Anything, "projects/p1/secrets/t").Return([]byte("v"), nil).Twice()

	m := NewManager(source, "p1", time.Hour)
	_, err := m.GetSecret(context.Background(), "t")
	require.NoError(t, err)
	m.InvalidateCache("t")
	_, err = m.GetSecret(context.Background(), "t")
	require.NoError(t, err)

	source.AssertExpectations(t)
}

func TestBuildSecretNameSanitizes(t *testing.T) {
	m := NewManager(new(MockSource), "p1", time.Minute)
	assert.Equal(t, "projects/p1/secrets/store-a-token", m.BuildSecretName("store.a token"))
}

func TestTokenResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("inline token wins", func(t *testing.T) {
		r := NewTokenResolver(nil)
		token, err := r.ResolveToken(ctx, config.StoreConfig{ID: "s", AccessToken: "inline", AccessTokenSecret: "x"})
		require.NoError(t, err)
		assert.Equal(t, "inline", token)
	})

	t.Run("secret without manager", func(t *testing.T) {
		r := NewTokenResolver(nil)
		_, err := r.ResolveToken(ctx, config.StoreConfig{ID: "s", AccessTokenSecret: "x"})
		assert.ErrorIs(t, err, ErrNoSecretManager)
	})

	t.Run("secret from manager", func(t *testing.T) {
		source := new(MockSource)
		source.On("AccessSecret", mock.Anything, "projects/p/secrets/x").Return([]byte("from-gcp"), nil)
		r := NewTokenResolver(NewManager(source, "p", time.Minute))

		token, err := r.ResolveToken(ctx, config.StoreConfig{ID: "s", AccessTokenSecret: "x"})
		require.NoError(t, err)
		assert.Equal(t, "from-gcp", token)
	})

	t.Run("secret access fails", func(t *testing.T) {
		source := new(MockSource)
		source.On("AccessSecret", mock.Anything, mock.Anything).Return(nil, errors.New("permission denied"))
		r := NewTokenResolver(NewManager(source, "p", time.Minute))

		_, err := r.ResolveToken(ctx, config.StoreConfig{ID: "s", AccessTokenSecret: "x"})
		assert.ErrorContains(t, err, "permission denied")
	})
}

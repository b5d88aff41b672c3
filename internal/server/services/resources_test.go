package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/repositories/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = models.ResourceKey{UserID: "u1", Type: common.ResourcePNR, ID: "2455423890"}

func newService() *ResourceService {
	return NewResourceService(DirectUnitOfWork{Repo: resources.NewMemoryRepository()})
}

func requireConflict(t *testing.T, err error, version int) *ConflictError {
	t.Helper()
	require.ErrorIs(t, err, common.ErrVersionConflict)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, version, ce.Current.Version)
	return ce
}

func TestPut_VersionSequence(t *testing.T) {
	ctx := context.Background()
	s := newService()

	v, err := s.Create(ctx, key, json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = s.Put(ctx, key, json.RawMessage(`{"n":2}`), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = s.Put(ctx, key, json.RawMessage(`{"n":3}`), 1)
	ce := requireConflict(t, err, 2)
	assert.JSONEq(t, `{"n":2}`, string(ce.Current.Data))

	v, err = s.Put(ctx, key, json.RawMessage(`{"n":3}`), NoPrecondition)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestCreate_Existing(t *testing.T) {
	ctx := context.Background()
	s := newService()

	_, err := s.Create(ctx, key, json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = s.Create(ctx, key, json.RawMessage(`{}`))
	requireConflict(t, err, 1)
}

func TestPut_ZeroCreatesOnlyWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := newService()
	prefs := models.ResourceKey{UserID: "u1", Type: common.ResourcePreferences, ID: common.ResourcePreferences}

	v, err := s.Put(ctx, prefs, json.RawMessage(`{"values":{}}`), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = s.Put(ctx, prefs, json.RawMessage(`{"values":{}}`), 0)
	requireConflict(t, err, 1)
}

func TestPut_MissingWithPrecondition(t *testing.T) {
	_, err := newService().Put(context.Background(), key, json.RawMessage(`{}`), 4)
	ce := requireConflict(t, err, 0)
	assert.Nil(t, ce.Current.Data)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newService()

	assert.ErrorIs(t, s.Delete(ctx, key, NoPrecondition), common.ErrNotFound)

	_, err := s.Create(ctx, key, json.RawMessage(`{}`))
	require.NoError(t, err)

	requireConflict(t, s.Delete(ctx, key, 7), 1)
	require.NoError(t, s.Delete(ctx, key, 1))

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

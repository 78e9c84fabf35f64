//go:build integration

package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/apperrors"
	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/testhelpers"
)

func newPostgresSource(t *testing.T) *catalog.PostgresSource {
	t.Helper()
	db := testhelpers.GetCatalogDB(t)
	_, err := db.DB.Pool.Exec(context.Background(), `TRUNCATE catalog_versions CASCADE`)
	require.NoError(t, err)
	return catalog.NewPostgresSource(db.DB.Pool)
}

func entryIDs(c *catalog.Catalog, category models.Category) []string {
	var ids []string
	for _, e := range c.Entries(category) {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestPostgresSource_PublishAndLoad(t *testing.T) {
	ctx := context.Background()
	src := newPostgresSource(t)

	def := testhelpers.SalesDefinition()
	require.NoError(t, src.Publish(ctx, def))

	loaded, err := src.Load(ctx)
	require.NoError(t, err)

	want := testhelpers.SalesCatalog(t)
	assert.Equal(t, want.Version(), loaded.Version())
	assert.Equal(t, want.DefaultTimeDimension(), loaded.DefaultTimeDimension())
	for _, category := range []models.Category{models.CategoryMetric, models.CategoryDimension, models.CategoryTimeDimension} {
		assert.Equal(t, entryIDs(want, category), entryIDs(loaded, category), category.String())
	}
	assert.Len(t, loaded.TimeWindows(), len(want.TimeWindows()))

	for _, e := range want.Entries(models.CategoryMetric) {
		got := loaded.Entries(models.CategoryMetric)
		var found *catalog.Entry
		for _, g := range got {
			if g.ID == e.ID {
				found = g
			}
		}
		require.NotNil(t, found, e.ID)
		assert.ElementsMatch(t, e.Aliases, found.Aliases, e.ID)
		assert.ElementsMatch(t, e.Scopes, found.Scopes, e.ID)
	}
}

func TestPostgresSource_PublishReplacesActiveVersion(t *testing.T) {
	ctx := context.Background()
	src := newPostgresSource(t)

	first := testhelpers.SalesDefinition()
	first.Version = "v1"
	require.NoError(t, src.Publish(ctx, first))

	second := testhelpers.SalesDefinition()
	second.Version = "v2"
	second.Metrics = second.Metrics[:1]
	require.NoError(t, src.Publish(ctx, second))

	loaded, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", loaded.Version())
	assert.Len(t, loaded.Entries(models.CategoryMetric), 1)

	var versions int
	require.NoError(t, testhelpers.GetCatalogDB(t).DB.Pool.
		QueryRow(ctx, `SELECT count(*) FROM catalog_versions`).Scan(&versions))
	assert.Equal(t, 2, versions, "older versions are kept inactive")
}

func TestPostgresSource_NoActiveVersion(t *testing.T) {
	src := newPostgresSource(t)

	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPostgresSource_PublishRejectsInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	src := newPostgresSource(t)

	def := testhelpers.SalesDefinition()
	def.DefaultTimeDimension = "no_such_dimension"
	require.Error(t, src.Publish(ctx, def))

	_, err := src.Load(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "nothing is written for an invalid definition")
}

func TestHolder_ReloadFromPostgres(t *testing.T) {
	ctx := context.Background()
	src := newPostgresSource(t)

	def := testhelpers.SalesDefinition()
	def.Version = "v1"
	require.NoError(t, src.Publish(ctx, def))

	holder, err := catalog.NewHolder(ctx, src, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "v1", holder.Current().Version())

	def.Version = "v2"
	require.NoError(t, src.Publish(ctx, def))
	_, err = holder.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", holder.Current().Version())
}

package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/models"
	"github.com/ekaya-inc/intentgate/pkg/testhelpers"
)

func TestResolve(t *testing.T) {
	n := New(testhelpers.SalesCatalog(t))

	tests := []struct {
		name           string
		term           string
		cat            models.Category
		scope          models.Scope
		wantStatus     Status
		wantID         string
		wantCandidates []string
		wantScoped     bool
	}{
		{
			name: "canonical id", term: "total_quantity", cat: models.CategoryMetric,
			wantStatus: StatusResolved, wantID: "total_quantity", wantCandidates: []string{"total_quantity"},
		},
		{
			name: "alias", term: "Volume", cat: models.CategoryMetric,
			wantStatus: StatusResolved, wantID: "total_quantity", wantCandidates: []string{"total_quantity"},
		},
		{
			name: "plural falls back to singular", term: "regions", cat: models.CategoryDimension,
			wantStatus: StatusResolved, wantID: "region", wantCandidates: []string{"region"},
		},
		{
			name: "unknown", term: "country", cat: models.CategoryDimension,
			wantStatus: StatusNotFound, wantCandidates: []string{},
		},
		{
			name: "ambiguous without scope", term: "sales", cat: models.CategoryMetric,
			wantStatus: StatusAmbiguous, wantCandidates: []string{"primary_sales", "secondary_sales"},
		},
		{
			name: "primary scope picks one", term: "sales", cat: models.CategoryMetric, scope: models.ScopePrimary,
			wantStatus: StatusResolved, wantID: "primary_sales",
			wantCandidates: []string{"primary_sales", "secondary_sales"}, wantScoped: true,
		},
		{
			name: "secondary scope on dimension", term: "partner", cat: models.CategoryDimension, scope: models.ScopeSecondary,
			wantStatus: StatusResolved, wantID: "retailer_name",
			wantCandidates: []string{"distributor_name", "retailer_name"}, wantScoped: true,
		},
		{
			name: "single match ignores scope", term: "volume", cat: models.CategoryMetric, scope: models.ScopePrimary,
			wantStatus: StatusResolved, wantID: "total_quantity", wantCandidates: []string{"total_quantity"},
		},
		{
			name: "time dimension alias", term: "billing date", cat: models.CategoryTimeDimension,
			wantStatus: StatusResolved, wantID: "invoice_date", wantCandidates: []string{"invoice_date"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Resolve(tt.term, tt.cat, tt.scope)
			assert.Equal(t, tt.wantStatus, res.Status, res.Status.String())
			assert.Equal(t, tt.wantID, res.ID)
			assert.Equal(t, tt.wantCandidates, res.Candidates)
			assert.Equal(t, tt.wantScoped, res.ScopeApplied)
		})
	}
}

func TestResolve_ScopeNotUniqueStaysAmbiguous(t *testing.T) {
	c, err := catalog.New(catalog.Definition{
		Metrics: []catalog.EntryDefinition{
			{ID: "a_sales", Aliases: []string{"sales"}, Scopes: []string{"primary"}},
			{ID: "b_sales", Aliases: []string{"sales"}, Scopes: []string{"primary"}},
			{ID: "c_sales", Aliases: []string{"sales"}, Scopes: []string{"secondary"}},
		},
	})
	require.NoError(t, err)
	n := New(c)

	res := n.Resolve("sales", models.CategoryMetric, models.ScopePrimary)
	assert.Equal(t, StatusAmbiguous, res.Status)
	assert.Equal(t, []string{"a_sales", "b_sales", "c_sales"}, res.Candidates)

	res = n.Resolve("sales", models.CategoryMetric, models.ScopeSecondary)
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, "c_sales", res.ID)
}

func TestResolve_EveryAliasRoundTrips(t *testing.T) {
	c := testhelpers.SalesCatalog(t)
	n := New(c)

	for _, cat := range models.Categories() {
		for _, e := range c.Entries(cat) {
			for _, alias := range e.Aliases {
				res := n.Resolve(alias, cat, models.ScopeUnspecified)
				if res.Status == StatusAmbiguous {
					assert.Contains(t, res.Candidates, e.ID)
					continue
				}
				assert.Equal(t, e.ID, res.ID, "alias %q", alias)
			}
		}
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "resolved", StatusResolved.String())
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "ambiguous", StatusAmbiguous.String())
	assert.Equal(t, "unknown", Status(42).String())
}

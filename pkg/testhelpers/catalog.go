package testhelpers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
)

// SalesDefinition is a small distribution-sales catalog shared by package
// tests. "sales" deliberately aliases two metrics that differ only by scope,
// and "partner" aliases two scoped dimensions.
func SalesDefinition() catalog.Definition {
	return catalog.Definition{
		Version:              "test-1",
		DefaultTimeDimension: "invoice_date",
		Metrics: []catalog.EntryDefinition{
			{
				ID:          "total_quantity",
				Name:        "total_quantity",
				DisplayName: "Total Quantity",
				Description: "Units sold",
				Aliases:     []string{"volume", "quantity", "units sold"},
			},
			{
				ID:          "primary_sales",
				Name:        "primary_sales",
				DisplayName: "Primary Sales",
				Description: "Billed value from manufacturer to distributor",
				Aliases:     []string{"sales", "billed sales"},
				Scopes:      []string{"primary"},
			},
			{
				ID:          "secondary_sales",
				Name:        "secondary_sales",
				DisplayName: "Secondary Sales",
				Description: "Billed value from distributor to retailer",
				Aliases:     []string{"sales", "retail sales"},
				Scopes:      []string{"secondary"},
			},
			{
				ID:      "transaction_count",
				Name:    "transaction_count",
				Aliases: []string{"transactions", "bills"},
			},
		},
		Dimensions: []catalog.EntryDefinition{
			{
				ID:             "region",
				Name:           "region",
				Aliases:        []string{"zone"},
				PossibleValues: []string{"North", "South", "East", "West"},
			},
			{ID: "state", Name: "state", Aliases: []string{"province"}},
			{ID: "brand", Name: "brand", DisplayName: "Product Brand"},
			{
				ID:             "outlet_type",
				Name:           "outlet_type",
				Aliases:        []string{"channel"},
				PossibleValues: []string{"Retail", "Wholesale"},
			},
			{
				ID:      "distributor_name",
				Name:    "distributor_name",
				Aliases: []string{"distributor", "partner"},
				Scopes:  []string{"primary"},
			},
			{
				ID:      "retailer_name",
				Name:    "retailer_name",
				Aliases: []string{"retailer", "partner"},
				Scopes:  []string{"secondary"},
			},
		},
		TimeDimensions: []catalog.EntryDefinition{
			{
				ID:      "invoice_date",
				Name:    "invoice_date",
				Aliases: []string{"date", "billing date"},
			},
			{
				ID:            "order_date",
				Name:          "order_date",
				Aliases:       []string{"ordered on"},
				Granularities: []string{"day", "week", "month"},
			},
		},
	}
}

// SalesCatalog builds SalesDefinition and fails the test on error.
func SalesCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(SalesDefinition())
	require.NoError(t, err)
	return c
}

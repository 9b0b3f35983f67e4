package routing

import (
	"testing"

	coreconfig "ledgerbot/core/config"

	"github.com/stretchr/testify/assert"
)

func fullConfig() coreconfig.StorageConfig {
	return coreconfig.StorageConfig{
		InvoiceDocFolder:    "fld-invoice",
		SupplierOtherFolder: "fld-supplier",
		PurchasingFolder:    "fld-purchasing",
		OtherFolder:         "fld-other",
		DefaultFolder:       "fld-default",
		CategoryFolders: map[string]string{
			"electricity": "fld-electricity",
			"water":       "fld-water",
			"rent":        "fld-rent",
			"wifi_bill":   "fld-wifi",
		},
	}
}

func TestResolveInvoiceAlwaysDedicated(t *testing.T) {
	r := NewResolver(fullConfig())

	route := r.Resolve(TypeInvoiceDoc)
	assert.Equal(t, "fld-invoice", route.FolderID)
	assert.Equal(t, TypeInvoiceDoc, route.Category)
	assert.True(t, route.Routed())
}

func TestResolveSupplierOther(t *testing.T) {
	r := NewResolver(fullConfig())

	for _, token := range []string{"supplier_other", "Supplier Other", "SUPPLIER_OTHER"} {
		route := r.Resolve(token)
		assert.Equal(t, "fld-supplier", route.FolderID, "token %q", token)
		assert.Equal(t, TypeSupplierOther, route.Category)
	}
}

func TestResolveSupplierOtherFallsBackToPurchasing(t *testing.T) {
	cfg := fullConfig()
	cfg.SupplierOtherFolder = ""
	r := NewResolver(cfg)

	route := r.Resolve(TypeSupplierOther)
	assert.Equal(t, "fld-purchasing", route.FolderID)
	assert.Equal(t, TypeSupplierOther, route.Category)
}

func TestResolveOtherFamily(t *testing.T) {
	r := NewResolver(fullConfig())

	for _, token := range []string{"other", "Other Bill", "Other Bill: parking", "other expense - misc"} {
		route := r.Resolve(token)
		assert.Equal(t, "fld-other", route.FolderID, "token %q", token)
		assert.Equal(t, "other", route.Category, "token %q", token)
	}
}

func TestResolveCategoryTable(t *testing.T) {
	r := NewResolver(fullConfig())

	route := r.Resolve("Electricity Bill")
	assert.Equal(t, "fld-electricity", route.FolderID)
	assert.Equal(t, "electricity", route.Category)

	// canonical name works as well as the display label
	assert.Equal(t, route, r.Resolve("electricity"))
}

func TestResolveSiblingFolderKey(t *testing.T) {
	r := NewResolver(fullConfig())

	route := r.Resolve("WiFi Bill")
	assert.Equal(t, "fld-wifi", route.FolderID)
	assert.Equal(t, "wifi", route.Category)
}

func TestResolveKnownCategoryWithoutFolder(t *testing.T) {
	r := NewResolver(fullConfig())

	route := r.Resolve("Salary")
	assert.Equal(t, "fld-default", route.FolderID)
	assert.Equal(t, "salary", route.Category)
}

func TestResolveUnknownToken(t *testing.T) {
	r := NewResolver(fullConfig())

	route := r.Resolve("Team Lunch")
	assert.Equal(t, "fld-default", route.FolderID)
	assert.Equal(t, "team_lunch", route.Category)

	empty := r.Resolve("  ")
	assert.Equal(t, "uncategorized", empty.Category)
}

func TestResolveUnrouted(t *testing.T) {
	r := NewResolver(coreconfig.StorageConfig{})

	route := r.Resolve("Team Lunch")
	assert.False(t, route.Routed())
	assert.Equal(t, "team_lunch", route.Category)
}

// Package routing decides which document-store folder an uploaded
// attachment lands in, based on the expense type recorded with it.
package routing

import (
	"context"
	"strings"

	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	"log/slog"
)

// TypeInvoiceDoc is the reserved expense-type literal for invoice documents.
// Invoice uploads bypass the category table entirely.
const TypeInvoiceDoc = "invoice_pdf"

// TypeSupplierOther is the reserved token for supplier purchases that do not
// fit a named category.
const TypeSupplierOther = "supplier_other"

// TypePurchasing is the generic purchasing category token.
const TypePurchasing = "purchasing"

// Route is the resolved upload destination for one attachment. An empty
// FolderID means the upload proceeds without a parent folder.
type Route struct {
	FolderID string
	Category string
}

// Routed reports whether a concrete destination folder was resolved.
func (r Route) Routed() bool {
	return r.FolderID != ""
}

// categoryTable maps raw expense-type tokens to canonical category names.
// Both the display label and the canonical name itself are accepted.
var categoryTable = map[string]string{
	"electricity bill": "electricity",
	"electricity":      "electricity",
	"wifi bill":        "wifi",
	"wifi":             "wifi",
	"water bill":       "water",
	"water":            "water",
	"rent":             "rent",
	"salary":           "salary",
	"stationery":       "stationery",
	"transport":        "transport",
}

// siblingKeys names a secondary folder lookup key for categories that have
// one configured under an alternative name in some deployments.
var siblingKeys = map[string]string{
	"wifi": "wifi_bill",
}

// Resolver maps expense-type tokens to storage destinations. Folder
// identifiers come from deployment configuration and may be partially unset;
// resolution degrades to the default folder and finally to an unrouted
// result rather than failing an upload.
type Resolver struct {
	invoiceDoc    string
	supplierOther string
	purchasing    string
	other         string
	fallback      string
	folders       map[string]string
}

// NewResolver builds a Resolver from the deployment's storage configuration.
func NewResolver(cfg coreconfig.StorageConfig) *Resolver {
	folders := make(map[string]string, len(cfg.CategoryFolders))
	for k, v := range cfg.CategoryFolders {
		folders[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &Resolver{
		invoiceDoc:    strings.TrimSpace(cfg.InvoiceDocFolder),
		supplierOther: strings.TrimSpace(cfg.SupplierOtherFolder),
		purchasing:    strings.TrimSpace(cfg.PurchasingFolder),
		other:         strings.TrimSpace(cfg.OtherFolder),
		fallback:      strings.TrimSpace(cfg.DefaultFolder),
		folders:       folders,
	}
}

// Resolve maps a raw expense-type token to its upload destination. It is
// pure and total: every input yields a Route, possibly unrouted.
func (r *Resolver) Resolve(rawType string) Route {
	raw := strings.TrimSpace(rawType)
	lowered := strings.ToLower(raw)

	switch {
	case lowered == TypeInvoiceDoc:
		return r.finish(Route{FolderID: r.invoiceDoc, Category: TypeInvoiceDoc}, raw)

	case lowered == TypeSupplierOther || lowered == "supplier other":
		folder := r.supplierOther
		if folder == "" {
			folder = r.purchasing
		}
		return r.finish(Route{FolderID: folder, Category: TypeSupplierOther}, raw)

	case lowered == TypePurchasing:
		return r.finish(Route{FolderID: r.purchasing, Category: TypePurchasing}, raw)

	case lowered == "other" ||
		strings.HasPrefix(lowered, "other bill") ||
		strings.HasPrefix(lowered, "other expense"):
		return r.finish(Route{FolderID: r.other, Category: "other"}, raw)
	}

	if canonical, ok := categoryTable[lowered]; ok {
		folder := r.folders[canonical]
		if folder == "" {
			if sibling, ok := siblingKeys[canonical]; ok {
				folder = r.folders[sibling]
			}
		}
		return r.finish(Route{FolderID: folder, Category: canonical}, raw)
	}

	return r.finish(Route{Category: normalizeUnknown(lowered)}, raw)
}

// finish applies the process-wide default folder and logs unrouted results.
func (r *Resolver) finish(route Route, raw string) Route {
	if route.FolderID == "" {
		route.FolderID = r.fallback
	}
	if !route.Routed() {
		logger.Warn(context.Background(), "resolver", "route.unrouted",
			slog.String("status", "ok"),
			slog.String("category", route.Category),
			slog.String("payload", logger.SanitizeLimit(raw, 64)),
		)
	}
	return route
}

func normalizeUnknown(lowered string) string {
	if lowered == "" {
		return "uncategorized"
	}
	return strings.ReplaceAll(lowered, " ", "_")
}

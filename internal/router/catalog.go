// Package router routes data operations to the vendors registered for them,
// falling back across vendors and serving stale cache entries when all fail.
package router

import (
	"fmt"
	"slices"
	"sort"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

// categories lists the operations of each vendor category.
var categories = map[string][]string{
	config.CategoryCoreStock:  {"get_stock_data"},
	config.CategoryIndicators: {"get_indicators"},
	config.CategoryFundamentals: {
		"get_fundamentals",
		"get_balance_sheet",
		"get_cashflow",
		"get_income_statement",
	},
	config.CategoryNews: {
		"get_news",
		"get_global_news",
		"get_insider_sentiment",
		"get_insider_transactions",
	},
}

var operationCategory = func() map[string]string {
	out := make(map[string]string)
	for category, ops := range categories {
		for _, op := range ops {
			out[op] = category
		}
	}
	return out
}()

// CategoryFor returns the category of operation.
func CategoryFor(operation string) (string, error) {
	category, ok := operationCategory[operation]
	if !ok {
		return "", fmt.Errorf("%w: %q is not in any category", types.ErrUnknownOperation, operation)
	}
	return category, nil
}

// Operations returns every catalogued operation, sorted.
func Operations() []string {
	out := make([]string, 0, len(operationCategory))
	for op := range operationCategory {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Categories returns the category names, sorted.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// OperationsIn returns the operations of category, sorted. Unknown
// categories have none.
func OperationsIn(category string) []string {
	out := slices.Clone(categories[category])
	sort.Strings(out)
	return out
}

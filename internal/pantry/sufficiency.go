package pantry

import (
	"errors"

	"github.com/larderhq/pantry-scan/internal/catalog"
)

// CheckSufficiency compares a recipe's ingredient list, scaled from
// baseServings to targetServings, against a pantry snapshot. It is purely
// advisory and read-only: pantry items are never mutated.
//
// An ingredient missing from the pantry (or present with unknown amount)
// is short by its full requirement. When the pantry unit's category differs
// from the required unit's category the comparison is indeterminate and
// reported the same way, with no cross-category equivalence guessed.
// The check always returns a complete answer; only invalid input aborts it.
func CheckSufficiency(cat *catalog.Catalog, ingredients []RecipeIngredient, targetServings, baseServings int, items []*PantryItem) (*SufficiencyReport, error) {
	if targetServings <= 0 {
		return nil, &ValidationError{Field: "servings", Reason: "must be positive"}
	}
	if baseServings <= 0 {
		return nil, &ValidationError{Field: "base_servings", Reason: "must be positive"}
	}

	available := make(map[string]*PantryItem, len(items))
	for _, item := range items {
		if item.Current {
			available[item.CanonicalName] = item
		}
	}

	report := &SufficiencyReport{
		TargetServings: targetServings,
		Results:        make([]SufficiencyResult, 0, len(ingredients)),
		ShoppingList:   make([]ShoppingItem, 0),
	}

	for _, ing := range ingredients {
		canonical := catalog.Normalize(ing.Name)
		if canonical == "" {
			return nil, &ValidationError{Field: "ingredient", Reason: "name must not be empty"}
		}

		required, requiredUnit, err := requiredAmount(cat, ing, canonical, targetServings, baseServings)
		if err != nil {
			return nil, err
		}

		result := SufficiencyResult{
			Name:             canonical,
			Display:          displayNameFor(cat, ing, canonical),
			RequiredQuantity: required,
			RequiredUnit:     requiredUnit,
		}

		item, held := available[canonical]
		switch {
		case !held || item.Quantity == nil:
			result.Shortage = required
		default:
			converted, err := cat.Convert(*item.Quantity, item.Unit, requiredUnit)
			var mismatch *catalog.CategoryMismatchError
			var unknown *catalog.UnknownUnitError
			switch {
			case errors.As(err, &mismatch) || errors.As(err, &unknown):
				// indeterminate: report what is on the shelf, count
				// the full requirement as short
				result.AvailableQuantity = *item.Quantity
				result.AvailableUnit = item.Unit
				result.Shortage = required
			case err != nil:
				return nil, err
			default:
				result.AvailableQuantity = converted
				result.AvailableUnit = requiredUnit
				shortage := required - converted
				if shortage < 0 {
					shortage = 0
				}
				result.Shortage = shortage
			}
		}

		result.Sufficient = result.Shortage == 0
		report.Results = append(report.Results, result)
		if result.Shortage > 0 {
			report.ShoppingList = append(report.ShoppingList, ShoppingItem{
				Name:     canonical,
				Quantity: result.Shortage,
				Unit:     result.RequiredUnit,
			})
		}
	}

	return report, nil
}

// requiredAmount scales the recipe amount to the target serving count,
// falling back to the standard serving catalog when the recipe gives no
// absolute quantity, and to one piece per person when neither exists.
func requiredAmount(cat *catalog.Catalog, ing RecipeIngredient, canonical string, target, base int) (float64, string, error) {
	if ing.Quantity != nil {
		if *ing.Quantity <= 0 {
			return 0, "", &ValidationError{Field: "quantity", Reason: "must be positive for " + canonical}
		}
		unit := ing.Unit
		if unit == "" {
			unit = defaultUnit
		}
		if _, ok := cat.Unit(unit); !ok {
			return 0, "", &ValidationError{Field: "unit", Reason: "unknown unit " + unit + " for " + canonical}
		}
		return *ing.Quantity * float64(target) / float64(base), unit, nil
	}

	if serving, ok := cat.StandardServing(canonical); ok {
		return serving.Quantity * float64(target), serving.Unit, nil
	}

	return float64(target), defaultUnit, nil
}

func displayNameFor(cat *catalog.Catalog, ing RecipeIngredient, canonical string) string {
	if ing.Display != "" {
		return ing.Display
	}
	if entry, ok := cat.Ingredient(canonical); ok {
		return entry.Display
	}
	return canonical
}

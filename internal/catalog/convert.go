package catalog

import "fmt"

// CategoryMismatchError is returned when a conversion is attempted between
// units of different physical categories. This is always a hard, typed
// failure: silently coercing weight to volume (or guessing a density) is a
// correctness problem, and for allergen-adjacent decisions a safety one.
type CategoryMismatchError struct {
	From Unit
	To   Unit
}

func (e *CategoryMismatchError) Error() string {
	return fmt.Sprintf("cannot convert %s (%s) to %s (%s): unit categories differ",
		e.From.Name, e.From.Category, e.To.Name, e.To.Category)
}

// UnknownUnitError is returned when a unit name is not in the catalog.
type UnknownUnitError struct {
	Name string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown unit %q", e.Name)
}

// Convert converts a quantity between two units of the same category:
// quantity × from.Factor / to.Factor. Converting a unit to itself returns
// the input unchanged, so factor precision can never perturb an identity
// conversion.
func (c *Catalog) Convert(quantity float64, from, to string) (float64, error) {
	fu, ok := c.units[from]
	if !ok {
		return 0, &UnknownUnitError{Name: from}
	}
	tu, ok := c.units[to]
	if !ok {
		return 0, &UnknownUnitError{Name: to}
	}
	if fu.Name == tu.Name {
		return quantity, nil
	}
	if fu.Category != tu.Category {
		return 0, &CategoryMismatchError{From: fu, To: tu}
	}
	return quantity * fu.Factor / tu.Factor, nil
}

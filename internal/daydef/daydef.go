// Package daydef declares the field schema of a daily activity entry.
// Entry forms and validation are driven from this definition rather than
// hard-coded per handler.
package daydef

import (
	"fmt"

	"github.com/healthy-futures/contest-api/internal/models"
)

// FieldKind distinguishes numeric counters from free text.
type FieldKind string

const (
	KindNumeric FieldKind = "numeric"
	KindText    FieldKind = "text"
)

// Field describes one entry field and its bounds.
type Field struct {
	Name     string
	Label    string
	Kind     FieldKind
	Min      int
	Max      int
	Exercise bool // counts toward the daily exercise-minutes total
}

// Definition is the fixed schema every daily entry follows.
type Definition struct {
	fields []Field
}

// Default returns the contest's daily entry schema.
func Default() *Definition {
	return &Definition{fields: []Field{
		{Name: "minutes_moderate", Label: "Moderate activity (minutes)", Kind: KindNumeric, Min: 0, Max: 720, Exercise: true},
		{Name: "minutes_vigorous", Label: "Vigorous activity (minutes)", Kind: KindNumeric, Min: 0, Max: 720, Exercise: true},
		{Name: "sugary_drinks", Label: "Sugary drinks", Kind: KindNumeric, Min: 0, Max: 20},
		{Name: "fruit_veggies", Label: "Fruit and veggie servings", Kind: KindNumeric, Min: 0, Max: 20},
		{Name: "notes", Label: "Notes", Kind: KindText},
	}}
}

// Fields lists the declared fields in form order.
func (d *Definition) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Validate checks an entry's numeric values against the declared bounds.
func (d *Definition) Validate(entry *models.Entry) error {
	values := map[string]int{
		"minutes_moderate": entry.MinutesModerate,
		"minutes_vigorous": entry.MinutesVigorous,
		"sugary_drinks":    entry.SugaryDrinks,
		"fruit_veggies":    entry.FruitVeggies,
	}
	for _, f := range d.fields {
		if f.Kind != KindNumeric {
			continue
		}
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if v < f.Min || v > f.Max {
			return fmt.Errorf("%s must be between %d and %d", f.Name, f.Min, f.Max)
		}
	}
	return nil
}

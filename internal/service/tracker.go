package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"waterworks/internal/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field describes one audited attribute of T: how to read, write, coerce, compare and
// stringify it. Trackers are built once per entity type.
type Field[T any] struct {
	Name   string
	get    func(*T) any
	set    func(*T, any)
	coerce func(any) (any, error)
	equal  func(a, b any) bool
	format func(any) string
}

func newField[T, V any](
	name string,
	get func(*T) V,
	set func(*T, V),
	coerce func(any) (V, error),
	equal func(a, b V) bool,
	format func(V) string,
) Field[T] {
	return Field[T]{
		Name:   name,
		get:    func(e *T) any { return get(e) },
		set:    func(e *T, v any) { set(e, v.(V)) },
		coerce: func(raw any) (any, error) { return coerce(raw) },
		equal:  func(a, b any) bool { return equal(a.(V), b.(V)) },
		format: func(v any) string { return format(v.(V)) },
	}
}

// StringField tracks a required text attribute.
func StringField[T any](name string, get func(*T) string, set func(*T, string)) Field[T] {
	return newField(name, get, set, toString,
		func(a, b string) bool { return a == b },
		func(v string) string { return v })
}

// OptionalStringField tracks a nullable text attribute.
func OptionalStringField[T any](name string, get func(*T) *string, set func(*T, *string)) Field[T] {
	return newField(name, get, set, toOptionalString, equalPtr[string],
		func(v *string) string {
			if v == nil {
				return ""
			}
			return *v
		})
}

// DecimalField tracks a required numeric attribute.
func DecimalField[T any](name string, get func(*T) decimal.Decimal, set func(*T, decimal.Decimal)) Field[T] {
	return newField(name, get, set, toDecimal,
		func(a, b decimal.Decimal) bool { return a.Equal(b) },
		func(v decimal.Decimal) string { return v.String() })
}

// NullDecimalField tracks a nullable numeric attribute.
func NullDecimalField[T any](name string, get func(*T) decimal.NullDecimal, set func(*T, decimal.NullDecimal)) Field[T] {
	return newField(name, get, set, toNullDecimal,
		func(a, b decimal.NullDecimal) bool {
			if !a.Valid || !b.Valid {
				return a.Valid == b.Valid
			}
			return a.Decimal.Equal(b.Decimal)
		},
		func(v decimal.NullDecimal) string {
			if !v.Valid {
				return ""
			}
			return v.Decimal.String()
		})
}

// OptionalFloatField tracks a nullable float attribute such as a coordinate.
func OptionalFloatField[T any](name string, get func(*T) *float64, set func(*T, *float64)) Field[T] {
	return newField(name, get, set, toOptionalFloat, equalPtr[float64],
		func(v *float64) string {
			if v == nil {
				return ""
			}
			return strconv.FormatFloat(*v, 'f', -1, 64)
		})
}

// OptionalUUIDField tracks a nullable reference.
func OptionalUUIDField[T any](name string, get func(*T) *uuid.UUID, set func(*T, *uuid.UUID)) Field[T] {
	return newField(name, get, set, toOptionalUUID, equalPtr[uuid.UUID],
		func(v *uuid.UUID) string {
			if v == nil {
				return ""
			}
			return v.String()
		})
}

// Tracker is the field registry for one entity type.
type Tracker[T any] struct {
	fields map[string]Field[T]
	order  []string
}

// NewTracker registers fields; diffs are reported in registration order.
func NewTracker[T any](fields ...Field[T]) *Tracker[T] {
	t := &Tracker[T]{fields: make(map[string]Field[T], len(fields))}
	for _, f := range fields {
		if _, dup := t.fields[f.Name]; dup {
			panic("tracker: duplicate field " + f.Name)
		}
		t.fields[f.Name] = f
		t.order = append(t.order, f.Name)
	}
	return t
}

// Change is one field whose proposed value differs from the stored one.
type Change struct {
	Field    string
	OldValue string
	NewValue string
}

// Proposal is a set of coerced values ready to be diffed against an entity.
type Proposal[T any] struct {
	tracker *Tracker[T]
	values  map[string]any
}

// Parse coerces raw values. Unknown names are rejected, which also keeps derived
// attributes such as previous_position read-only.
func (t *Tracker[T]) Parse(raw map[string]any) (*Proposal[T], error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]any, len(raw))
	for _, name := range names {
		f, ok := t.fields[name]
		if !ok {
			return nil, &apperr.ValidationError{Field: name, Message: "unknown or read-only field"}
		}
		v, err := f.coerce(raw[name])
		if err != nil {
			return nil, &apperr.ValidationError{Field: name, Message: err.Error()}
		}
		values[name] = v
	}
	return &Proposal[T]{tracker: t, values: values}, nil
}

// Has reports whether name was proposed.
func (p *Proposal[T]) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Value returns the coerced proposed value for name, or nil.
func (p *Proposal[T]) Value(name string) any {
	return p.values[name]
}

// Len is the number of proposed fields.
func (p *Proposal[T]) Len() int {
	return len(p.values)
}

// Diff lists the proposed fields whose value differs from entity's.
func (p *Proposal[T]) Diff(entity *T) []Change {
	var changes []Change
	for _, name := range p.tracker.order {
		proposed, ok := p.values[name]
		if !ok {
			continue
		}
		f := p.tracker.fields[name]
		current := f.get(entity)
		if f.equal(current, proposed) {
			continue
		}
		changes = append(changes, Change{
			Field:    name,
			OldValue: f.format(current),
			NewValue: f.format(proposed),
		})
	}
	return changes
}

// ApplyTo writes every proposed value onto entity.
func (p *Proposal[T]) ApplyTo(entity *T) {
	for _, name := range p.tracker.order {
		if v, ok := p.values[name]; ok {
			p.tracker.fields[name].set(entity, v)
		}
	}
}

// --- Coercion ---

func toString(raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("must be a string")
	}
	return s, nil
}

func toOptionalString(raw any) (*string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *string:
		return v, nil
	case string:
		return &v, nil
	}
	return nil, fmt.Errorf("must be a string or null")
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("must be a number")
		}
		return d, nil
	}
	return decimal.Decimal{}, fmt.Errorf("must be a number")
}

func toNullDecimal(raw any) (decimal.NullDecimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case decimal.NullDecimal:
		return v, nil
	}
	d, err := toDecimal(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("must be a number or null")
	}
	return decimal.NewNullDecimal(d), nil
}

func toOptionalFloat(raw any) (*float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *float64:
		return v, nil
	case float64:
		return &v, nil
	case int:
		f := float64(v)
		return &f, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number or null")
		}
		return &f, nil
	}
	return nil, fmt.Errorf("must be a number or null")
}

func toOptionalUUID(raw any) (*uuid.UUID, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *uuid.UUID:
		return v, nil
	case uuid.UUID:
		return &v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("must be a UUID or null")
		}
		return &id, nil
	}
	return nil, fmt.Errorf("must be a UUID or null")
}

func equalPtr[V comparable](a, b *V) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

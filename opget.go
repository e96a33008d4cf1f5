package kvdoc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/mo"
)

// GetExact looks up a single key. A missing key is a *QueryError; a payload
// that cannot be decoded is a *DeserializeError. If the key holds a pointer,
// the pointer's target key is returned as a string without following it.
func (tbl *Table) GetExact(ctx context.Context, key string) (any, error) {
	raw, found, err := tbl.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, queryErrf(tbl.name, key, nil, "no value found")
	}
	if target, ok := tbl.pointerTarget(raw); ok {
		return target, nil
	}
	return tbl.decode(raw)
}

// GetPointerKeyed reads the pointer stored under key and returns the value of
// the record it points to. Pointers are followed exactly one hop.
func (tbl *Table) GetPointerKeyed(ctx context.Context, key string) (any, error) {
	target, err := tbl.readPointer(ctx, key)
	if err != nil {
		return nil, err
	}
	return tbl.getTarget(ctx, key, target)
}

// PointerExists reports whether key holds a pointer whose target exists and
// decodes.
func (tbl *Table) PointerExists(ctx context.Context, key string) bool {
	_, err := tbl.GetPointerKeyed(ctx, key)
	return err == nil
}

// Exists reports whether key is present, without decoding its value.
func (tbl *Table) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := tbl.load(ctx, key)
	return found, err
}

func (tbl *Table) readPointer(ctx context.Context, key string) (string, error) {
	raw, found, err := tbl.load(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", queryErrf(tbl.name, key, nil, "no pointer found")
	}
	if target, ok := tbl.pointerTarget(raw); ok {
		return target, nil
	}
	v, err := tbl.decode(raw)
	if err != nil {
		return "", queryErrf(tbl.name, key, err, "value is not a pointer")
	}
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", queryErrf(tbl.name, key, nil, "value is not a pointer: %s", describeValue(v))
}

// getTarget loads the record a pointer at key refers to.
func (tbl *Table) getTarget(ctx context.Context, key, target string) (any, error) {
	raw, found, err := tbl.load(ctx, target)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, queryErrf(tbl.name, key, nil, "pointer target %s not found", target)
	}
	if _, ok := tbl.pointerTarget(raw); ok {
		return nil, queryErrf(tbl.name, key, nil, "pointer target %s is itself a pointer", target)
	}
	return tbl.decode(raw)
}

// GetAs is GetExact converting the value into T.
func GetAs[T any](ctx context.Context, tbl *Table, key string) (T, error) {
	v, err := tbl.GetExact(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](v)
}

// As converts a decoded value into T, going through JSON unless the value
// already has that type.
func As[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var result T
	raw, err := json.Marshal(v)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("cannot convert %s into %T: %w", describeValue(v), result, err)
	}
	return result, nil
}

// Lookup is GetExact reporting a missing key as mo.None instead of an error.
func (tbl *Table) Lookup(ctx context.Context, key string) (mo.Option[any], error) {
	raw, found, err := tbl.load(ctx, key)
	if err != nil || !found {
		return mo.None[any](), err
	}
	if target, ok := tbl.pointerTarget(raw); ok {
		return mo.Some[any](target), nil
	}
	v, err := tbl.decode(raw)
	if err != nil {
		return mo.None[any](), err
	}
	return mo.Some(v), nil
}

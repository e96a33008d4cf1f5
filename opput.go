package kvdoc

import (
	"context"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// WriteToKey stores a value under key. Strict tables validate it against the
// schema first and write nothing if it does not match.
func (tbl *Table) WriteToKey(ctx context.Context, key string, value any) error {
	v, err := tbl.prepare(value)
	if err != nil {
		return err
	}
	return tbl.write(ctx, key, v)
}

// UpdateKey merges the fields of partial onto the record stored under key
// (or onto an empty record if there is none) and writes the result. Strict
// tables validate the fields present in partial.
func (tbl *Table) UpdateKey(ctx context.Context, key string, partial map[string]any) error {
	merged, err := tbl.merge(ctx, key, partial, false)
	if err != nil {
		return err
	}
	return tbl.write(ctx, key, merged)
}

// WritePointer stores a pointer to target under key.
func (tbl *Table) WritePointer(ctx context.Context, key, target string) error {
	if target == "" {
		return queryErrf(tbl.name, key, nil, "empty pointer target")
	}
	return tbl.store(ctx, key, tbl.encodePointer(target))
}

// Get returns the master record with the given id.
func (tbl *Table) Get(ctx context.Context, id string) (any, error) {
	return tbl.GetExact(ctx, tbl.Key(id))
}

// GetBy returns the first record whose pointer field equals value.
func (tbl *Table) GetBy(ctx context.Context, field string, value any) (any, error) {
	return tbl.First(ctx, Query{Field: field, String: Exact(value), Limit: Unpaginated})
}

// Put writes a master record under id along with one pointer per
// pointer-marked field, stored at TBL:<table>-PTR:<field>-<value>/<id>.
// Pointers left behind by a previous version of the record are removed.
func (tbl *Table) Put(ctx context.Context, id string, record any) error {
	if err := tbl.checkID(id); err != nil {
		return err
	}
	v, err := tbl.prepare(record)
	if err != nil {
		return err
	}
	return tbl.put(ctx, id, v)
}

// Insert is Put with a newly generated id, which it returns.
func (tbl *Table) Insert(ctx context.Context, record any) (string, error) {
	id := uuid.NewString()
	if err := tbl.Put(ctx, id, record); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges partial onto the existing master record with the given id,
// keeping its pointers current.
func (tbl *Table) Update(ctx context.Context, id string, partial map[string]any) error {
	if err := tbl.checkID(id); err != nil {
		return err
	}
	merged, err := tbl.merge(ctx, tbl.Key(id), partial, true)
	if err != nil {
		return err
	}
	if tbl.strict {
		if err := ValidateValue(tbl.schema, merged); err != nil {
			return err
		}
	}
	return tbl.put(ctx, id, merged)
}

// Remove deletes the master record with the given id and its pointers. It
// reports whether the record existed.
func (tbl *Table) Remove(ctx context.Context, id string) (bool, error) {
	if err := tbl.checkID(id); err != nil {
		return false, err
	}
	key := tbl.Key(id)
	old, found, err := tbl.loadRecord(ctx, key)
	if err != nil || !found {
		return false, err
	}
	for _, f := range tbl.PointerFields() {
		if fv, ok := old[f]; ok && fv != nil {
			if err := tbl.remove(ctx, tbl.pointerEntryKey(f, fv, id)); err != nil {
				return false, err
			}
		}
	}
	if err := tbl.remove(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func (tbl *Table) prepare(value any) (any, error) {
	v, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	if tbl.strict {
		if err := ValidateValue(tbl.schema, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (tbl *Table) write(ctx context.Context, key string, v any) error {
	raw, err := tbl.encode(v)
	if err != nil {
		return err
	}
	return tbl.store(ctx, key, raw)
}

func (tbl *Table) merge(ctx context.Context, key string, partial map[string]any, mustExist bool) (map[string]any, error) {
	norm, err := Normalize(partial)
	if err != nil {
		return nil, err
	}
	fields, _ := norm.(map[string]any)
	if tbl.strict {
		if err := ValidatePartial(tbl.schema, fields); err != nil {
			return nil, err
		}
	}
	existing, found, err := tbl.loadRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		if mustExist {
			return nil, queryErrf(tbl.name, key, nil, "no value found")
		}
		existing = make(map[string]any, len(fields))
	}
	maps.Copy(existing, fields)
	return existing, nil
}

// loadRecord reads a record stored directly (not through a pointer) under key.
func (tbl *Table) loadRecord(ctx context.Context, key string) (map[string]any, bool, error) {
	raw, found, err := tbl.load(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	if _, ok := tbl.pointerTarget(raw); ok {
		return nil, false, queryErrf(tbl.name, key, nil, "key holds a pointer, not a record")
	}
	v, err := tbl.decode(raw)
	if err != nil {
		return nil, false, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false, queryErrf(tbl.name, key, nil, "value is not a record: %s", describeValue(v))
	}
	return obj, true, nil
}

func (tbl *Table) put(ctx context.Context, id string, v any) error {
	key := tbl.Key(id)
	fields := tbl.PointerFields()
	if len(fields) == 0 {
		return tbl.write(ctx, key, v)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return &ValidationError{Expected: tbl.schema.String(), Received: describeValue(v)}
	}
	for _, f := range fields {
		if fv := obj[f]; fv != nil && !isPrimitiveValue(fv) {
			return &ValidationError{f, tbl.schema.(Root)[f].Type.String(), describeValue(fv)}
		}
	}

	old, found, err := tbl.loadRecord(ctx, key)
	if isStoreFailure(err) {
		return err
	} else if err != nil {
		tbl.db.logger.Warn("kvdoc: cannot read previous record, leaving its pointers", "table", tbl.name, "key", key, "err", err)
		found = false
	}
	if found {
		for _, f := range fields {
			ov, nv := old[f], obj[f]
			if ov == nil || (nv != nil && keyComponent(ov) == keyComponent(nv)) {
				continue
			}
			if err := tbl.remove(ctx, tbl.pointerEntryKey(f, ov, id)); err != nil {
				return err
			}
		}
	}

	if err := tbl.write(ctx, key, obj); err != nil {
		return err
	}
	ptr := tbl.encodePointer(key)
	for _, f := range fields {
		fv := obj[f]
		if fv == nil {
			continue
		}
		if err := tbl.store(ctx, tbl.pointerEntryKey(f, fv, id), ptr); err != nil {
			return err
		}
	}
	return nil
}

func (tbl *Table) checkID(id string) error {
	if id == "" {
		return queryErrf(tbl.name, id, nil, "empty record id")
	}
	if strings.HasPrefix(id, fieldKeyMarker) {
		return queryErrf(tbl.name, id, nil, "record id must not start with %s", fieldKeyMarker)
	}
	return nil
}

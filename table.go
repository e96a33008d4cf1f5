package kvdoc

import (
	"context"
	"fmt"
	"strings"
)

type Table struct {
	db              *DB
	name            string
	schema          Node
	kind            Kind
	strict          bool
	enc             Encoding
	encKey          []byte
	legacyPointers  bool
	suppressContent bool
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) Schema() Node {
	return tbl.schema
}

func (tbl *Table) Kind() Kind {
	return tbl.kind
}

func (tbl *Table) IsStrict() bool {
	return tbl.strict
}

// PointerFields returns the pointer-marked fields of a Root schema.
func (tbl *Table) PointerFields() []string {
	if root, ok := tbl.schema.(Root); ok {
		return root.PointerFields()
	}
	return nil
}

func (tbl *Table) isPointerField(field string) bool {
	root, ok := tbl.schema.(Root)
	return ok && root[field].Pointer
}

// Key returns the master key of a record.
func (tbl *Table) Key(query string) string {
	return BuildKey(tbl.name, true, "", query)
}

// FieldKey returns a key inside the partition of a pointer field.
func (tbl *Table) FieldKey(field, query string) string {
	return BuildKey(tbl.name, false, field, query)
}

// Exact turns a field value into a field query string that matches this
// value only, and not longer values sharing it as a prefix.
func Exact(value any) string {
	v, err := Normalize(value)
	if err != nil {
		return escapeComponent(fmt.Sprint(value)) + recordIDSep
	}
	return escapeComponent(keyComponent(v)) + recordIDSep
}

// pointerEntryKey is <field partition><escaped value>/<id>. The value never
// contains a bare separator, so the first one ends it whatever the id holds.
func (tbl *Table) pointerEntryKey(field string, value any, id string) string {
	return tbl.FieldKey(field, escapeComponent(keyComponent(value))+recordIDSep+id)
}

var componentEscaper = strings.NewReplacer("%", "%25", recordIDSep, "%2F")

func escapeComponent(s string) string {
	return componentEscaper.Replace(s)
}

func (tbl *Table) encode(v any) (string, error) {
	if tbl.encKey != nil {
		return tbl.enc.EncryptEncode(v, tbl.encKey)
	}
	return tbl.enc.Encode(v)
}

func (tbl *Table) decode(raw string) (any, error) {
	if tbl.encKey != nil {
		return tbl.enc.DecryptDecode(raw, tbl.encKey)
	}
	return tbl.enc.Decode(raw)
}

// pointerTarget recognizes a pointer before the value is decoded.
func (tbl *Table) pointerTarget(raw string) (string, bool) {
	if target, ok := ParsePointer(raw); ok {
		return target, true
	}
	if tbl.legacyPointers && (IsPointerKey(raw) || strings.HasPrefix(raw, tableKeyPrefix)) {
		return raw, true
	}
	return "", false
}

func (tbl *Table) encodePointer(target string) string {
	if tbl.legacyPointers {
		return target
	}
	return EncodePointer(target)
}

// load is the exact store lookup underlying all reads.
func (tbl *Table) load(ctx context.Context, key string) (string, bool, error) {
	raw, found, err := tbl.db.store.Get(ctx, key)
	if err != nil {
		return "", false, queryErrf(tbl.name, key, err, "store lookup failed")
	}
	if tbl.db.verbose {
		if found {
			tbl.db.logger.Debug("kvdoc: GET", "table", tbl.name, "key", key, "value", tbl.loggable(raw))
		} else {
			tbl.db.logger.Debug("kvdoc: GET.NOTFOUND", "table", tbl.name, "key", key)
		}
	}
	return raw, found, nil
}

func (tbl *Table) store(ctx context.Context, key, raw string) error {
	if err := tbl.db.store.Set(ctx, key, raw); err != nil {
		return queryErrf(tbl.name, key, err, "store write failed")
	}
	if tbl.db.verbose {
		tbl.db.logger.Debug("kvdoc: SET", "table", tbl.name, "key", key, "value", tbl.loggable(raw))
	}
	return nil
}

func (tbl *Table) remove(ctx context.Context, key string) error {
	if err := tbl.db.store.Delete(ctx, key); err != nil {
		return queryErrf(tbl.name, key, err, "store delete failed")
	}
	if tbl.db.verbose {
		tbl.db.logger.Debug("kvdoc: DELETE", "table", tbl.name, "key", key)
	}
	return nil
}

func (tbl *Table) loggable(raw string) string {
	if tbl.suppressContent {
		return "<suppressed>"
	}
	const maxLen = 200
	if len(raw) > maxLen {
		return raw[:maxLen] + "..."
	}
	return raw
}

func (tbl *Table) inFieldPartition(key string) bool {
	return strings.HasPrefix(key, fieldPartitionPrefix(tbl.name))
}

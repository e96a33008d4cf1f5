package kvdoc

import (
	"context"
	"errors"

	"github.com/samber/mo"
)

// Unpaginated is the Query.Limit that disables the skip offset.
const Unpaginated = -1

// Query addresses a prefix range of a table. An empty Field scans master
// records; otherwise the partition of that pointer field is scanned.
//
// Limit and Page only shape the number of leading scan hits that are skipped
// (Limit*Page); Limit never caps the number of results. Use Unpaginated to
// visit the whole range.
type Query struct {
	String string
	Field  string
	Limit  int
	Page   int
}

// All matches every master record of a table.
var All = Query{Limit: Unpaginated}

func (q Query) IsMaster() bool {
	return q.Field == ""
}

func (q Query) skip() int {
	if q.Limit == Unpaginated {
		return 0
	}
	return q.Limit * q.Page
}

func (tbl *Table) checkQuery(q Query) error {
	if q.Limit < Unpaginated {
		return queryErrf(tbl.name, q.String, nil, "invalid limit %d", q.Limit)
	}
	if q.Page < 0 {
		return queryErrf(tbl.name, q.String, nil, "invalid page %d", q.Page)
	}
	if !q.IsMaster() {
		if err := validateName("field", q.Field); err != nil {
			return queryErrf(tbl.name, q.String, err, "invalid field")
		}
		if _, ok := tbl.schema.(Root); ok && tbl.strict && !tbl.isPointerField(q.Field) {
			return queryErrf(tbl.name, q.String, nil, "%s is not a pointer field", q.Field)
		}
	}
	return nil
}

// Prefix returns the store key prefix a query scans.
func (tbl *Table) Prefix(q Query) string {
	return BuildKey(tbl.name, q.IsMaster(), q.Field, q.String)
}

// errStopScan ends a traversal early without reporting an error.
var errStopScan = errors.New("stop scan")

// traverse runs the scan state machine: open a cursor for the prefix (a nil
// cursor means the range is empty), then pull keys until exhaustion, invoking
// action for every key past the pagination offset. Hits are counted from 1.
// Master scans pass over the table's pointer partitions without counting
// them.
//
// Keys the action deletes are never revisited. Other mutations of the range
// while the scan is open have undefined effect on the keys visited.
func (tbl *Table) traverse(ctx context.Context, q Query, action func(key string) error) error {
	if err := tbl.checkQuery(q); err != nil {
		return err
	}
	prefix := tbl.Prefix(q)
	cur, err := tbl.db.store.Scan(ctx, prefix)
	if err != nil {
		return queryErrf(tbl.name, prefix, err, "scan failed")
	}
	if cur == nil {
		return nil
	}
	defer cur.Close()

	skip := q.skip()
	master := q.IsMaster()
	var i int
	for {
		key, ok, err := cur.Next(ctx)
		if err != nil {
			return queryErrf(tbl.name, prefix, err, "scan failed")
		}
		if !ok {
			return nil
		}
		if master && tbl.inFieldPartition(key) {
			continue
		}
		i++
		if i <= skip {
			continue
		}
		if err := action(key); err != nil {
			if err == errStopScan {
				return nil
			}
			return err
		}
	}
}

// Query returns the values in the addressed range, following pointers one
// hop. Per-item failures (a key that vanished mid-scan, a broken pointer, an
// undecodable payload) are reported in the item's Result; the returned error
// is reserved for invalid queries and store failures.
func (tbl *Table) Query(ctx context.Context, q Query) ([]mo.Result[any], error) {
	results := []mo.Result[any]{}
	err := tbl.traverse(ctx, q, func(key string) error {
		v, err := tbl.resolve(ctx, key)
		if isStoreFailure(err) {
			return err
		}
		if err != nil {
			results = append(results, mo.Err[any](err))
		} else {
			results = append(results, mo.Ok(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tbl.db.verbose {
		tbl.db.logger.Debug("kvdoc: QUERY", "table", tbl.name, "prefix", tbl.Prefix(q), "skip", q.skip(), "results", len(results))
	}
	return results, nil
}

// QueryAs is Query converting every value into T.
func QueryAs[T any](ctx context.Context, tbl *Table, q Query) ([]mo.Result[T], error) {
	items, err := tbl.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	results := make([]mo.Result[T], 0, len(items))
	for _, item := range items {
		v, err := item.Get()
		if err != nil {
			results = append(results, mo.Err[T](err))
			continue
		}
		results = append(results, mo.TupleToResult(As[T](v)))
	}
	return results, nil
}

// First returns the first value in the addressed range, or a *QueryError if
// the range is empty.
func (tbl *Table) First(ctx context.Context, q Query) (any, error) {
	var result any
	var found bool
	err := tbl.traverse(ctx, q, func(key string) error {
		v, err := tbl.resolve(ctx, key)
		if err != nil {
			return err
		}
		result, found = v, true
		return errStopScan
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, queryErrf(tbl.name, tbl.Prefix(q), nil, "no value found")
	}
	return result, nil
}

// Keys returns the store keys in the addressed range.
func (tbl *Table) Keys(ctx context.Context, q Query) ([]string, error) {
	var keys []string
	err := tbl.traverse(ctx, q, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// Count returns the number of keys in the addressed range without reading
// their values.
func (tbl *Table) Count(ctx context.Context, q Query) (int, error) {
	var n int
	err := tbl.traverse(ctx, q, func(key string) error {
		n++
		return nil
	})
	return n, err
}

// Delete removes the keys in the addressed range. Records that deleted
// pointers refer to are left in place.
func (tbl *Table) Delete(ctx context.Context, q Query) (int, error) {
	var n int
	err := tbl.traverse(ctx, q, func(key string) error {
		if err := tbl.remove(ctx, key); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// resolve reads the value at a scanned key, following a pointer one hop.
func (tbl *Table) resolve(ctx context.Context, key string) (any, error) {
	raw, found, err := tbl.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, queryErrf(tbl.name, key, nil, "key vanished during scan")
	}
	if target, ok := tbl.pointerTarget(raw); ok {
		return tbl.getTarget(ctx, key, target)
	}
	return tbl.decode(raw)
}

// isStoreFailure tells a failing store apart from bad data found in it.
func isStoreFailure(err error) bool {
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Err == nil {
		return false
	}
	var derr *DeserializeError
	return !errors.As(qerr.Err, &derr)
}

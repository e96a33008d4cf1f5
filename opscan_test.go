package kvdoc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestQueryPagination(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	events := db.MustAddTable("events", Int, TableOptions{Strict: true})
	for i := range 5 {
		isnoerr(t, events.WriteToKey(ctx, events.FieldKey("day", fmt.Sprintf("mon/%d", i)), i))
		isnoerr(t, events.WriteToKey(ctx, events.Key(fmt.Sprint(i)), i*10))
	}

	o := func(q Query, expected ...any) {
		t.Helper()
		items, err := events.Query(ctx, q)
		isnoerr(t, err)
		deepEqual(t, values(t, items), expected)
	}
	o(Query{Field: "day", String: "mon", Limit: 2, Page: 1}, int64(2), int64(3), int64(4))
	o(Query{Field: "day", String: "mon", Limit: 2, Page: 0}, int64(0), int64(1), int64(2), int64(3), int64(4))
	o(Query{Field: "day", String: "mon", Limit: 2, Page: 2}, int64(4))
	o(Query{Field: "day", String: "mon", Limit: 2, Page: 3})
	o(Query{Field: "day", String: "mon", Limit: Unpaginated, Page: 7}, int64(0), int64(1), int64(2), int64(3), int64(4))
	o(Query{Limit: 1, Page: 3}, int64(30), int64(40))

	deepEqual(t, must(events.Count(ctx, Query{Field: "day", Limit: 2, Page: 1})), 3)
	deepEqual(t, must(events.Count(ctx, Query{Limit: Unpaginated})), 5)
}

func TestQueryEmptyPrefix(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	tbl := db.MustAddTable("things", Any, TableOptions{})

	items, err := tbl.Query(ctx, Query{String: "nothing", Limit: Unpaginated})
	isnoerr(t, err)
	if items == nil {
		t.Errorf("** Query returned nil, wanted an empty slice")
	}
	isempty(t, items)
	deepEqual(t, must(tbl.Count(ctx, All)), 0)
	deepEqual(t, must(tbl.Delete(ctx, All)), 0)
}

func TestQueryInvalid(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})

	for _, q := range []Query{
		{Limit: -2},
		{Limit: 1, Page: -1},
		{Field: "name", Limit: Unpaginated},
		{Field: "a-b", Limit: Unpaginated},
	} {
		_, err := users.Query(ctx, q)
		isQueryError(t, err)
	}
}

func TestQueryFollowsPointers(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	tbl := db.MustAddTable("docs", Any, TableOptions{})

	isnoerr(t, tbl.WriteToKey(ctx, tbl.Key("b"), "X"))
	isnoerr(t, tbl.WritePointer(ctx, tbl.FieldKey("f", "1"), tbl.Key("b")))
	isnoerr(t, tbl.WritePointer(ctx, tbl.FieldKey("f", "2"), tbl.Key("missing")))
	isnoerr(t, db.Store().Set(ctx, tbl.FieldKey("f", "3"), "{garbage"))

	items := must(tbl.Query(ctx, Query{Field: "f", Limit: Unpaginated}))
	deepEqual(t, len(items), 3)
	deepEqual(t, items[0].MustGet(), any("X"))

	var qerr *QueryError
	if !errors.As(items[1].Error(), &qerr) {
		t.Errorf("** item 1 = %v, wanted *QueryError", items[1].Error())
	}
	var derr *DeserializeError
	if !errors.As(items[2].Error(), &derr) {
		t.Errorf("** item 2 = %v, wanted *DeserializeError", items[2].Error())
	}

	typed := must(QueryAs[string](ctx, tbl, Query{Field: "f", Limit: Unpaginated}))
	deepEqual(t, typed[0].MustGet(), "X")
	deepEqual(t, typed[1].IsError(), true)
}

func TestGetPointerKeyed(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	tbl := db.MustAddTable("docs", Any, TableOptions{})

	a, b := tbl.FieldKey("ref", "a"), tbl.Key("b")
	isnoerr(t, tbl.WritePointer(ctx, a, b))
	_, err := tbl.GetPointerKeyed(ctx, a)
	isQueryError(t, err)
	deepEqual(t, tbl.PointerExists(ctx, a), false)

	isnoerr(t, tbl.WriteToKey(ctx, b, map[string]any{"x": 1}))
	deepEqual(t, must(tbl.GetPointerKeyed(ctx, a)), any(map[string]any{"x": int64(1)}))
	deepEqual(t, tbl.PointerExists(ctx, a), true)

	// GetExact does not follow pointers
	deepEqual(t, must(tbl.GetExact(ctx, a)), any(b))

	// a plain string value is accepted as a pointer
	isnoerr(t, tbl.WriteToKey(ctx, tbl.Key("s"), b))
	deepEqual(t, must(tbl.GetPointerKeyed(ctx, tbl.Key("s"))), any(map[string]any{"x": int64(1)}))

	// but anything else is not
	_, err = tbl.GetPointerKeyed(ctx, b)
	isQueryError(t, err)
	_, err = tbl.GetPointerKeyed(ctx, tbl.Key("none"))
	isQueryError(t, err)

	// undecodable first value
	isnoerr(t, db.Store().Set(ctx, tbl.Key("junk"), "{garbage"))
	_, err = tbl.GetPointerKeyed(ctx, tbl.Key("junk"))
	isQueryError(t, err)
	var derr *DeserializeError
	if !errors.As(err, &derr) {
		t.Errorf("** err = %v, wanted it to wrap *DeserializeError", err)
	}

	// only one hop
	isnoerr(t, tbl.WritePointer(ctx, tbl.Key("c"), a))
	_, err = tbl.GetPointerKeyed(ctx, tbl.Key("c"))
	isQueryError(t, err)
}

func TestMasterScanSkipsPointers(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})
	for i := range 3 {
		isnoerr(t, users.Put(ctx, fmt.Sprint(i), map[string]any{"email": fmt.Sprintf("u%d@example.com", i), "name": "U", "tags": []any{}}))
	}
	deepEqual(t, must(users.Keys(ctx, All)), []string{"TBL:users-0", "TBL:users-1", "TBL:users-2"})
	deepEqual(t, must(users.Count(ctx, Query{Limit: 1, Page: 1})), 2)
}

func TestStringsContainingMarker(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	tbl := db.MustAddTable("notes", Str, TableOptions{Strict: true})

	isnoerr(t, tbl.WriteToKey(ctx, tbl.Key("1"), "see PTR docs"))
	deepEqual(t, must(tbl.GetExact(ctx, tbl.Key("1"))), any("see PTR docs"))
	deepEqual(t, values(t, must(tbl.Query(ctx, All))), []any{"see PTR docs"})
}

func TestLegacyPointers(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	tbl := db.MustAddTable("legacy", Any, TableOptions{LegacyPointers: true})

	isnoerr(t, tbl.WriteToKey(ctx, tbl.Key("b"), 42))
	isnoerr(t, tbl.WritePointer(ctx, tbl.FieldKey("f", "x"), tbl.Key("b")))
	raw, _, err := db.Store().Get(ctx, tbl.FieldKey("f", "x"))
	isnoerr(t, err)
	deepEqual(t, raw, "TBL:legacy-b")
	deepEqual(t, must(tbl.GetPointerKeyed(ctx, tbl.FieldKey("f", "x"))), any(int64(42)))
	deepEqual(t, values(t, must(tbl.Query(ctx, Query{Field: "f", Limit: Unpaginated}))), []any{int64(42)})
}

func TestDeleteDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})
	for i := range 4 {
		isnoerr(t, users.Put(ctx, fmt.Sprint(i), map[string]any{"email": fmt.Sprintf("u%d@example.com", i), "name": "U", "tags": []any{}}))
	}

	deepEqual(t, must(users.Delete(ctx, Query{Field: "email", Limit: 1, Page: 1})), 3)
	deepEqual(t, must(users.Count(ctx, Query{Field: "email", Limit: Unpaginated})), 1)
	deepEqual(t, must(users.Count(ctx, All)), 4)

	deepEqual(t, must(users.Delete(ctx, All)), 4)
	// the remaining pointer now dangles
	items := must(users.Query(ctx, Query{Field: "email", Limit: Unpaginated}))
	deepEqual(t, len(items), 1)
	isQueryError(t, items[0].Error())
}

func TestEncryptedTable(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	key := []byte("0123456789abcdef0123456789abcdef")
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true, EncryptionKey: key})
	u := map[string]any{"email": "a@example.com", "name": "A", "tags": []any{"t"}}
	isnoerr(t, users.Put(ctx, "1", u))

	raw, _, err := db.Store().Get(ctx, users.Key("1"))
	isnoerr(t, err)
	if _, err := JSON.Decode(raw); err == nil {
		t.Errorf("** stored value %q is readable without the key", raw)
	}
	deepEqual(t, must(users.Get(ctx, "1")), any(u))
	deepEqual(t, must(users.GetBy(ctx, "email", "a@example.com")), any(u))

	other := db.MustAddTable("users2", usersSchema, TableOptions{EncryptionKey: []byte("fedcba9876543210fedcba9876543210")})
	isnoerr(t, db.Store().Set(ctx, other.Key("1"), raw))
	if v, err := other.Get(ctx, "1"); err == nil && reflect.DeepEqual(v, any(u)) {
		t.Errorf("** decrypting with the wrong key returned the original value")
	}
}

func TestFirst(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	tbl := db.MustAddTable("nums", Int, TableOptions{Strict: true})
	for i := range 3 {
		isnoerr(t, tbl.WriteToKey(ctx, tbl.Key(fmt.Sprint(i)), i))
	}
	deepEqual(t, must(tbl.First(ctx, Query{Limit: 1, Page: 1})), any(int64(1)))
	_, err := tbl.First(ctx, Query{Limit: 1, Page: 3})
	isQueryError(t, err)
}

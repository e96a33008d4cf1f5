package kvdoc

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/samber/mo"
)

var usersSchema = map[string]any{
	"email": map[string]any{"type": "str", "pointer": true},
	"name":  map[string]any{"type": "str", "pointer": false},
	"age":   map[string]any{"type": "int?", "pointer": false},
	"tags":  map[string]any{"type": []any{"str"}, "pointer": false},
}

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func TestAddTable(t *testing.T) {
	db := setup(t)
	users := must(db.AddTable("users", usersSchema, TableOptions{Strict: true}))
	deepEqual(t, users.Kind(), KindRoot)
	deepEqual(t, users.PointerFields(), []string{"email"})
	deepEqual(t, db.TableNamed("users"), users)
	deepEqual(t, len(db.Tables()), 1)

	_, err := db.AddTable("users", Str, TableOptions{})
	if err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Errorf("** duplicate AddTable err = %v, wanted already defined", err)
	}

	for _, name := range []string{"", "a-b", "a:b"} {
		if _, err := db.AddTable(name, Str, TableOptions{}); err == nil {
			t.Errorf("** AddTable(%q) succeeded, wanted error", name)
		}
	}

	if _, err := db.AddTable("enc", Str, TableOptions{EncryptionKey: []byte("short")}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("** short key err = %v, wanted ErrInvalidKey", err)
	}
}

func TestAddTableMalformedSchema(t *testing.T) {
	db := setup(t)
	schema := map[string]any{
		"name":    map[string]any{"type": "str", "pointer": false},
		"address": map[string]any{"type": map[string]any{"city": "str"}, "pointer": true},
	}
	_, err := db.AddTable("people", schema, TableOptions{Strict: true})
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, wanted *SchemaError", err)
	}
	deepEqual(t, serr.Path, "address")

	// non-strict tables accept it
	_, err = db.AddTable("people2", schema, TableOptions{})
	isnoerr(t, err)

	_, err = db.AddTable("bad", map[string]any{"x": 42}, TableOptions{})
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, wanted *SchemaError", err)
	}
	deepEqual(t, serr.Path, "x")
}

func TestAddTableBadPointerFieldName(t *testing.T) {
	db := setup(t)
	_, err := db.AddTable("docs", Root{"a-b": {Pointer: true}}, TableOptions{})
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, wanted *SchemaError", err)
	}
	deepEqual(t, serr.Path, "a-b")
}

func TestMustAddTablePanics(t *testing.T) {
	db := setup(t)
	defer func() {
		if recover() == nil {
			t.Errorf("** MustAddTable did not panic")
		}
	}()
	db.MustAddTable("t", "nope", TableOptions{})
}

func TestPutGetRemove(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})

	u1 := map[string]any{"email": "foo@example.com", "name": "Foo", "age": int64(30), "tags": []any{"a"}}
	u2 := map[string]any{"email": "bar@example.com", "name": "Bar", "tags": []any{}}
	isnoerr(t, users.Put(ctx, "1", u1))
	isnoerr(t, users.Put(ctx, "2", u2))

	deepEqual(t, must(users.Get(ctx, "1")), any(u1))
	deepEqual(t, must(users.GetExact(ctx, "TBL:users-2")), any(u2))
	deepEqual(t, must(users.GetBy(ctx, "email", "bar@example.com")), any(u2))
	deepEqual(t, must(users.GetPointerKeyed(ctx, "TBL:users-PTR:email-foo@example.com/1")), any(u1))
	deepEqual(t, users.PointerExists(ctx, "TBL:users-PTR:email-foo@example.com/1"), true)
	deepEqual(t, must(users.Count(ctx, All)), 2)
	deepEqual(t, must(users.Count(ctx, Query{Field: "email", Limit: Unpaginated})), 2)

	_, err := users.GetBy(ctx, "email", "foo")
	isQueryError(t, err)

	// changing the pointer field moves the pointer
	u1["email"] = "foo2@example.com"
	isnoerr(t, users.Put(ctx, "1", u1))
	deepEqual(t, users.PointerExists(ctx, "TBL:users-PTR:email-foo@example.com/1"), false)
	deepEqual(t, must(users.GetBy(ctx, "email", "foo2@example.com")), any(u1))
	deepEqual(t, must(users.Count(ctx, Query{Field: "email", Limit: Unpaginated})), 2)

	deepEqual(t, must(users.Remove(ctx, "1")), true)
	deepEqual(t, must(users.Remove(ctx, "1")), false)
	_, err = users.Get(ctx, "1")
	isQueryError(t, err)
	deepEqual(t, must(users.Keys(ctx, Query{Field: "email", Limit: Unpaginated})), []string{"TBL:users-PTR:email-bar@example.com/2"})
}

func TestPointerValuesWithSeparators(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})
	user := func(email string) map[string]any {
		return map[string]any{"email": email, "name": "U", "tags": []any{}}
	}

	// a value is not matched by its prefix up to a separator
	isnoerr(t, users.Put(ctx, "1", user("a/b")))
	_, err := users.GetBy(ctx, "email", "a")
	isQueryError(t, err)
	deepEqual(t, must(users.GetBy(ctx, "email", "a/b")), any(user("a/b")))

	// value a/b with id c and value a with id b/c get distinct entries
	isnoerr(t, users.Put(ctx, "c", user("a/b")))
	isnoerr(t, users.Put(ctx, "b/c", user("a")))
	deepEqual(t, must(users.Count(ctx, Query{Field: "email", Limit: Unpaginated})), 3)
	deepEqual(t, must(users.GetBy(ctx, "email", "a")), any(user("a")))

	deepEqual(t, must(users.Remove(ctx, "b/c")), true)
	deepEqual(t, users.PointerExists(ctx, users.FieldKey("email", "a%2Fb/c")), true)
	deepEqual(t, users.PointerExists(ctx, users.FieldKey("email", "a%2Fb/1")), true)
	_, err = users.GetBy(ctx, "email", "a")
	isQueryError(t, err)

	// escaped-looking values stay distinct from escaped ones
	isnoerr(t, users.Put(ctx, "p", user("a%2Fb")))
	deepEqual(t, must(users.Count(ctx, Query{Field: "email", String: Exact("a/b"), Limit: Unpaginated})), 2)
	deepEqual(t, must(users.Count(ctx, Query{Field: "email", String: Exact("a%2Fb"), Limit: Unpaginated})), 1)
}

func TestPutValidation(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})

	err := users.Put(ctx, "1", map[string]any{"email": "x", "name": 42, "tags": []any{}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, wanted *ValidationError", err)
	}
	deepEqual(t, verr.Path, "name")
	deepEqual(t, db.Store().(*MemStore).Len(), 0)

	isQueryError(t, users.Put(ctx, "", map[string]any{}))
	isQueryError(t, users.Put(ctx, "PTR:x", map[string]any{}))
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})

	id := must(users.Insert(ctx, map[string]any{"email": "a@example.com", "name": "A", "tags": []any{"x", "y"}}))
	if len(id) != 36 {
		t.Errorf("** id = %q, wanted a UUID", id)
	}
	v := must(GetAs[struct {
		Email string   `json:"email"`
		Tags  []string `json:"tags"`
	}](ctx, users, users.Key(id)))
	deepEqual(t, v.Email, "a@example.com")
	deepEqual(t, v.Tags, []string{"x", "y"})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})
	isnoerr(t, users.Put(ctx, "1", map[string]any{"email": "a@example.com", "name": "A", "tags": []any{}}))

	isnoerr(t, users.Update(ctx, "1", map[string]any{"email": "b@example.com", "age": 5}))
	deepEqual(t, must(users.Get(ctx, "1")), any(map[string]any{"email": "b@example.com", "name": "A", "age": int64(5), "tags": []any{}}))
	deepEqual(t, must(users.Keys(ctx, Query{Field: "email", Limit: Unpaginated})), []string{"TBL:users-PTR:email-b@example.com/1"})

	var verr *ValidationError
	if err := users.Update(ctx, "1", map[string]any{"age": "old"}); !errors.As(err, &verr) {
		t.Errorf("** err = %v, wanted *ValidationError", err)
	}
	isQueryError(t, users.Update(ctx, "2", map[string]any{"age": 1}))
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	db := setup(t)
	users := db.MustAddTable("users", usersSchema, TableOptions{Strict: true})
	isnoerr(t, users.Put(ctx, "1", map[string]any{"email": "a@example.com", "name": "A", "tags": []any{}}))

	s := must(db.Dump(ctx, DumpAll))
	for _, want := range []string{
		"users (1 records)",
		"records = 1, pointers = 1",
		`users.1: TBL:users-1 = {"email":"a@example.com","name":"A","tags":[]}`,
		"users.ptr.email.1: TBL:users-PTR:email-a@example.com/1 => TBL:users-1",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("** dump lacks %q:\n%s", want, s)
		}
	}

	st := must(users.Stats(ctx))
	deepEqual(t, st.Records, 1)
	deepEqual(t, st.Pointers, 1)
	deepEqual(t, st.TotalSize(), st.DataSize+st.PointerSize)
}

func setup(t testing.TB) *DB {
	t.Helper()
	db := Open(NewMemStore(), Options{Verbose: true})
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func isnoerr(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func isQueryError(t testing.TB, err error) {
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Helper()
		t.Errorf("** got %v, wanted *QueryError", err)
	}
}

func values(t testing.TB, items []mo.Result[any]) []any {
	t.Helper()
	var out []any
	for i, item := range items {
		v, err := item.Get()
		if err != nil {
			t.Errorf("** item %d failed: %v", i, err)
		}
		out = append(out, v)
	}
	return out
}

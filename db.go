package kvdoc

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DB groups the tables kept in one store. Table names are unique per DB;
// every table owns its schema.
type DB struct {
	store   Store
	logger  *slog.Logger
	verbose bool

	mu           sync.Mutex
	tables       []*Table
	tablesByName map[string]*Table
}

type Options struct {
	Logger *slog.Logger

	// Verbose logs every store operation at debug level.
	Verbose bool
}

func Open(store Store, opt Options) *DB {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		store:        store,
		logger:       logger,
		verbose:      opt.Verbose,
		tablesByName: make(map[string]*Table),
	}
}

func (db *DB) Store() Store {
	return db.store
}

func (db *DB) Close() error {
	return db.store.Close()
}

func (db *DB) Tables() []*Table {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.tables)
}

func (db *DB) TableNamed(name string) *Table {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tablesByName[name]
}

type TableOptions struct {
	// Strict validates the schema when the table is added and every value
	// before it is written.
	Strict bool

	Encoding Encoding

	// EncryptionKey, if set, encrypts stored values with AES-256. It must be
	// KeySize bytes long and stay the same for the lifetime of the data.
	EncryptionKey []byte

	// LegacyPointers writes pointers as bare key strings, and treats stored
	// values that are bare keys or contain "PTR" as pointers, matching older
	// writers.
	LegacyPointers bool

	SuppressContentWhenLogging bool
}

// AddTable defines a table. The schema is either a Node or a raw definition
// accepted by ParseSchema. A schema that cannot be classified is always
// rejected; strict tables additionally reject schemas that fail
// ValidateSchema, so a malformed definition fails here rather than on first
// use.
func (db *DB) AddTable(name string, schema any, opt TableOptions) (*Table, error) {
	if err := validateName("table", name); err != nil {
		return nil, err
	}
	node, err := ParseSchema(schema)
	if err != nil {
		return nil, err
	}
	if opt.Strict {
		if err := ValidateSchema(node); err != nil {
			return nil, err
		}
	}
	if root, ok := node.(Root); ok {
		for _, f := range root.PointerFields() {
			if err := validateName("pointer field", f); err != nil {
				return nil, schemaErrf(f, describeNode(root[f].Type), "%v", err)
			}
		}
	}
	if opt.EncryptionKey != nil && len(opt.EncryptionKey) != KeySize {
		return nil, fmt.Errorf("table %s: %w", name, ErrInvalidKey)
	}

	tbl := &Table{
		db:              db,
		name:            name,
		schema:          node,
		kind:            node.Kind(),
		strict:          opt.Strict,
		enc:             opt.Encoding,
		encKey:          slices.Clone(opt.EncryptionKey),
		legacyPointers:  opt.LegacyPointers,
		suppressContent: opt.SuppressContentWhenLogging,
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tablesByName[name] != nil {
		return nil, fmt.Errorf("table %s is already defined", name)
	}
	db.tables = append(db.tables, tbl)
	db.tablesByName[name] = tbl

	if db.verbose {
		db.logger.Debug("kvdoc: table added", "table", name, "kind", tbl.kind, "strict", tbl.strict)
	}
	return tbl, nil
}

// MustAddTable is like AddTable but panics on error. Intended for tables
// defined at startup.
func (db *DB) MustAddTable(name string, schema any, opt TableOptions) *Table {
	return must(db.AddTable(name, schema, opt))
}

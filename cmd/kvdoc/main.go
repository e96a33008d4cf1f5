// Command kvdoc inspects and edits kvdoc tables described by a config file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"

	"github.com/andreyvit/kvdoc"
	"github.com/andreyvit/kvdoc/internal/config"
)

type queryArgs struct {
	Table  string `arg:"positional,required"`
	Prefix string `arg:"positional" help:"key prefix (query string)"`
	Field  string `arg:"-f,--field" help:"scan the pointer partition of this field"`
	Limit  int    `arg:"-l,--limit" default:"-1" help:"page size; -1 disables paging"`
	Page   int    `arg:"-p,--page" help:"number of pages to skip"`
}

func (a *queryArgs) query() kvdoc.Query {
	return kvdoc.Query{String: a.Prefix, Field: a.Field, Limit: a.Limit, Page: a.Page}
}

type getCmd struct {
	Table string `arg:"positional,required"`
	ID    string `arg:"positional,required" help:"record id, or field value with --by"`
	By    string `arg:"--by" help:"look the record up by this pointer field"`
}

type putCmd struct {
	Table string `arg:"positional,required"`
	ID    string `arg:"positional" help:"record id; a new UUID if omitted"`
	Value string `arg:"-v,--value" help:"JSON record; read from stdin if omitted"`
	Merge bool   `arg:"--merge" help:"update only the given fields of an existing record"`
}

type removeCmd struct {
	Table string `arg:"positional,required"`
	ID    string `arg:"positional,required"`
}

type dumpCmd struct {
	NoRecords  bool `arg:"--no-records"`
	NoPointers bool `arg:"--no-pointers"`
}

type statsCmd struct {
	Tables []string `arg:"positional"`
}

type args struct {
	Config  string `arg:"-c,--config,env:KVDOC_CONFIG" default:"kvdoc.yaml" help:"YAML or JSON config file"`
	Verbose bool   `arg:"-V,--verbose" help:"log every store operation"`

	Get    *getCmd    `arg:"subcommand:get" help:"print one record"`
	Query  *queryArgs `arg:"subcommand:query" help:"print the records in a key range"`
	Count  *queryArgs `arg:"subcommand:count" help:"count the keys in a key range"`
	Keys   *queryArgs `arg:"subcommand:keys" help:"list the keys in a key range"`
	Delete *queryArgs `arg:"subcommand:delete" help:"delete the keys in a key range"`
	Put    *putCmd    `arg:"subcommand:put" help:"write a record and its pointers"`
	Remove *removeCmd `arg:"subcommand:remove" help:"remove a record and its pointers"`
	Dump   *dumpCmd   `arg:"subcommand:dump" help:"print every table"`
	Stats  *statsCmd  `arg:"subcommand:stats" help:"print table sizes"`
}

func (args) Description() string {
	return "kvdoc stores schema-checked documents in a key-value store.\n"
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	level := slog.LevelInfo
	if a.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, &a, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("kvdoc failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *args, logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.LoadFromFile(a.Config)
	if err != nil {
		return err
	}
	config.LoadFromEnv(cfg)
	if a.Verbose {
		cfg.Verbose = true
	}

	db, err := cfg.Open(ctx, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	table := func(name string) (*kvdoc.Table, error) {
		tbl := db.TableNamed(name)
		if tbl == nil {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		return tbl, nil
	}

	switch {
	case a.Get != nil:
		tbl, err := table(a.Get.Table)
		if err != nil {
			return err
		}
		var v any
		if a.Get.By != "" {
			v, err = tbl.GetBy(ctx, a.Get.By, a.Get.ID)
		} else {
			v, err = tbl.Get(ctx, a.Get.ID)
		}
		if err != nil {
			return err
		}
		return printJSON(stdout, v)

	case a.Query != nil:
		tbl, err := table(a.Query.Table)
		if err != nil {
			return err
		}
		items, err := tbl.Query(ctx, a.Query.query())
		if err != nil {
			return err
		}
		for _, item := range items {
			v, err := item.Get()
			if err != nil {
				logger.Warn("skipping unreadable item", "table", tbl.Name(), "err", err)
				continue
			}
			if err := printJSON(stdout, v); err != nil {
				return err
			}
		}
		return nil

	case a.Count != nil:
		tbl, err := table(a.Count.Table)
		if err != nil {
			return err
		}
		n, err := tbl.Count(ctx, a.Count.query())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, n)
		return err

	case a.Keys != nil:
		tbl, err := table(a.Keys.Table)
		if err != nil {
			return err
		}
		keys, err := tbl.Keys(ctx, a.Keys.query())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(stdout, k)
		}
		return nil

	case a.Delete != nil:
		tbl, err := table(a.Delete.Table)
		if err != nil {
			return err
		}
		n, err := tbl.Delete(ctx, a.Delete.query())
		if err != nil {
			return err
		}
		logger.Info("deleted", "table", tbl.Name(), "keys", n)
		return nil

	case a.Put != nil:
		tbl, err := table(a.Put.Table)
		if err != nil {
			return err
		}
		return put(ctx, tbl, a.Put, stdin, stdout)

	case a.Remove != nil:
		tbl, err := table(a.Remove.Table)
		if err != nil {
			return err
		}
		found, err := tbl.Remove(ctx, a.Remove.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s/%s not found", tbl.Name(), a.Remove.ID)
		}
		return nil

	case a.Dump != nil:
		f := kvdoc.DumpAll
		if a.Dump.NoRecords {
			f &^= kvdoc.DumpRecords
		}
		if a.Dump.NoPointers {
			f &^= kvdoc.DumpPointers
		}
		s, err := db.Dump(ctx, f)
		io.WriteString(stdout, s)
		return err

	case a.Stats != nil:
		names := a.Stats.Tables
		if len(names) == 0 {
			for _, tbl := range db.Tables() {
				names = append(names, tbl.Name())
			}
		}
		for _, name := range names {
			tbl, err := table(name)
			if err != nil {
				return err
			}
			st, err := tbl.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s\trecords=%d\tpointers=%d\tbytes=%d\n", name, st.Records, st.Pointers, st.TotalSize())
		}
		return nil
	}
	return errors.New("missing subcommand")
}

func put(ctx context.Context, tbl *kvdoc.Table, c *putCmd, stdin io.Reader, stdout io.Writer) error {
	raw := []byte(c.Value)
	if c.Value == "" {
		var err error
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return err
		}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON value: %w", err)
	}

	if c.Merge {
		partial, ok := v.(map[string]any)
		if !ok || c.ID == "" {
			return errors.New("--merge needs an id and a JSON object")
		}
		return tbl.Update(ctx, c.ID, partial)
	}
	if c.ID == "" {
		id, err := tbl.Insert(ctx, v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, id)
		return err
	}
	return tbl.Put(ctx, c.ID, v)
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}

// Command varsctl reads and writes varstore documents, either directly in
// the local data directory or through a running varsd (--server).
//
// Examples:
//
//	varsctl set wf1 count 1
//	varsctl set wf1 user '{"name":"Alice"}' --execution=e1
//	varsctl get wf1 user.name --execution=e1
//	varsctl snapshot wf1 --format=yaml
//	varsctl exec batch.json --server=http://localhost:8090
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docopt/docopt-go"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/varstore/internal/client"
	"github.com/dreamware/varstore/internal/config"
	"github.com/dreamware/varstore/internal/document"
	"github.com/dreamware/varstore/internal/location"
	"github.com/dreamware/varstore/internal/logging"
	"github.com/dreamware/varstore/internal/operation"
	"github.com/dreamware/varstore/internal/storage"
	"github.com/dreamware/varstore/internal/vars"
)

const Version = "0.1.0"

const usage = `Scoped workflow variables.

Without --server the command works on the data directory from the
environment (VARS_DATA_DIR, VARS_CONFIG).

Usage:
    varsctl get <workflow> [<key>] [--execution=<id>] [options]
    varsctl set <workflow> <key> <value> [--execution=<id>] [options]
    varsctl delete <workflow> <key> [--execution=<id>] [options]
    varsctl snapshot <workflow> [--view=<view>] [options]
    varsctl exec [<file>] [options]
    varsctl -h | --help
    varsctl --version

Options:
    -h --help              Show this screen.
    --version              Show version.
    --execution=<id>       Use the execution scope document of <id>.
    --view=<view>          all, workflow or execution [default: all].
    --server=<url>         varsd base URL, e.g. http://localhost:8090.
    --format=<format>      json or yaml [default: json].
    --timeout=<timeout>    Request timeout with units: ms, s, m [default: 5s].`

// errNotFound is reported by get when the key path does not resolve.
var errNotFound = errors.New("key not found")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "varsctl:", err)
		os.Exit(1)
	}
}

// backend is the subset of operations varsctl needs, served either by a
// local vars.Service or a remote varsd.
type backend interface {
	Get(ctx context.Context, ref vars.Ref, key string) (document.Lookup, error)
	Set(ctx context.Context, ref vars.Ref, key, text string) (document.Map, error)
	Delete(ctx context.Context, ref vars.Ref, key string) (document.Map, error)
	Snapshot(ctx context.Context, workflowID string, view vars.View) (vars.Snapshot, error)
	Execute(ctx context.Context, batch operation.Batch) ([]operation.Result, error)
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	opts, err := parser.ParseArgs(usage, args, Version)
	if err != nil {
		return err
	}
	if len(opts) == 0 {
		// help or version was printed
		return nil
	}

	format := str(opts, "--format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q", format)
	}

	timeout, err := time.ParseDuration(str(opts, "--timeout"))
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b, closer, err := openBackend(str(opts, "--server"), timeout)
	if err != nil {
		return err
	}
	defer closer.Close()

	workflowID := str(opts, "<workflow>")
	ref := vars.WorkflowRef(workflowID)
	if ex := str(opts, "--execution"); ex != "" {
		ref = vars.ExecutionRef(workflowID, ex)
	}

	switch {
	case flag(opts, "get"):
		lookup, err := b.Get(ctx, ref, str(opts, "<key>"))
		if err != nil {
			return err
		}
		if !lookup.Found {
			return errNotFound
		}
		return write(stdout, format, lookup.Value)

	case flag(opts, "set"):
		doc, err := b.Set(ctx, ref, str(opts, "<key>"), str(opts, "<value>"))
		if err != nil {
			return err
		}
		return write(stdout, format, doc)

	case flag(opts, "delete"):
		doc, err := b.Delete(ctx, ref, str(opts, "<key>"))
		if err != nil {
			return err
		}
		return write(stdout, format, doc)

	case flag(opts, "snapshot"):
		view, err := vars.ParseView(str(opts, "--view"))
		if err != nil {
			return err
		}
		snap, err := b.Snapshot(ctx, workflowID, view)
		if err != nil {
			return err
		}
		if format == "yaml" {
			return writeYAML(stdout, snap.Plain())
		}
		return writeJSON(stdout, snap)

	case flag(opts, "exec"):
		batch, err := readBatch(str(opts, "<file>"), stdin)
		if err != nil {
			return err
		}
		results, runErr := b.Execute(ctx, batch)
		if err := writeResults(stdout, format, results); err != nil {
			return err
		}
		return runErr
	}
	return nil
}

// openBackend talks to server when set, otherwise to the local data
// directory resolved from the environment. timeout bounds each request to
// server.
func openBackend(server string, timeout time.Duration) (backend, io.Closer, error) {
	if server != "" {
		c := client.New(server)
		c.SetTimeout(timeout)
		return remote{c}, nopCloser{}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	resolver := location.NewResolver(cfg.DataDir, logger)
	var store storage.Store
	if cfg.Store == config.StoreMemory {
		store = storage.NewMemoryStore()
		resolver.SetCreateDirs(false)
	} else {
		store = storage.NewFileStore(logger)
	}
	svc := vars.New(resolver, store, logger)
	return local{svc: svc, runner: operation.NewRunner(svc, logger)}, closer, nil
}

// local adapts vars.Service to backend. The context is unused since every
// call is a local file operation.
type local struct {
	svc    *vars.Service
	runner *operation.Runner
}

func (l local) Get(_ context.Context, ref vars.Ref, key string) (document.Lookup, error) {
	return l.svc.Get(ref, key)
}

func (l local) Set(_ context.Context, ref vars.Ref, key, text string) (document.Map, error) {
	if key == "" {
		return nil, operation.ErrKeyRequired
	}
	value, err := operation.ParseValue(text)
	if err != nil {
		return nil, err
	}
	return l.svc.Set(ref, key, value)
}

func (l local) Delete(_ context.Context, ref vars.Ref, key string) (document.Map, error) {
	if key == "" {
		return nil, operation.ErrKeyRequired
	}
	return l.svc.Delete(ref, key)
}

func (l local) Snapshot(_ context.Context, workflowID string, view vars.View) (vars.Snapshot, error) {
	return l.svc.Snapshot(workflowID, view)
}

func (l local) Execute(_ context.Context, batch operation.Batch) ([]operation.Result, error) {
	return l.runner.Run(batch)
}

type remote struct {
	*client.Client
}

func readBatch(path string, stdin io.Reader) (operation.Batch, error) {
	in := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return operation.Batch{}, err
		}
		defer f.Close()
		in = f
	}

	dec := json.NewDecoder(in)
	dec.UseNumber()

	var batch operation.Batch
	if err := dec.Decode(&batch); err != nil {
		return operation.Batch{}, fmt.Errorf("read batch: %w", err)
	}
	return batch, nil
}

func write(w io.Writer, format string, v document.Value) error {
	if format == "yaml" {
		return writeYAML(w, document.Plain(v))
	}
	return writeJSON(w, v)
}

func writeResults(w io.Writer, format string, results []operation.Result) error {
	if format != "yaml" {
		return writeJSON(w, results)
	}
	plain := make([]map[string]any, 0, len(results))
	for _, r := range results {
		m := map[string]any{"item": r.Item}
		if r.Error != "" {
			m["error"] = r.Error
		} else {
			m["operation"] = string(r.Operation)
			m["scope"] = string(r.Scope)
			m["key"] = r.Key
			m["result"] = document.Plain(r.Result)
			m["file_path"] = r.FilePath
		}
		plain = append(plain, m)
	}
	return writeYAML(w, plain)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func str(opts docopt.Opts, name string) string {
	s, _ := opts[name].(string)
	return s
}

func flag(opts docopt.Opts, name string) bool {
	b, _ := opts[name].(bool)
	return b
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package goemitter renders a ServiceModel into Go client packages that call
// the swagger2client gateway.
package goemitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/swagger2client/internal/spec"
	"github.com/mark3labs/swagger2client/internal/typemap"
)

// GatewayImport is the import path of the runtime every emitted package uses.
const GatewayImport = "github.com/mark3labs/swagger2client/gateway"

// Options controls how the Go emitter renders a project.
type Options struct {
	OutDir string // required by Emit; target directory of the generated packages
	// ImportPath is the Go import path of OutDir, e.g. "example.com/petstore".
	ImportPath string
	// Dispatch renders callables that return gateway thunks.
	Dispatch bool
	Force    bool // overwrite a non-empty OutDir
	DryRun   bool // don't write, only plan
	Logger   *slog.Logger
}

// File is one rendered output file.
type File struct {
	// Path is slash separated and relative to OutDir.
	Path    string
	Content []byte
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result lists the planned files and the rendered groups.
type Result struct {
	Packages []string
	Planned  []PlannedFile
}

// ErrNoImportPath is returned when Options.ImportPath is empty.
var ErrNoImportPath = errors.New("goemitter: ImportPath is required")

// Render renders sm into files sorted by path. It performs no I/O, and
// rendering the same model twice yields identical files.
func Render(ctx context.Context, sm *spec.ServiceModel, opts Options) ([]File, error) {
	if sm == nil {
		return nil, fmt.Errorf("goemitter: nil ServiceModel")
	}
	importPath := strings.TrimSuffix(strings.TrimSpace(opts.ImportPath), "/")
	if importPath == "" {
		return nil, ErrNoImportPath
	}
	tm, err := typemap.MapModel(sm)
	if err != nil {
		return nil, err
	}
	r := newRenderer(sm, tm, importPath, opts.Dispatch)
	groups, err := r.groups()
	if err != nil {
		return nil, err
	}

	type job struct {
		path string
		tmpl string
		data any
	}
	jobs := []job{
		{path: "client/client.go", tmpl: "client.go.tmpl", data: r.clientView()},
		{path: "models/models.go", tmpl: "models.go.tmpl", data: r.modelsView()},
		{path: "README.md", tmpl: "readme.md.tmpl", data: r.readmeView(groups)},
	}
	for _, g := range groups {
		jobs = append(jobs, job{path: path.Join(g.Package, g.Package+".go"), tmpl: "group.go.tmpl", data: g})
	}

	files := make([]File, len(jobs))
	eg, ectx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			content, err := executeTemplate(j.path, j.tmpl, j.data)
			if err != nil {
				return fmt.Errorf("render %s: %w", j.path, err)
			}
			files[i] = File{Path: j.path, Content: content}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	logger(opts).Debug("rendered client", "files", len(files), "groups", len(groups), "dispatch", opts.Dispatch)
	return files, nil
}

// Emit renders sm and writes the files below opts.OutDir.
func Emit(ctx context.Context, sm *spec.ServiceModel, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("goemitter: OutDir is required")
	}
	files, err := Render(ctx, sm, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, f := range files {
		res.Planned = append(res.Planned, PlannedFile{RelPath: f.Path, Size: len(f.Content), Mode: 0o644})
		if dir := path.Dir(f.Path); dir != "." && dir != "client" && dir != "models" {
			res.Packages = append(res.Packages, dir)
		}
	}

	if !opts.DryRun {
		if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, err
		}
		logger(opts).Info("wrote client", "dir", opts.OutDir, "files", len(files))
	}
	return res, nil
}

func logger(opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func writeFiles(outDir string, files []File, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return fmt.Errorf("goemitter: output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for _, f := range files {
		p := filepath.Join(abs, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// temp file + rename
		tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp %s: %w", f.Path, err)
		}
		if _, err := tmp.Write(f.Content); err != nil {
			tmp.Close()
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write temp %s: %w", f.Path, err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("close temp %s: %w", f.Path, err)
		}
		if err := os.Chmod(tmp.Name(), 0o644); err != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("chmod %s: %w", f.Path, err)
		}
		if err := os.Rename(tmp.Name(), p); err != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("rename %s: %w", f.Path, err)
		}
	}
	return nil
}

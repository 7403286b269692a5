// Package combine orchestrates a full combination run: wipe the store,
// discover modlets under the source tree, normalize and record their XML
// fragments and localization rows, assemble the combined modlet, then run
// the integrity checks. One Runner owns the store and logger for the whole
// run; a file that fails to parse is reported and skipped, it never aborts
// the run.
package combine

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/modlet-tools/combiner/core/assemble"
	"github.com/modlet-tools/combiner/core/errors"
	"github.com/modlet-tools/combiner/core/integrity"
	"github.com/modlet-tools/combiner/core/localization"
	"github.com/modlet-tools/combiner/core/modlet"
	"github.com/modlet-tools/combiner/core/store"
	"github.com/modlet-tools/combiner/core/xmlfrag"
)

// DefaultSkipDirs are never descended into during discovery. The output
// directory is in the set so a re-run does not ingest its own output.
var DefaultSkipDirs = []string{".git", "__pycache__", assemble.OutputDirName}

// Default descriptor values for the combined modlet when no flags are
// given.
const (
	DefaultName        = "Combined Modlet"
	DefaultAuthor      = "Modlet Combiner"
	DefaultDescription = "A combined modlet"
	DefaultVersion     = "1.0.0"
)

// Options configures one combination run.
type Options struct {
	SourcePath  string
	Name        string
	Author      string
	Description string
	Version     string
	Website     string

	// SkipDirs are skipped in addition to DefaultSkipDirs.
	SkipDirs []string

	// DryRun discovers and records but writes no output files.
	DryRun bool
	// KeepDB skips the store wipe, accumulating onto previous runs.
	KeepDB bool
}

// Descriptor builds the combined modlet's descriptor from the options,
// falling back to defaults for unset fields.
func (o Options) Descriptor() modlet.Descriptor {
	d := modlet.Descriptor{
		Name:        o.Name,
		Author:      o.Author,
		Description: o.Description,
		Version:     o.Version,
		Website:     o.Website,
	}
	if d.Name == "" {
		d.Name = DefaultName
	}
	if d.Author == "" {
		d.Author = DefaultAuthor
	}
	if d.Description == "" {
		d.Description = DefaultDescription
	}
	if d.Version == "" {
		d.Version = DefaultVersion
	}
	return d
}

// Result summarizes a finished run.
type Result struct {
	Combined          modlet.Descriptor
	Modlets           []modlet.Descriptor
	XMLFiles          int
	LocalizationFiles int
	Blocks            int
	Rows              int
	// Problems are per-file failures that were skipped.
	Problems    []error
	Reports     []assemble.FileReport
	IntegrityOK bool
	OutputDir   string
}

// Runner executes combination runs against one store.
type Runner struct {
	st  *store.Store
	log *slog.Logger

	// Out receives the statistics tables. Defaults to stdout.
	Out io.Writer
}

func NewRunner(st *store.Store, log *slog.Logger) *Runner {
	return &Runner{st: st, log: log, Out: os.Stdout}
}

// Run executes one combination run.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	log := r.log.With("run_id", uuid.NewString())
	res := &Result{Combined: opts.Descriptor()}

	if !opts.KeepDB {
		if err := r.st.Wipe(); err != nil {
			return nil, err
		}
	}

	skip := make(map[string]bool)
	for _, d := range DefaultSkipDirs {
		skip[d] = true
	}
	for _, d := range opts.SkipDirs {
		if d != "" {
			skip[d] = true
		}
	}

	if err := r.discover(ctx, opts.SourcePath, skip, log, res); err != nil {
		return nil, err
	}
	log.Info("discovery finished",
		"modlets", len(res.Modlets),
		"xml_files", res.XMLFiles,
		"localization_files", res.LocalizationFiles,
		"problems", len(res.Problems))

	if opts.DryRun {
		log.Info("dry run, skipping output", "source", opts.SourcePath)
		return res, nil
	}

	asm := assemble.New(opts.SourcePath, log)
	res.OutputDir = asm.Dir()
	if err := asm.Reset(); err != nil {
		return res, err
	}
	if err := asm.WriteModInfo(res.Combined); err != nil {
		return res, err
	}

	rows, err := r.st.Rows()
	if err != nil {
		return res, err
	}
	res.Rows = len(rows)
	if err := asm.WriteLocalization(rows); err != nil {
		return res, err
	}

	blocks, err := r.st.Blocks()
	if err != nil {
		return res, err
	}
	res.Blocks = len(blocks)
	res.Reports, err = asm.WriteConfigFiles(blocks)
	if err != nil {
		return res, err
	}

	rep := integrity.New(log)
	rep.Out = r.Out
	res.IntegrityOK = rep.Check(res.Reports)
	components, err := r.st.Modlets()
	if err != nil {
		return res, err
	}
	rep.PrintStats(res.Combined, components, res.Reports, res.OutputDir)

	log.Info("combination finished",
		"output", res.OutputDir,
		"blocks", res.Blocks,
		"rows", res.Rows,
		"integrity_ok", res.IntegrityOK)
	return res, nil
}

// discover walks the source tree, recording every modlet it finds. A
// directory holding a ModInfo.xml is a modlet root; everything under it is
// that modlet's content.
func (r *Runner) discover(ctx context.Context, sourcePath string, skip map[string]bool, log *slog.Logger, res *Result) error {
	return filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.NewIO("walk", path, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if path != sourcePath && skip[d.Name()] {
			return fs.SkipDir
		}
		descriptorPath := filepath.Join(path, modlet.DescriptorFile)
		if _, err := os.Stat(descriptorPath); err != nil {
			return nil
		}
		r.ingestModlet(path, descriptorPath, skip, log, res)
		return nil
	})
}

// ingestModlet parses one modlet's descriptor and records its XML and
// localization files. Failures are appended to res.Problems.
func (r *Runner) ingestModlet(root, descriptorPath string, skip map[string]bool, log *slog.Logger, res *Result) {
	data, err := os.ReadFile(descriptorPath)
	if err != nil {
		res.Problems = append(res.Problems, errors.NewIO("read", descriptorPath, err))
		return
	}
	desc, err := modlet.ParseDescriptor(data)
	if err != nil {
		log.Warn("skipping modlet with unreadable descriptor", "path", descriptorPath, "err", err)
		res.Problems = append(res.Problems, err)
		return
	}
	id, err := r.st.PutModlet(desc)
	if err != nil {
		res.Problems = append(res.Problems, err)
		return
	}
	res.Modlets = append(res.Modlets, desc)
	log.Info("found modlet", "name", desc.Name, "version", desc.Version, "path", root)

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Problems = append(res.Problems, errors.NewIO("walk", path, err))
			return nil
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		switch {
		case strings.EqualFold(name, localization.TableFile):
			res.LocalizationFiles++
			r.ingestLocalization(path, shortPath(root, path), desc.Name, id, res)
		case strings.HasSuffix(name, ".xml") && !strings.EqualFold(name, modlet.DescriptorFile):
			res.XMLFiles++
			r.ingestXML(path, shortPath(root, path), desc.Name, id, log, res)
		}
		return nil
	})
}

// shortPath is the cross-modlet join key for a source file: its path
// relative to the modlet's config root. Files of every modlet that resolve
// to the same short path are combined into one output file.
func shortPath(modletRoot, path string) string {
	rel, err := filepath.Rel(modletRoot, path)
	if err != nil {
		return filepath.Base(path)
	}
	return strings.TrimPrefix(filepath.ToSlash(rel), "Config/")
}

// ingestXML normalizes one source XML file and records each child of its
// root as a separate content block.
func (r *Runner) ingestXML(path, shortPath, modletName, modletID string, log *slog.Logger, res *Result) {
	doc, err := xmlfrag.NormalizeFile(path)
	if err != nil {
		log.Warn("skipping unparseable XML file", "path", path, "err", err)
		res.Problems = append(res.Problems, err)
		return
	}
	for _, frag := range doc.Fragments {
		if err := r.st.PutBlock(store.ContentBlock{
			ModletName: modletName,
			ModletID:   modletID,
			FullPath:   path,
			ShortPath:  shortPath,
			Tag:        doc.RootTag,
			Content:    frag.XML,
		}); err != nil {
			res.Problems = append(res.Problems, err)
			return
		}
	}
	log.Debug("recorded XML file", "path", path, "blocks", len(doc.Fragments), "root_tag", doc.RootTag)
}

// ingestLocalization parses one localization table and records its rows.
// Malformed rows are reported individually; valid rows around them are
// still recorded.
func (r *Runner) ingestLocalization(path, shortPath, modletName, modletID string, res *Result) {
	content, err := xmlfrag.ReadFile(path)
	if err != nil {
		res.Problems = append(res.Problems, err)
		return
	}
	rows, problems := localization.Parse(content, modletName, modletID, path, shortPath)
	res.Problems = append(res.Problems, problems...)
	for _, row := range rows {
		if err := r.st.PutRow(row); err != nil {
			res.Problems = append(res.Problems, err)
			return
		}
	}
}

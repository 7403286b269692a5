// Package integrity runs the post-assembly checks on the combined modlet:
// every written XML file must re-parse, per-file block counts must match
// what the store recorded, and total written bytes must stay within a
// tolerance of the recorded content size. Failures are advisory: they are
// reported, never rolled back.
package integrity

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/modlet-tools/combiner/core/assemble"
	"github.com/modlet-tools/combiner/core/modlet"
	"github.com/modlet-tools/combiner/core/xmlfrag"
)

// DefaultTolerance is the allowed relative difference between recorded and
// written byte totals. Wrapper markup (the <config> root, block markers,
// indentation) accounts for the slack.
const DefaultTolerance = 0.05

// Reporter checks written output against store records and prints the run
// statistics tables.
type Reporter struct {
	Tolerance float64
	Out       io.Writer
	Log       *slog.Logger
}

func New(log *slog.Logger) *Reporter {
	return &Reporter{Tolerance: DefaultTolerance, Out: os.Stdout, Log: log}
}

// Check verifies every written config file: it must re-parse, its block
// count must match the store's, and its size must stay within tolerance of
// the recorded content bytes. Returns true only when every file passes.
func (r *Reporter) Check(reports []assemble.FileReport) bool {
	ok := true
	for _, rep := range reports {
		data, err := os.ReadFile(rep.Path)
		if err != nil {
			r.Log.Warn("integrity: cannot read written file", "path", rep.Path, "err", err)
			ok = false
			continue
		}
		if err := xmlfrag.Valid(data); err != nil {
			r.Log.Warn("integrity: written file does not re-parse", "path", rep.Path, "err", err)
			ok = false
		}
		if rep.WrittenBlocks != rep.RecordedBlocks {
			r.Log.Warn("integrity: block count mismatch",
				"path", rep.Path, "recorded", rep.RecordedBlocks, "written", rep.WrittenBlocks)
			ok = false
		}
		if rep.RecordedBytes > 0 {
			diff := rep.WrittenBytes - rep.RecordedBytes
			if diff < 0 {
				diff = -diff
			}
			ratio := float64(diff) / float64(rep.RecordedBytes)
			if ratio > r.Tolerance {
				r.Log.Warn("integrity: size outside tolerance",
					"path", rep.Path,
					"recorded", humanize.Bytes(uint64(rep.RecordedBytes)),
					"written", humanize.Bytes(uint64(rep.WrittenBytes)),
					"difference", fmt.Sprintf("%.2f%%", ratio*100),
					"tolerance", fmt.Sprintf("%.0f%%", r.Tolerance*100))
				ok = false
			}
		}
	}
	return ok
}

// PrintStats writes the run statistics tables: the combined modlet's
// descriptor, its component modlets, per-file block and size figures, and
// the sizes of every file written under the output directory.
func (r *Reporter) PrintStats(combined modlet.Descriptor, components []modlet.Descriptor, reports []assemble.FileReport, outputDir string) {
	fmt.Fprintln(r.Out, "\nCombined Modlet Information:")
	w := tabwriter.NewWriter(r.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Attribute\tValue")
	fmt.Fprintf(w, "Name\t%s\n", combined.Name)
	fmt.Fprintf(w, "Version\t%s\n", combined.Version)
	fmt.Fprintf(w, "Author\t%s\n", combined.Author)
	fmt.Fprintf(w, "Description\t%s\n", combined.Description)
	w.Flush()

	fmt.Fprintln(r.Out, "\nComponent Modlets:")
	w = tabwriter.NewWriter(r.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Name\tVersion\tAuthor")
	for _, c := range components {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Version, c.Author)
	}
	w.Flush()

	fmt.Fprintln(r.Out, "\nCombined Modlet Statistics:")
	w = tabwriter.NewWriter(r.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "File\tRecorded Blocks\tWritten Blocks\tRecorded Size\tWritten Size\tDifference")
	for _, rep := range reports {
		diff := rep.WrittenBytes - rep.RecordedBytes
		pct := 0.0
		if rep.RecordedBytes > 0 {
			pct = float64(diff) / float64(rep.RecordedBytes) * 100
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%+d (%.2f%%)\n",
			rep.ShortPath, rep.RecordedBlocks, rep.WrittenBlocks,
			humanize.Comma(rep.RecordedBytes), humanize.Comma(rep.WrittenBytes), diff, pct)
	}
	w.Flush()

	fmt.Fprintln(r.Out, "\nDestination File Sizes:")
	w = tabwriter.NewWriter(r.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "File\tSize")
	filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fmt.Fprintf(w, "%s\t%s\n", d.Name(), humanize.Bytes(uint64(info.Size())))
		return nil
	})
	w.Flush()
}

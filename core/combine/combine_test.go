package combine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modlet-tools/combiner/core/assemble"
	"github.com/modlet-tools/combiner/core/codec"
	"github.com/modlet-tools/combiner/core/localization"
	"github.com/modlet-tools/combiner/core/store"
	"github.com/modlet-tools/combiner/core/xmlfrag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "combiner.db"), codec.Base64{}, testLogger())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	r := NewRunner(st, testLogger())
	r.Out = io.Discard
	return r
}

func writeModlet(t *testing.T, dir, name, version, lootXML, locRow string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "Config"), 0o755); err != nil {
		t.Fatalf("creating modlet dir: %v", err)
	}
	modInfo := `<?xml version="1.0" encoding="UTF-8" ?>
<xml>
	<Name value="` + name + `"/>
	<Description value="test modlet"/>
	<Author value="tester"/>
	<Version value="` + version + `"/>
</xml>`
	if err := os.WriteFile(filepath.Join(dir, "ModInfo.xml"), []byte(modInfo), 0o644); err != nil {
		t.Fatalf("writing ModInfo.xml: %v", err)
	}
	if lootXML != "" {
		if err := os.WriteFile(filepath.Join(dir, "Config", "loot.xml"), []byte(lootXML), 0o644); err != nil {
			t.Fatalf("writing loot.xml: %v", err)
		}
	}
	if locRow != "" {
		content := localization.Header() + "\n" + locRow + "\n"
		if err := os.WriteFile(filepath.Join(dir, "Config", "Localization.txt"), []byte(content), 0o644); err != nil {
			t.Fatalf("writing Localization.txt: %v", err)
		}
	}
}

// locRow builds a minimal valid 20-column data row.
func locRow(key, english string) string {
	fields := make([]string, localization.MinColumns)
	fields[0] = key
	fields[5] = english
	return strings.Join(fields, ",")
}

// writeSourceTree builds the two-modlet scenario: Alpha contributes two
// loot blocks and one localization row, Beta one block and one row under
// the same key.
func writeSourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeModlet(t, filepath.Join(src, "Alpha"), "Alpha", "1.0",
		`<configs>
	<lootgroup name="one"><item name="glass"/></lootgroup>
	<lootgroup name="two"/>
</configs>`,
		locRow("greeting", "Hello"))
	writeModlet(t, filepath.Join(src, "Beta"), "Beta", "1.0",
		`<configs>
	<lootgroup name="three"/>
</configs>`,
		locRow("greeting", "Bonjour"))
	return src
}

func TestRunCombinesTwoModlets(t *testing.T) {
	r := newTestRunner(t)
	src := writeSourceTree(t)

	res, err := r.Run(context.Background(), Options{SourcePath: src})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Problems) != 0 {
		t.Errorf("Run() problems = %v, want none", res.Problems)
	}
	if len(res.Modlets) != 2 {
		t.Fatalf("found %d modlets, want 2", len(res.Modlets))
	}
	if res.Blocks != 3 {
		t.Errorf("recorded %d blocks, want 3", res.Blocks)
	}
	if res.Rows != 2 {
		t.Errorf("retained %d rows, want 2 (same key across modlets is kept)", res.Rows)
	}
	data, err := os.ReadFile(filepath.Join(res.OutputDir, "Config", "loot.xml"))
	if err != nil {
		t.Fatalf("reading combined loot.xml: %v", err)
	}
	got := string(data)
	alpha := strings.Index(got, "<!-- Start XML_Block: Alpha -->")
	beta := strings.Index(got, "<!-- Start XML_Block: Beta -->")
	if alpha < 0 || beta < 0 || alpha > beta {
		t.Errorf("blocks missing or not in Alpha-then-Beta order:\n%s", got)
	}
	if strings.Count(got, "<!-- Start XML_Block:") != 3 {
		t.Errorf("combined loot.xml has %d blocks, want 3:\n%s",
			strings.Count(got, "<!-- Start XML_Block:"), got)
	}

	loc, err := os.ReadFile(filepath.Join(res.OutputDir, "Config", localization.TableFile))
	if err != nil {
		t.Fatalf("reading combined localization: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(loc), "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("combined table has %d lines, want header + 2 rows", len(lines))
	}

	if _, err := os.Stat(filepath.Join(res.OutputDir, "ModInfo.xml")); err != nil {
		t.Errorf("combined descriptor missing: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	r := newTestRunner(t)
	src := writeSourceTree(t)

	first, err := r.Run(context.Background(), Options{SourcePath: src})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	firstLoot, err := os.ReadFile(filepath.Join(first.OutputDir, "Config", "loot.xml"))
	if err != nil {
		t.Fatalf("reading first output: %v", err)
	}

	// The second run must skip Combined_Modlet during discovery and
	// produce identical output from the wiped store.
	second, err := r.Run(context.Background(), Options{SourcePath: src})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(second.Modlets) != 2 || second.Blocks != 3 || second.Rows != 2 {
		t.Errorf("second run saw %d modlets, %d blocks, %d rows; want 2, 3, 2",
			len(second.Modlets), second.Blocks, second.Rows)
	}
	secondLoot, err := os.ReadFile(filepath.Join(second.OutputDir, "Config", "loot.xml"))
	if err != nil {
		t.Fatalf("reading second output: %v", err)
	}
	if string(firstLoot) != string(secondLoot) {
		t.Errorf("re-run changed output:\nfirst:\n%s\nsecond:\n%s", firstLoot, secondLoot)
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	r := newTestRunner(t)
	src := writeSourceTree(t)

	res, err := r.Run(context.Background(), Options{SourcePath: src, DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Modlets) != 2 {
		t.Errorf("dry run found %d modlets, want 2", len(res.Modlets))
	}
	if _, err := os.Stat(filepath.Join(src, assemble.OutputDirName)); !os.IsNotExist(err) {
		t.Errorf("dry run created output directory")
	}
}

func TestRunSkipsConfiguredDirs(t *testing.T) {
	r := newTestRunner(t)
	src := t.TempDir()
	writeModlet(t, filepath.Join(src, "Alpha"), "Alpha", "1.0",
		"<configs><lootgroup name=\"one\"/></configs>", "")
	writeModlet(t, filepath.Join(src, "backup", "Old"), "Old", "0.1",
		"<configs><lootgroup name=\"stale\"/></configs>", "")

	res, err := r.Run(context.Background(), Options{SourcePath: src, SkipDirs: []string{"backup"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Modlets) != 1 || res.Modlets[0].Name != "Alpha" {
		t.Errorf("modlets = %+v, want only Alpha", res.Modlets)
	}
}

func TestRunIsolatesBadFiles(t *testing.T) {
	r := newTestRunner(t)
	src := t.TempDir()
	writeModlet(t, filepath.Join(src, "Alpha"), "Alpha", "1.0",
		"<configs><lootgroup name=\"one\"/></configs>", "")
	// A second XML file that does not parse.
	bad := filepath.Join(src, "Alpha", "Config", "broken.xml")
	if err := os.WriteFile(bad, []byte("<configs><unclosed>"), 0o644); err != nil {
		t.Fatalf("writing broken.xml: %v", err)
	}

	res, err := r.Run(context.Background(), Options{SourcePath: src})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Blocks != 1 {
		t.Errorf("recorded %d blocks, want 1 (good file still ingested)", res.Blocks)
	}
	if len(res.Problems) == 0 {
		t.Errorf("expected a problem recorded for the unparseable file")
	}
}

func TestRunPreservesNestedShortPaths(t *testing.T) {
	r := newTestRunner(t)
	src := t.TempDir()
	writeModlet(t, filepath.Join(src, "Alpha"), "Alpha", "1.0", "", "")
	nested := filepath.Join(src, "Alpha", "Config", "XUi")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("creating nested dir: %v", err)
	}
	content := `<windows><window name="backpack"/></windows>`
	if err := os.WriteFile(filepath.Join(nested, "windows.xml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing nested xml: %v", err)
	}

	res, err := r.Run(context.Background(), Options{SourcePath: src})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.OutputDir, "Config", "XUi", "windows.xml")); err != nil {
		t.Errorf("nested short path not preserved in output: %v", err)
	}
}

func TestRoundTripSingleModlet(t *testing.T) {
	r := newTestRunner(t)
	src := t.TempDir()
	writeModlet(t, filepath.Join(src, "Alpha"), "Alpha", "1.0",
		`<configs>
	<lootgroup name="one" count="2"><item name="glass"/></lootgroup>
	<lootgroup name="two"><item name="paper" prob="0.5"/></lootgroup>
</configs>`, "")

	res, err := r.Run(context.Background(), Options{SourcePath: src})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The combined file must re-normalize to the same fragments: same
	// count, tags and attributes, only whitespace may differ.
	doc, err := xmlfrag.NormalizeFile(filepath.Join(res.OutputDir, "Config", "loot.xml"))
	if err != nil {
		t.Fatalf("combined output does not re-normalize: %v", err)
	}
	if doc.RootTag != "config" {
		t.Errorf("output root tag = %q, want config", doc.RootTag)
	}
	if len(doc.Fragments) != 2 {
		t.Fatalf("round-trip yielded %d fragments, want 2", len(doc.Fragments))
	}
	for i, want := range []string{`name="one"`, `name="two"`} {
		if doc.Fragments[i].Tag != "lootgroup" || !strings.Contains(doc.Fragments[i].XML, want) {
			t.Errorf("fragment %d = %q, want lootgroup with %s", i, doc.Fragments[i].XML, want)
		}
	}
	if !strings.Contains(doc.Fragments[0].XML, `count="2"`) ||
		!strings.Contains(doc.Fragments[1].XML, `prob="0.5"`) {
		t.Errorf("attributes lost in round trip: %+v", doc.Fragments)
	}
}

func TestOptionsDescriptorDefaults(t *testing.T) {
	d := Options{}.Descriptor()
	if d.Name != DefaultName || d.Author != DefaultAuthor ||
		d.Description != DefaultDescription || d.Version != DefaultVersion {
		t.Errorf("Descriptor() = %+v, want defaults", d)
	}

	d = Options{Name: "Mine", Version: "2.0"}.Descriptor()
	if d.Name != "Mine" || d.Version != "2.0" {
		t.Errorf("Descriptor() overrides lost: %+v", d)
	}
	if d.Author != DefaultAuthor {
		t.Errorf("Descriptor() author = %q, want default", d.Author)
	}
}

// Package assemble writes the combined modlet to disk: the synthesized
// ModInfo.xml descriptor, the merged Config/Localization.txt table, and one
// combined XML file per distinct logical short path under Config/.
package assemble

import (
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"github.com/antchfx/xmlquery"

	"github.com/modlet-tools/combiner/core/errors"
	"github.com/modlet-tools/combiner/core/localization"
	"github.com/modlet-tools/combiner/core/modlet"
	"github.com/modlet-tools/combiner/core/store"
)

// OutputDirName is the directory the combined modlet is written into,
// created under the source path.
const OutputDirName = "Combined_Modlet"

// FileReport describes one written config file for the integrity check:
// what the store recorded for the path versus what landed on disk.
type FileReport struct {
	ShortPath      string
	Path           string
	RecordedBlocks int
	WrittenBlocks  int
	RecordedBytes  int64
	WrittenBytes   int64
}

// Assembler writes combined output files under <outputPath>/Combined_Modlet.
type Assembler struct {
	dir string
	log *slog.Logger
}

func New(outputPath string, log *slog.Logger) *Assembler {
	return &Assembler{dir: filepath.Join(outputPath, OutputDirName), log: log}
}

// Dir returns the combined modlet directory.
func (a *Assembler) Dir() string {
	return a.dir
}

// Reset clears a previous run's output: ModInfo.xml, the localization table
// and every file under Config/. The directory itself is kept.
func (a *Assembler) Reset() error {
	for _, name := range []string{modlet.DescriptorFile, filepath.Join("Config", localization.TableFile)} {
		path := filepath.Join(a.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.NewIO("remove", path, err)
		}
	}
	configDir := filepath.Join(a.dir, "Config")
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewIO("read dir", configDir, err)
	}
	for _, e := range entries {
		path := filepath.Join(configDir, e.Name())
		if e.IsDir() {
			if err := os.RemoveAll(path); err != nil {
				return errors.NewIO("remove", path, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return errors.NewIO("remove", path, err)
		}
		a.log.Debug("cleared output file", "path", path)
	}
	return nil
}

// WriteModInfo synthesizes the combined modlet's descriptor file. Name is
// written without spaces, DisplayName keeps them.
func (a *Assembler) WriteModInfo(d modlet.Descriptor) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return errors.NewIO("create dir", a.dir, err)
	}
	lines := []string{
		`<?xml version="1.0" encoding="UTF-8" ?>`,
		"<xml>",
		"\t<Name value=\"" + escapeAttr(strings.ReplaceAll(d.Name, " ", "_")) + "\"/>",
		"\t<DisplayName value=\"" + escapeAttr(d.Name) + "\"/>",
		"\t<Website value=\"" + escapeAttr(d.Website) + "\"/>",
		"\t<Description value=\"" + escapeAttr(d.Description) + "\"/>",
		"\t<Author value=\"" + escapeAttr(d.Author) + "\"/>",
		"\t<Version value=\"" + escapeAttr(d.Version) + "\"/>",
		"</xml>",
	}
	path := filepath.Join(a.dir, modlet.DescriptorFile)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return errors.NewIO("write", path, err)
	}
	a.log.Debug("wrote descriptor", "path", path)
	return nil
}

// WriteLocalization writes the merged localization table under Config/.
// Designated columns are quoted when non-empty; everything else is written
// bare. No file is produced when there are no rows.
func (a *Assembler) WriteLocalization(rows []localization.Row) error {
	if len(rows) == 0 {
		a.log.Debug("no localization rows to write")
		return nil
	}
	configDir := filepath.Join(a.dir, "Config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return errors.NewIO("create dir", configDir, err)
	}

	var b strings.Builder
	b.WriteString(localization.Header())
	b.WriteByte('\n')
	for _, row := range rows {
		parts := make([]string, 0, len(localization.ExpectedHeader))
		for _, column := range localization.ExpectedHeader {
			value := row.Value(column)
			if value != "" && isQuotedColumn(column) {
				value = `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
			}
			parts = append(parts, value)
		}
		b.WriteString(strings.Join(parts, ","))
		b.WriteByte('\n')
	}

	path := filepath.Join(configDir, localization.TableFile)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.NewIO("write", path, err)
	}
	a.log.Debug("wrote localization table", "path", path, "rows", len(rows))
	return nil
}

// blockStartMarker opens every block's provenance comment. WrittenBlocks is
// derived by counting its occurrences in the written content, so the count
// reflects what landed on disk rather than what was handed in.
const blockStartMarker = "<!-- Start XML_Block: "

// WriteConfigFiles writes one combined XML file per distinct short path, in
// the order paths were first recorded. Each block is wrapped in start and
// end comment markers naming its source modlet, inside a <config> root.
func (a *Assembler) WriteConfigFiles(blocks []store.ContentBlock) ([]FileReport, error) {
	var order []string
	grouped := make(map[string][]store.ContentBlock)
	for _, b := range blocks {
		if _, seen := grouped[b.ShortPath]; !seen {
			order = append(order, b.ShortPath)
		}
		grouped[b.ShortPath] = append(grouped[b.ShortPath], b)
	}

	var reports []FileReport
	for _, shortPath := range order {
		group := grouped[shortPath]
		path := filepath.Join(a.dir, "Config", filepath.FromSlash(shortPath))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return reports, errors.NewIO("create dir", filepath.Dir(path), err)
		}

		report := FileReport{
			ShortPath:      shortPath,
			Path:           path,
			RecordedBlocks: len(group),
		}
		lines := []string{"<config>"}
		for _, b := range group {
			report.RecordedBytes += int64(len(b.Content))
			lines = append(lines, blockStartMarker+b.ModletName+" -->")
			lines = append(lines, renderBlock(b.Content, a.log)...)
			lines = append(lines, "<!-- End XML_Block: "+b.ModletName+" -->")
		}
		lines = append(lines, "</config>")

		content := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return reports, errors.NewIO("write", path, err)
		}
		report.WrittenBytes = int64(len(content))
		report.WrittenBlocks = strings.Count(content, blockStartMarker)
		reports = append(reports, report)
		a.log.Debug("wrote config file", "path", path, "blocks", report.WrittenBlocks)
	}
	return reports, nil
}

// renderBlock pretty-prints one stored block with two-space indentation.
// The block root sits flush with the comment markers; only nesting below it
// is indented. Content that fails to re-parse is written verbatim.
func renderBlock(content string, log *slog.Logger) []string {
	doc, err := xmlquery.Parse(strings.NewReader(content))
	if err != nil {
		log.Warn("stored block no longer parses, writing verbatim", "err", err)
		return []string{content}
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			var lines []string
			renderNode(n, 0, &lines)
			return lines
		}
	}
	return []string{content}
}

func renderNode(n *xmlquery.Node, depth int, lines *[]string) {
	indent := strings.Repeat("  ", depth)
	if !hasElementChild(n) {
		*lines = append(*lines, indent+strings.TrimSpace(n.OutputXML(true)))
		return
	}
	*lines = append(*lines, indent+startTag(n))
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			renderNode(c, depth+1, lines)
		case xmlquery.TextNode:
			if t := strings.TrimSpace(c.Data); t != "" {
				*lines = append(*lines, strings.Repeat("  ", depth+1)+escapeText(t))
			}
		case xmlquery.CommentNode:
			*lines = append(*lines, strings.Repeat("  ", depth+1)+"<!--"+c.Data+"-->")
		}
	}
	*lines = append(*lines, indent+"</"+tagName(n)+">")
}

func hasElementChild(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}

func tagName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

func startTag(n *xmlquery.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tagName(n))
	for _, attr := range n.Attr {
		b.WriteByte(' ')
		if attr.Name.Space != "" {
			b.WriteString(attr.Name.Space)
			b.WriteByte(':')
		}
		b.WriteString(attr.Name.Local)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(attr.Value))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;")

var textEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

func escapeText(s string) string { return textEscaper.Replace(s) }

func isQuotedColumn(column string) bool {
	for _, q := range localization.QuotedColumns {
		if strings.EqualFold(column, q) {
			return true
		}
	}
	return false
}

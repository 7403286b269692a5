// Package xmlfrag normalizes one source XML file into independent content
// blocks: the document's root tag is identified and discarded, and each
// immediate child element is serialized on its own.
package xmlfrag

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/xmlquery"
	"golang.org/x/text/encoding/charmap"

	"github.com/modlet-tools/combiner/core/errors"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

// Fragment is one immediate child element of a document's root, serialized
// with its own tag and attributes but without the root wrapper.
type Fragment struct {
	Tag string
	XML string
}

// Document is the result of normalizing one source XML file.
type Document struct {
	RootTag   string
	Fragments []Fragment
}

// ReadFile reads raw bytes with encoding fallback: UTF-8 first, then
// Latin-1. ASCII input is valid UTF-8 so it is covered by the first attempt.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewIO("read", path, err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.NewIO("decode", path, err)
	}
	return string(decoded), nil
}

// Normalize parses one XML document and extracts its content blocks. A
// leading byte-order mark is tolerated and a missing XML declaration is
// synthesized before parsing.
func Normalize(content string) (*Document, error) {
	content = strings.TrimPrefix(content, "\uFEFF")
	content = strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(content, "<?xml") {
		content = xmlDeclaration + "\n" + content
	}

	doc, err := xmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return nil, &errors.ParseError{Format: "XML", Message: err.Error(), Err: err}
	}

	var root *xmlquery.Node
	for child := doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			root = child
			break
		}
	}
	if root == nil {
		return nil, errors.NewParse("XML", "", "document has no root element")
	}

	out := &Document{RootTag: root.Data}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		out.Fragments = append(out.Fragments, Fragment{
			Tag: child.Data,
			XML: strings.TrimSpace(child.OutputXML(true)),
		})
	}
	return out, nil
}

// NormalizeFile reads and normalizes one file in a single step.
func NormalizeFile(path string) (*Document, error) {
	content, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Normalize(content)
	if err != nil {
		if pe, ok := err.(*errors.ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// Valid reports whether data re-parses as well-formed XML. Used by the
// integrity check on written output.
func Valid(data []byte) error {
	_, err := xmlquery.Parse(strings.NewReader(string(data)))
	return err
}

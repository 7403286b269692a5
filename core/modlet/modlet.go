// Package modlet defines the modlet descriptor and its identity rules.
package modlet

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/zeebo/blake3"

	"github.com/modlet-tools/combiner/core/errors"
)

// DescriptorFile is the metadata file that marks a directory as a modlet root.
const DescriptorFile = "ModInfo.xml"

// Descriptor holds the metadata of one modlet, read from its ModInfo.xml.
// Absent elements default to the empty string.
type Descriptor struct {
	Name        string
	Description string
	Author      string
	Version     string
	Website     string
}

// ID returns the content-derived identifier for the descriptor. It depends
// only on Name and Version, so identical (Name, Version) pairs always map to
// the same identifier; it joins a modlet to its stored blocks and rows.
func (d Descriptor) ID() string {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s_%s", d.Name, d.Version)))
	return hex.EncodeToString(sum[:])
}

// ParseDescriptor parses a ModInfo.xml document. The expected shape is a
// single root element whose named children (Name, Description, Author,
// Version, Website) each carry their value in a "value" attribute.
func ParseDescriptor(data []byte) (Descriptor, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return Descriptor{}, &errors.ParseError{Format: "ModInfo", Message: err.Error(), Err: err}
	}

	var root *xmlquery.Node
	for child := doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			root = child
			break
		}
	}
	if root == nil {
		return Descriptor{}, errors.NewParse("ModInfo", "", "document has no root element")
	}

	return Descriptor{
		Name:        valueAttr(root, "Name"),
		Description: valueAttr(root, "Description"),
		Author:      valueAttr(root, "Author"),
		Version:     valueAttr(root, "Version"),
		Website:     valueAttr(root, "Website"),
	}, nil
}

func valueAttr(root *xmlquery.Node, element string) string {
	n := root.SelectElement(element)
	if n == nil {
		return ""
	}
	return n.SelectAttr("value")
}

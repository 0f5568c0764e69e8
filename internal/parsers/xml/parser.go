package xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"unicode/utf8"

	"github.com/kosarica/catalog-ingest/internal/parsers/charset"
	"github.com/kosarica/catalog-ingest/internal/types"
)

// ErrMalformedDocument is returned when the payload is not well-formed XML
var ErrMalformedDocument = errors.New("malformed document")

// ParseError describes where decoding stopped. It matches ErrMalformedDocument with errors.Is.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", ErrMalformedDocument, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedDocument, e.Err}
}

// Parser builds documents from vendor catalog XML
type Parser struct {
	options ParserOptions
}

// NewParser creates a new XML parser with the given options
func NewParser(options ParserOptions) *Parser {
	options.FieldMapping = options.FieldMapping.withDefaults()
	return &Parser{options: options}
}

var defaultParser = NewParser(DefaultParserOptions())

// Parse reads r fully and parses it with the default field mapping
func Parse(r io.Reader) (*Document, error) {
	return defaultParser.Parse(r)
}

// ParseBytes parses content with the default field mapping
func ParseBytes(content []byte) (*Document, error) {
	return defaultParser.ParseBytes(content)
}

// Parse reads r fully and parses it
func (p *Parser) Parse(r io.Reader) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return p.ParseBytes(content)
}

// ParseBytes parses content into an element tree. Parsing is all-or-nothing:
// a syntax error anywhere yields no document.
func (p *Parser) ParseBytes(content []byte) (*Document, error) {
	content = charset.Prepare(content)

	// Feeds that are already valid UTF-8 but declare a legacy encoding are
	// read as-is, re-decoding them would garble every non-ASCII name
	passthrough := utf8.Valid(content)

	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if passthrough {
			return input, nil
		}
		return charset.NewReader(label, input)
	}

	root, err := buildTree(decoder)
	if err != nil {
		return nil, &ParseError{Offset: decoder.InputOffset(), Err: err}
	}

	return &Document{Root: root, mapping: p.options.FieldMapping}, nil
}

func buildTree(decoder *xml.Decoder) (*Node, error) {
	var root *Node
	var stack []*Node

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				// Only text ahead of the first child element counts
				if cur := stack[len(stack)-1]; len(cur.Children) == 0 {
					cur.Text += string(t)
				}
			} else if len(bytes.TrimSpace(t)) > 0 {
				return nil, errors.New("text outside root element")
			}
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Name)
	}
	return root, nil
}

// Document is a parsed catalog
type Document struct {
	Root    *Node
	mapping FieldMapping
}

// FindStoreID probes the direct children of the root for a store identifier
func (d *Document) FindStoreID() string {
	return FirstText(d.Root, d.mapping.StoreID...)
}

// Candidate is one item node together with the outcome of validating it
type Candidate struct {
	Index int
	Tag   string
	Raw   types.RawItem
	Item  types.CanonicalItem
	Skip  types.SkipReason
}

// Valid reports whether the candidate produced a canonical item
func (c Candidate) Valid() bool {
	return c.Skip == types.SkipNone
}

// Candidates lazily yields every item node at any depth, in document order,
// including invalid ones with their skip reason
func (d *Document) Candidates() iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		index := 0
		for node := range d.Root.Walk() {
			if !slices.Contains(d.mapping.ItemTags, node.Name) {
				continue
			}
			raw := d.extract(node)
			item, skip := raw.Canonical()
			c := Candidate{Index: index, Tag: node.Name, Raw: raw, Item: item, Skip: skip}
			index++
			if !yield(c) {
				return
			}
		}
	}
}

// Items lazily yields only the valid canonical items
func (d *Document) Items() iter.Seq[types.CanonicalItem] {
	return func(yield func(types.CanonicalItem) bool) {
		for c := range d.Candidates() {
			if !c.Valid() {
				continue
			}
			if !yield(c.Item) {
				return
			}
		}
	}
}

func (d *Document) extract(node *Node) types.RawItem {
	return types.RawItem{
		Barcode:  FirstText(node, d.mapping.Barcode...),
		Name:     FirstText(node, d.mapping.Name...),
		Brand:    FirstText(node, d.mapping.Brand...),
		UnitSize: FirstText(node, d.mapping.UnitSize...),
		Price:    FirstText(node, d.mapping.Price...),
	}
}

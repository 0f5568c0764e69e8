package xml

import (
	"iter"
	"slices"
	"strings"
)

// FieldMapping lists, per canonical field, the element names consulted in order.
// The first direct child with non-empty text wins.
type FieldMapping struct {
	Barcode  []string `json:"barcode"`
	Name     []string `json:"name"`
	Brand    []string `json:"brand"`
	UnitSize []string `json:"unitSize"`
	Price    []string `json:"price"`

	// StoreID is probed over the direct children of the root element
	StoreID []string `json:"storeId"`

	// ItemTags are the local element names treated as item candidates at any depth
	ItemTags []string `json:"itemTags"`
}

// DefaultFieldMapping returns the aliases observed across vendor catalogs
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Barcode:  []string{"ItemCode", "Barcode", "ItemId"},
		Name:     []string{"ItemName", "Name"},
		Brand:    []string{"ManufacturerName", "Brand"},
		UnitSize: []string{"UnitQty", "UnitSize"},
		Price:    []string{"ItemPrice", "Price"},
		StoreID:  []string{"StoreId", "StoreCode", "Store", "Branch"},
		ItemTags: []string{"Item", "Product", "ItemDetails"},
	}
}

// withDefaults fills every empty alias list from DefaultFieldMapping
func (m FieldMapping) withDefaults() FieldMapping {
	d := DefaultFieldMapping()
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&m.Barcode, d.Barcode)
	fill(&m.Name, d.Name)
	fill(&m.Brand, d.Brand)
	fill(&m.UnitSize, d.UnitSize)
	fill(&m.Price, d.Price)
	fill(&m.StoreID, d.StoreID)
	fill(&m.ItemTags, d.ItemTags)
	return m
}

// ParserOptions represents XML parser options
type ParserOptions struct {
	FieldMapping FieldMapping `json:"fieldMapping"`
}

// DefaultParserOptions returns default XML parser options
func DefaultParserOptions() ParserOptions {
	return ParserOptions{FieldMapping: DefaultFieldMapping()}
}

// Node is one element of a parsed document. Namespaces are dropped; only the local name is kept.
// Text holds the character data ahead of the first child element.
type Node struct {
	Name     string
	Text     string
	Children []*Node
}

// Child returns the first direct child with the given local name, or nil
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Walk yields n and all of its descendants in document order
func (n *Node) Walk() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		stack := []*Node{n}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(cur) {
				return
			}
			for _, c := range slices.Backward(cur.Children) {
				stack = append(stack, c)
			}
		}
	}
}

// FirstText returns the trimmed text of the first direct child, in alias order,
// whose text is non-empty. Whitespace-only text counts as empty.
func FirstText(n *Node, aliases ...string) string {
	if n == nil {
		return ""
	}
	for _, alias := range aliases {
		for _, c := range n.Children {
			if c.Name != alias {
				continue
			}
			if text := strings.TrimSpace(c.Text); text != "" {
				return text
			}
			// Only the first element of a given name is consulted
			break
		}
	}
	return ""
}

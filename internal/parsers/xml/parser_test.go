package xml

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/catalog-ingest/internal/types"
)

const milkCatalog = `<?xml version="1.0" encoding="UTF-8"?>
<Root>
  <ChainId>7290027600007</ChainId>
  <StoreId>S1</StoreId>
  <Items>
    <Item>
      <ItemCode>729000011112</ItemCode>
      <ItemName>Milk 1L</ItemName>
      <ManufacturerName>Tnuva</ManufacturerName>
      <UnitQty>1 L</UnitQty>
      <ItemPrice>6.90</ItemPrice>
    </Item>
  </Items>
</Root>`

func TestParseMilkCatalog(t *testing.T) {
	doc, err := ParseBytes([]byte(milkCatalog))
	require.NoError(t, err)

	assert.Equal(t, "S1", doc.FindStoreID())

	items := slices.Collect(doc.Items())
	require.Len(t, items, 1)
	assert.Equal(t, "729000011112", items[0].Barcode)
	assert.Equal(t, "Milk 1L", items[0].Name)
	assert.Equal(t, "Tnuva", items[0].Brand)
	assert.Equal(t, "1 L", items[0].UnitSize)
	assert.Equal(t, "6.9", items[0].Price.String())
}

func TestParseAliasFallback(t *testing.T) {
	content := `<Catalog>
  <StoreCode>42</StoreCode>
  <Product>
    <Barcode>111</Barcode>
    <Name>Bread</Name>
    <Brand>Angel</Brand>
    <UnitSize>750g</UnitSize>
    <Price>9.5</Price>
  </Product>
  <Group>
    <ItemDetails>
      <ItemId>222</ItemId>
      <ItemName>  </ItemName>
      <Name>Butter</Name>
      <ItemPrice>12</ItemPrice>
    </ItemDetails>
  </Group>
</Catalog>`

	doc, err := ParseBytes([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "42", doc.FindStoreID())

	items := slices.Collect(doc.Items())
	require.Len(t, items, 2)

	assert.Equal(t, types.CanonicalItem{
		Barcode:  "111",
		Name:     "Bread",
		Brand:    "Angel",
		UnitSize: "750g",
		Price:    items[0].Price,
	}, items[0])
	assert.Equal(t, "9.5", items[0].Price.String())

	// Whitespace-only ItemName falls through to Name
	assert.Equal(t, "222", items[1].Barcode)
	assert.Equal(t, "Butter", items[1].Name)
	assert.Empty(t, items[1].Brand)
}

func TestParseAliasOrder(t *testing.T) {
	content := `<Root><Item>
  <Name>Second</Name>
  <ItemName>First</ItemName>
  <Price>2</Price>
  <ItemPrice>1</ItemPrice>
</Item></Root>`

	doc, err := ParseBytes([]byte(content))
	require.NoError(t, err)

	items := slices.Collect(doc.Items())
	require.Len(t, items, 1)
	assert.Equal(t, "First", items[0].Name)
	assert.Equal(t, "1", items[0].Price.String())
}

func TestCandidatesSkipReasons(t *testing.T) {
	content := `<Root>
  <Item><ItemName>Valid</ItemName><ItemPrice>1.00</ItemPrice></Item>
  <Item><ItemPrice>1.00</ItemPrice></Item>
  <Item><ItemName>No price</ItemName></Item>
  <Item><ItemName>Bad price</ItemName><ItemPrice>abc</ItemPrice></Item>
  <Item><ItemName>Comma price</ItemName><ItemPrice>6,90</ItemPrice></Item>
</Root>`

	doc, err := ParseBytes([]byte(content))
	require.NoError(t, err)

	var reasons []types.SkipReason
	for c := range doc.Candidates() {
		reasons = append(reasons, c.Skip)
	}
	assert.Equal(t, []types.SkipReason{
		types.SkipNone,
		types.SkipMissingName,
		types.SkipMissingPrice,
		types.SkipInvalidPrice,
		types.SkipInvalidPrice,
	}, reasons)

	items := slices.Collect(doc.Items())
	require.Len(t, items, 1)
	assert.Equal(t, "Valid", items[0].Name)
}

func TestCandidatesIncludeRootAndIndex(t *testing.T) {
	doc, err := ParseBytes([]byte(`<Product><Name>Solo</Name><Price>3</Price></Product>`))
	require.NoError(t, err)

	candidates := slices.Collect(doc.Candidates())
	require.Len(t, candidates, 1)
	assert.Equal(t, 0, candidates[0].Index)
	assert.Equal(t, "Product", candidates[0].Tag)
	assert.True(t, candidates[0].Valid())
}

func TestCandidatesStopEarly(t *testing.T) {
	var b strings.Builder
	b.WriteString("<Root>")
	for range 10 {
		b.WriteString("<Item><ItemName>x</ItemName><ItemPrice>1</ItemPrice></Item>")
	}
	b.WriteString("</Root>")

	doc, err := ParseBytes([]byte(b.String()))
	require.NoError(t, err)

	seen := 0
	for range doc.Items() {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestFindStoreID(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"StoreId", `<Root><StoreId>7</StoreId></Root>`, "7"},
		{"StoreCode", `<Root><StoreCode>S9</StoreCode></Root>`, "S9"},
		{"Branch", `<Root><Branch>B2</Branch></Root>`, "B2"},
		{"Order wins", `<Root><Branch>B2</Branch><StoreId>1</StoreId></Root>`, "1"},
		{"Empty falls through", `<Root><StoreId> </StoreId><Store>3</Store></Root>`, "3"},
		{"Nested is ignored", `<Root><Header><StoreId>7</StoreId></Header></Root>`, ""},
		{"None", `<Root><Items/></Root>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, doc.FindStoreID())
		})
	}
}

func TestNodeTextStopsAtFirstChild(t *testing.T) {
	doc, err := ParseBytes([]byte(`<Root><Item><ItemName>Milk<Note>promo</Note> 1L</ItemName><ItemPrice>6.90<!-- x --></ItemPrice></Item></Root>`))
	require.NoError(t, err)

	items := slices.Collect(doc.Items())
	require.Len(t, items, 1)
	assert.Equal(t, "Milk", items[0].Name)
	assert.Equal(t, "6.9", items[0].Price.String())
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Unclosed", `<Root><Item><ItemName>x</ItemName>`},
		{"Mismatched", `<Root><Item></Root>`},
		{"Empty", ``},
		{"Not XML", `this is not xml`},
		{"Two roots", `<A/><B/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tt.content))
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.Is(err, ErrMalformedDocument))

			var parseErr *ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}

func TestParseEncodings(t *testing.T) {
	t.Run("windows-1255 declared", func(t *testing.T) {
		content := []byte(`<?xml version="1.0" encoding="windows-1255"?><Root><Item><ItemName>` +
			"\xe7\xec\xe1" + `</ItemName><ItemPrice>5</ItemPrice></Item></Root>`)
		doc, err := ParseBytes(content)
		require.NoError(t, err)

		items := slices.Collect(doc.Items())
		require.Len(t, items, 1)
		assert.Equal(t, "חלב", items[0].Name)
	})

	t.Run("UTF-8 content with legacy declaration", func(t *testing.T) {
		content := []byte(`<?xml version="1.0" encoding="windows-1255"?><Root><Item><ItemName>חלב</ItemName><ItemPrice>5</ItemPrice></Item></Root>`)
		doc, err := ParseBytes(content)
		require.NoError(t, err)

		items := slices.Collect(doc.Items())
		require.Len(t, items, 1)
		assert.Equal(t, "חלב", items[0].Name)
	})

	t.Run("BOM and invalid bytes", func(t *testing.T) {
		content := []byte("\xEF\xBB\xBF<Root><Item><ItemName>Caf\xe9</ItemName><ItemPrice>5</ItemPrice></Item></Root>")
		doc, err := ParseBytes(content)
		require.NoError(t, err)

		items := slices.Collect(doc.Items())
		require.Len(t, items, 1)
		assert.Equal(t, "Caf�", items[0].Name)
	})
}

func TestParseNamespacedTags(t *testing.T) {
	content := `<p:Root xmlns:p="urn:prices"><p:StoreId>5</p:StoreId><p:Item><p:ItemName>Tea</p:ItemName><p:ItemPrice>4</p:ItemPrice></p:Item></p:Root>`

	doc, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, "5", doc.FindStoreID())

	items := slices.Collect(doc.Items())
	require.Len(t, items, 1)
	assert.Equal(t, "Tea", items[0].Name)
}

func TestParserCustomMapping(t *testing.T) {
	p := NewParser(ParserOptions{FieldMapping: FieldMapping{
		Name:     []string{"Title"},
		ItemTags: []string{"Row"},
	}})

	doc, err := p.ParseBytes([]byte(`<Rows><StoreId>1</StoreId><Row><Title>Jam</Title><Price>8</Price></Row></Rows>`))
	require.NoError(t, err)

	items := slices.Collect(doc.Items())
	require.Len(t, items, 1)
	assert.Equal(t, "Jam", items[0].Name)
	// Unset lists keep their defaults
	assert.Equal(t, "1", doc.FindStoreID())
}

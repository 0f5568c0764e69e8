package charset

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclaredEncoding(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"Windows-1255", `<?xml version="1.0" encoding="Windows-1255"?><Root/>`, "windows-1255"},
		{"Single quotes", `<?xml version='1.0' encoding='ISO-8859-8'?><Root/>`, "iso-8859-8"},
		{"No encoding", `<?xml version="1.0"?><Root/>`, ""},
		{"No declaration", `<Root/>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeclaredEncoding([]byte(tt.content)))
		})
	}
}

func TestPrepare(t *testing.T) {
	t.Run("strips BOM", func(t *testing.T) {
		out := Prepare([]byte("\xEF\xBB\xBF<Root/>"))
		assert.Equal(t, "<Root/>", string(out))
	})

	t.Run("replaces invalid UTF-8", func(t *testing.T) {
		out := Prepare([]byte("<Root>caf\xe9</Root>"))
		assert.Equal(t, "<Root>caf�</Root>", string(out))
	})

	t.Run("keeps declared legacy encoding", func(t *testing.T) {
		in := []byte(`<?xml version="1.0" encoding="windows-1255"?><Root>` + "\xe7\xec\xe1" + `</Root>`)
		assert.Equal(t, in, Prepare(in))
	})
}

func TestNewReader(t *testing.T) {
	t.Run("decodes windows-1255", func(t *testing.T) {
		r, err := NewReader("windows-1255", strings.NewReader("\xe7\xec\xe1"))
		require.NoError(t, err)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "חלב", string(out))
	})

	t.Run("passes UTF-8 through", func(t *testing.T) {
		in := strings.NewReader("abc")
		r, err := NewReader("UTF-8", in)
		require.NoError(t, err)
		assert.Same(t, in, r)
	})

	t.Run("rejects unknown label", func(t *testing.T) {
		_, err := NewReader("klingon-42", strings.NewReader(""))
		assert.Error(t, err)
	})
}

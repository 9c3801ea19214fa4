package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines(t *testing.T) {
	t.Parallel()

	doc, err := ParseString(`<html><head><style>p{}</style></head><body>
		<h1>Title</h1><p>first   line<br>second</p><script>var x;</script><ul><li>item</li></ul></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "first line", "second", "item"}, Lines(doc.Selection))
}

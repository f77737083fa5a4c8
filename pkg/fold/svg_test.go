package fold

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSVG_Basic(t *testing.T) {
	folded := "main.lua:run 10\nmain.lua:run;lib.lua:helper 5\n"
	var out bytes.Buffer
	err := RenderSVG(strings.NewReader(folded), &out, DefaultSVGOptions())
	require.NoError(t, err)

	svg := out.String()
	assert.Contains(t, svg, "<svg version=\"1.1\"")
	assert.Contains(t, svg, "</svg>")
	assert.Contains(t, svg, "total weight 15")
	assert.Contains(t, svg, "main.lua:run")
	assert.Contains(t, svg, "lib.lua:helper")
}

func TestRenderSVG_NoStacksFails(t *testing.T) {
	var out bytes.Buffer
	err := RenderSVG(strings.NewReader(""), &out, DefaultSVGOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stacks")
}

func TestRenderSVG_BadWeightFails(t *testing.T) {
	var out bytes.Buffer
	err := RenderSVG(strings.NewReader("a;b ten\n"), &out, DefaultSVGOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot parse folded weight")
}

func TestRenderSVG_EscapesMarkup(t *testing.T) {
	var out bytes.Buffer
	opts := DefaultSVGOptions()
	opts.Title = "trace <demo>"
	err := RenderSVG(strings.NewReader("a<b 3\n"), &out, opts)
	require.NoError(t, err)

	svg := out.String()
	assert.Contains(t, svg, "trace &lt;demo&gt;")
	assert.Contains(t, svg, "a&lt;b")
	assert.NotContains(t, svg, "<title>a<b")
}

func TestFrameColor_StableAndBounded(t *testing.T) {
	for _, palette := range []string{"hot", "cold", "gray"} {
		r1, g1, b1 := frameColor("main.lua:run", palette)
		r2, g2, b2 := frameColor("main.lua:run", palette)
		assert.Equal(t, r1, r2)
		assert.Equal(t, g1, g2)
		assert.Equal(t, b1, b2)
		for _, c := range []int{r1, g1, b1} {
			assert.GreaterOrEqual(t, c, 0)
			assert.LessOrEqual(t, c, 255)
		}
	}
}

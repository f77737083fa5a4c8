package fold

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"sort"
	"strconv"
	"strings"
)

// SVGOptions configures flame graph rendering.
type SVGOptions struct {
	Title  string
	Width  int
	Height int
	// Palette selects the frame color family: "hot", "cold" or "gray".
	Palette string
}

// DefaultSVGOptions returns the rendering defaults.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title:   "Line profile",
		Width:   1200,
		Palette: "hot",
	}
}

type node struct {
	name     string
	value    int64
	children map[string]*node
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode(name)
		n.children[name] = c
	}
	return c
}

func (n *node) depth() int {
	deepest := 0
	for _, c := range n.children {
		if d := c.depth() + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

// RenderSVG renders folded stacks as a flame graph SVG. Frames are
// colored by a stable hash of their name so the same function keeps its
// color across renders.
func RenderSVG(folded io.Reader, svg io.Writer, opts SVGOptions) error {
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.Title == "" {
		opts.Title = "Line profile"
	}

	root := newNode("all")
	sc := bufio.NewScanner(folded)
	sc.Buffer(make([]byte, 64*1024), maxFoldedLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cut := strings.LastIndexByte(line, ' ')
		if cut <= 0 {
			return fmt.Errorf("cannot parse folded line %q", line)
		}
		weight, err := strconv.ParseInt(line[cut+1:], 10, 64)
		if err != nil {
			return fmt.Errorf("cannot parse folded weight in %q: %w", line, err)
		}
		cur := root
		cur.value += weight
		for _, name := range strings.Split(line[:cut], ";") {
			cur = cur.child(name)
			cur.value += weight
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("cannot read folded stacks: %w", err)
	}
	if root.value == 0 {
		return fmt.Errorf("cannot render flame graph: no stacks in input")
	}

	frameHeight := 16
	headerHeight := 40
	chartHeight := (root.depth() + 1) * frameHeight
	if opts.Height <= 0 {
		opts.Height = chartHeight + headerHeight + 24
	}

	fmt.Fprintf(svg, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg1.1.dtd">
<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
<style>
  .frame:hover rect { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: monospace; font-size: 12px; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="white"/>
<text x="%d" y="20" text-anchor="middle" style="font-size:16px; font-weight:bold;">%s</text>
<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">total weight %d</text>
`,
		opts.Width, opts.Height,
		opts.Width, opts.Height,
		opts.Width/2, html.EscapeString(opts.Title),
		opts.Width/2, root.value)

	margin := 10
	baseY := opts.Height - 12
	renderNode(svg, root, margin, baseY, opts.Width-2*margin, frameHeight, root.value, 0, opts.Palette)

	fmt.Fprintln(svg, "</svg>")
	return nil
}

const maxFoldedLine = 1 << 20

func renderNode(w io.Writer, n *node, x, baseY, width, frameHeight int, total int64, depth int, palette string) {
	if width < 1 || n.value == 0 {
		return
	}

	y := baseY - depth*frameHeight
	r, g, b := frameColor(n.name, palette)

	fmt.Fprintf(w, "<g class=\"frame\">\n<rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"rgb(%d,%d,%d)\" rx=\"1\"/>\n",
		x, y-frameHeight, width, frameHeight-1, r, g, b)

	if width > 40 {
		label := n.name
		maxChars := (width - 4) / 7
		if len(label) > maxChars {
			if maxChars > 3 {
				label = label[:maxChars-2] + ".."
			} else {
				label = ""
			}
		}
		if label != "" {
			fmt.Fprintf(w, "<text x=\"%d\" y=\"%d\" fill=\"black\">%s</text>\n",
				x+2, y-4, html.EscapeString(label))
		}
	}

	fmt.Fprintf(w, "<title>%s (%d, %.1f%%)</title>\n</g>\n",
		html.EscapeString(n.name), n.value, float64(n.value)/float64(total)*100)

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	childX := x
	for _, name := range names {
		c := n.children[name]
		childWidth := int(float64(width) * float64(c.value) / float64(n.value))
		if childWidth < 1 {
			childWidth = 1
		}
		renderNode(w, c, childX, baseY, childWidth, frameHeight, total, depth+1, palette)
		childX += childWidth
	}
}

// frameColor derives a stable color from the frame name so repeated
// renders of the same data look identical.
func frameColor(name, palette string) (int, int, int) {
	h := fnv.New32a()
	h.Write([]byte(name))
	v := h.Sum32()
	spread := func(shift uint32, span int) int {
		return int((v >> shift) % uint32(span))
	}
	switch palette {
	case "cold":
		return 40 + spread(0, 40), 90 + spread(8, 110), 160 + spread(16, 95)
	case "gray":
		base := 120 + spread(0, 100)
		return base, base, base
	default: // hot
		return 195 + spread(0, 60), 60 + spread(8, 120), 20 + spread(16, 40)
	}
}

package browser

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/net/html"
)

// CleanedHTML is a markup snapshot reduced to its semantic structure.
type CleanedHTML struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

// CleanHTML reduces a markup snapshot to its semantic structure, removing
// scripts, styles, comments and attributes that carry no targeting value.
// A maxLength of zero or less keeps the whole document.
func CleanHTML(rawHTML string, maxLength int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if maxLength <= 0 {
		maxLength = math.MaxInt
	}

	c := &cleaner{max: maxLength}
	truncated := c.node(doc, 0)

	return &CleanedHTML{
		HTML:        c.b.String(),
		Title:       findText(doc, "title"),
		Description: findMetaContent(doc, "description"),
		Truncated:   truncated,
	}, nil
}

// cleaner accumulates cleaned output; written counts text and tag bytes
// against max.
type cleaner struct {
	b       strings.Builder
	written int
	max     int
}

var (
	droppedElements = set("script", "style", "noscript", "template", "iframe", "embed", "object", "svg")

	blockElements = set(
		"div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "dl", "dt", "dd",
		"table", "thead", "tbody", "tr", "td", "th", "form", "fieldset", "blockquote", "pre", "figure",
	)

	voidElements = set(
		"area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr",
	)

	globalAttributes = set("id", "class", "role", "aria-label", "aria-describedby", "title")

	tagAttributes = map[string]map[string]bool{
		"a":        set("href", "target"),
		"img":      set("src", "alt", "width", "height"),
		"input":    set("name", "type", "placeholder", "value"),
		"textarea": set("name", "placeholder"),
		"select":   set("name"),
		"option":   set("value", "selected"),
		"button":   set("type", "name"),
		"form":     set("action", "method"),
		"label":    set("for"),
		"td":       set("colspan", "rowspan"),
		"th":       set("colspan", "rowspan", "scope"),
	}
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// node writes n and its subtree and reports whether output was truncated.
func (c *cleaner) node(n *html.Node, depth int) bool {
	if c.written >= c.max {
		return true
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return c.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedElements[tag] {
			return false
		}
		return c.element(n, tag, depth)
	}
	return c.children(n, depth)
}

func (c *cleaner) text(data string) bool {
	text := strings.TrimSpace(data)
	if text == "" {
		return false
	}

	escaped := html.EscapeString(text)
	if remaining := c.max - c.written; len(escaped) > remaining {
		c.b.WriteString(escaped[:remaining])
		c.b.WriteString("...")
		c.written = c.max
		return true
	}
	c.b.WriteString(escaped)
	c.written += len(escaped)
	return false
}

func (c *cleaner) element(n *html.Node, tag string, depth int) bool {
	block := blockElements[tag]
	if block && depth > 0 {
		c.indent(depth)
	}

	c.b.WriteString("<" + tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&c.b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	c.b.WriteString(">")
	c.written += len(tag) + 2

	if voidElements[tag] {
		return false
	}

	truncated := c.children(n, depth+1)
	if block {
		c.indent(depth)
	}
	c.b.WriteString("</" + tag + ">")
	c.written += len(tag) + 3
	return truncated
}

func (c *cleaner) children(n *html.Node, depth int) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.node(child, depth) {
			return true
		}
	}
	return false
}

func (c *cleaner) indent(depth int) {
	c.b.WriteString("\n")
	c.b.WriteString(strings.Repeat("  ", depth))
}

// keepAttribute reports whether an attribute is useful for locating or
// understanding the element.
func keepAttribute(tag, name string) bool {
	name = strings.ToLower(name)
	if globalAttributes[name] || strings.HasPrefix(name, "data-") {
		return true
	}
	return tagAttributes[tag][name]
}

// findText returns the trimmed text of the first element named tag.
func findText(doc *html.Node, tag string) string {
	n := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	})
	if n == nil || n.FirstChild == nil || n.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(n.FirstChild.Data)
}

// findMetaContent returns the content of <meta name="name">.
func findMetaContent(doc *html.Node, name string) string {
	var content string
	findFirst(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return false
		}
		var matched bool
		var value string
		for _, attr := range n.Attr {
			switch attr.Key {
			case "name":
				matched = strings.EqualFold(attr.Val, name)
			case "content":
				value = attr.Val
			}
		}
		if matched && value != "" {
			content = strings.TrimSpace(value)
			return true
		}
		return false
	})
	return content
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

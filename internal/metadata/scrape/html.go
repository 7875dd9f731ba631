package scrape

import (
	"bytes"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Page is a fetched product page: the parsed tree plus the raw source for
// pattern rules that look inside inline scripts.
type Page struct {
	root *html.Node
	raw  string
}

// ParsePage parses an HTML document.
func ParsePage(src []byte) (*Page, error) {
	root, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	return &Page{root: root, raw: string(src)}, nil
}

// find returns the first element in document order satisfying match.
func (p *Page) find(match func(*html.Node) bool) *html.Node {
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(p.root)
}

func (p *Page) byID(id string) *html.Node {
	return p.find(func(n *html.Node) bool { return attr(n, "id") == id })
}

func (p *Page) meta(attrName, key string) (string, bool) {
	n := p.find(func(n *html.Node) bool {
		return n.Data == "meta" && strings.EqualFold(attr(n, attrName), key)
	})
	if n == nil {
		return "", false
	}
	return nonEmpty(attr(n, "content"))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent concatenates the text below n, skipping scripts and styles,
// with block elements separated by spaces.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "p", "div", "br", "li", "span", "td":
				buf.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseWhitespace(buf.String())
}

// innerMarkdown renders the children of n as Markdown.
func innerMarkdown(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
			continue
		}
		if err := html.Render(&buf, c); err != nil {
			return textContent(n)
		}
	}
	md, err := htmltomarkdown.ConvertString(buf.String())
	if err != nil {
		return textContent(n)
	}
	return strings.TrimSpace(md)
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(html.UnescapeString(s))
	return s, s != ""
}

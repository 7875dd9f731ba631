package scrape

import (
	"encoding/json"
	"regexp"

	"golang.org/x/net/html"
)

// Rule extracts one field value from a page. Rules are pure and independent;
// a miss returns ok=false and the next rule in the list is tried.
type Rule func(p *Page) (value string, ok bool)

// FirstMatch runs rules in order and returns the first hit.
func FirstMatch(p *Page, rules []Rule) (string, bool) {
	for _, r := range rules {
		if v, ok := r(p); ok {
			return v, true
		}
	}
	return "", false
}

// MetaProperty reads <meta property="..." content="...">.
func MetaProperty(property string) Rule {
	return func(p *Page) (string, bool) { return p.meta("property", property) }
}

// MetaName reads <meta name="..." content="...">.
func MetaName(name string) Rule {
	return func(p *Page) (string, bool) { return p.meta("name", name) }
}

// ItemProp reads a microdata itemprop, preferring its content attribute.
func ItemProp(name string) Rule {
	return func(p *Page) (string, bool) {
		n := p.find(func(n *html.Node) bool { return attr(n, "itemprop") == name })
		if n == nil {
			return "", false
		}
		if v, ok := nonEmpty(attr(n, "content")); ok {
			return v, true
		}
		return nonEmpty(textContent(n))
	}
}

// ElementText reads the collapsed text of the element with the given id.
func ElementText(id string) Rule {
	return func(p *Page) (string, bool) {
		n := p.byID(id)
		if n == nil {
			return "", false
		}
		return nonEmpty(textContent(n))
	}
}

// ElementAttr reads an attribute of the element with the given id.
func ElementAttr(id, attrName string) Rule {
	return func(p *Page) (string, bool) {
		n := p.byID(id)
		if n == nil {
			return "", false
		}
		return nonEmpty(attr(n, attrName))
	}
}

// ElementMarkdown renders the element with the given id as Markdown.
func ElementMarkdown(id string) Rule {
	return func(p *Page) (string, bool) {
		n := p.byID(id)
		if n == nil {
			return "", false
		}
		return nonEmpty(innerMarkdown(n))
	}
}

// ClassText reads the text of the first element carrying class.
func ClassText(class string) Rule {
	return func(p *Page) (string, bool) {
		n := p.find(func(n *html.Node) bool { return hasClass(n, class) })
		if n == nil {
			return "", false
		}
		return nonEmpty(textContent(n))
	}
}

// DynamicImage reads a data-a-dynamic-image attribute, a JSON object mapping
// image URLs to [width, height], and returns the largest image.
func DynamicImage(id string) Rule {
	return func(p *Page) (string, bool) {
		n := p.byID(id)
		if n == nil {
			return "", false
		}
		raw := attr(n, "data-a-dynamic-image")
		if raw == "" {
			return "", false
		}
		var sizes map[string][2]int
		if err := json.Unmarshal([]byte(html.UnescapeString(raw)), &sizes); err != nil {
			return "", false
		}
		best, bestArea := "", -1
		for u, wh := range sizes {
			area := wh[0] * wh[1]
			if area > bestArea || (area == bestArea && u < best) {
				best, bestArea = u, area
			}
		}
		return best, best != ""
	}
}

// TitleElement reads the document <title>.
func TitleElement() Rule {
	return func(p *Page) (string, bool) {
		n := p.find(func(n *html.Node) bool { return n.Data == "title" })
		if n == nil {
			return "", false
		}
		return nonEmpty(textContent(n))
	}
}

// Pattern matches re against the raw page source and returns the first
// capture group.
func Pattern(re *regexp.Regexp) Rule {
	return func(p *Page) (string, bool) {
		m := re.FindStringSubmatch(p.raw)
		if len(m) < 2 {
			return "", false
		}
		return nonEmpty(m[1])
	}
}

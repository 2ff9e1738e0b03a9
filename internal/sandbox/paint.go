package sandbox

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	tagPattern  = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	attrPattern = regexp.MustCompile(`^(data|aria)-[a-z0-9-]+$`)
)

var voidTags = map[string]bool{
	"br": true, "hr": true, "img": true, "wbr": true,
}

var blockedTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true, "embed": true,
	"link": true, "meta": true, "base": true, "form": true, "input": true, "textarea": true,
}

var allowedAttrs = map[string]string{
	"className": "class",
	"id":        "id",
	"title":     "title",
	"src":       "src",
	"alt":       "alt",
	"width":     "width",
	"height":    "height",
	"role":      "role",
}

// unitless lists numeric CSS properties that take no px suffix.
var unitless = map[string]bool{
	"opacity": true, "z-index": true, "font-weight": true, "line-height": true,
	"flex": true, "flex-grow": true, "flex-shrink": true, "order": true, "zoom": true,
}

// Paint renders a node tree as an HTML fragment.
func Paint(root *Node) string {
	var sb strings.Builder
	paintNode(&sb, root)
	return sb.String()
}

func paintNode(sb *strings.Builder, n *Node) {
	if n.Tag == "" {
		sb.WriteString(html.EscapeString(n.Text))
		for _, c := range n.Children {
			paintNode(sb, c)
		}
		return
	}

	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, a := range n.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Name)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Value))
		sb.WriteByte('"')
	}
	if css := StyleString(n.Style); css != "" {
		sb.WriteString(` style="`)
		sb.WriteString(html.EscapeString(css))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')

	if voidTags[n.Tag] {
		return
	}
	for _, c := range n.Children {
		paintNode(sb, c)
	}
	sb.WriteString("</")
	sb.WriteString(n.Tag)
	sb.WriteByte('>')
}

// StyleString joins declarations as inline CSS.
func StyleString(decls []Decl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		if strings.ContainsAny(d.Value, "<>") || strings.Contains(strings.ToLower(d.Value), "javascript:") {
			continue
		}
		parts = append(parts, d.Property+": "+d.Value)
	}
	return strings.Join(parts, "; ")
}

// KebabCase converts a camelCase style key (fontSize) to its CSS name (font-size).
// Custom properties (--x) and already-kebab names pass through.
func KebabCase(name string) string {
	if strings.HasPrefix(name, "--") {
		return name
	}

	var sb strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}

	// WebkitTransform -> -webkit-transform
	if r := []rune(name); len(r) > 0 && unicode.IsUpper(r[0]) {
		return "-" + sb.String()
	}
	return sb.String()
}

// CSSValue formats a style value, adding px to plain numbers where CSS expects a length.
func CSSValue(property string, value any) string {
	switch v := value.(type) {
	case int64:
		if unitless[property] || v == 0 {
			return strconv.FormatInt(v, 10)
		}
		return strconv.FormatInt(v, 10) + "px"
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if unitless[property] || v == 0 {
			return s
		}
		return s + "px"
	case string:
		return v
	case bool:
		return ""
	default:
		return ""
	}
}

func validTag(tag string) bool {
	return tagPattern.MatchString(tag) && !blockedTags[tag]
}

// attrName maps a prop name to an HTML attribute, or "" when the prop is not painted.
func attrName(prop string) string {
	if name, ok := allowedAttrs[prop]; ok {
		return name
	}
	if attrPattern.MatchString(prop) {
		return prop
	}
	return ""
}

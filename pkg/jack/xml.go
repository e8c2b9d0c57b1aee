package jack

import (
	"strings"
)

// XML renders the concrete parse tree in the canonical Nand2Tetris grader
// format: one tag pair per non-terminal (named after the grammar rule) and
// one `<tagName> value </tagName>` line per terminal, two-space indented,
// with XML's three reserved characters escaped in terminal values.
func (n ParseNode) XML() string {
	var sb strings.Builder
	n.writeXML(&sb, 0)
	return sb.String()
}

func (n ParseNode) writeXML(sb *strings.Builder, indent int) {
	if n.IsTerminal() {
		tag := n.Token.Kind.String()
		writeIndent(sb, indent)
		sb.WriteString("<")
		sb.WriteString(tag)
		sb.WriteString("> ")
		sb.WriteString(escapeXML(n.Token.StringValue()))
		sb.WriteString(" </")
		sb.WriteString(tag)
		sb.WriteString(">\n")
		return
	}

	writeIndent(sb, indent)
	sb.WriteString("<")
	sb.WriteString(n.Name)
	sb.WriteString(">\n")
	for _, child := range n.Children {
		child.writeXML(sb, indent+1)
	}
	writeIndent(sb, indent)
	sb.WriteString("</")
	sb.WriteString(n.Name)
	sb.WriteString(">\n")
}

func writeIndent(sb *strings.Builder, indent int) {
	for i := 0; i < indent; i++ {
		sb.WriteString("  ")
	}
}

func escapeXML(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(text)
}

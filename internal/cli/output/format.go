package output

import (
	"fmt"
	"strings"
)

// FormatHeader returns a markdown header of the given level.
func FormatHeader(level int, text string) string {
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a "key: value" line, bolding the key in markdown.
func FormatKeyValue(key, value string, markdown bool) string {
	if markdown {
		return fmt.Sprintf("- **%s:** %s", key, value)
	}
	return fmt.Sprintf("%s: %s", key, value)
}

// FormatTree renders indented lines for a tree of labels.
func FormatTree(label string, children []TreeNode) string {
	var sb strings.Builder
	sb.WriteString(label)
	sb.WriteByte('\n')
	writeTree(&sb, children, "")
	return sb.String()
}

// TreeNode is one labelled node in FormatTree output.
type TreeNode struct {
	Label    string
	Children []TreeNode
}

func writeTree(sb *strings.Builder, nodes []TreeNode, prefix string) {
	for i, n := range nodes {
		branch, next := "├── ", "│   "
		if i == len(nodes)-1 {
			branch, next = "└── ", "    "
		}
		sb.WriteString(prefix + branch + n.Label + "\n")
		writeTree(sb, n.Children, prefix+next)
	}
}

// FormatCodeBlock wraps content in a fenced markdown code block.
func FormatCodeBlock(lang, content string) string {
	return "```" + lang + "\n" + strings.TrimRight(content, "\n") + "\n```"
}

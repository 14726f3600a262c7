package display

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

// TableStyle defines the visual style of a table
type TableStyle struct {
	Name            string
	BorderStyle     BorderStyle
	HeaderSeparator bool
	Padding         int
}

var (
	ASCIIBorderStyle = BorderStyle{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|", Cross: "+",
		TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	RoundedBorderStyle = BorderStyle{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│", Cross: "┼",
		TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}

	// DefaultTableStyle is a simple ASCII table style
	DefaultTableStyle = TableStyle{Name: "default", BorderStyle: ASCIIBorderStyle, HeaderSeparator: true, Padding: 1}

	// RoundedTableStyle uses Unicode box drawing characters
	RoundedTableStyle = TableStyle{Name: "rounded", BorderStyle: RoundedBorderStyle, HeaderSeparator: true, Padding: 1}

	// CompactTableStyle has no borders
	CompactTableStyle = TableStyle{Name: "compact", Padding: 1}

	tableStyles = map[string]TableStyle{
		DefaultTableStyle.Name: DefaultTableStyle,
		RoundedTableStyle.Name: RoundedTableStyle,
		CompactTableStyle.Name: CompactTableStyle,
	}
)

// TableFormatter builds a text table row by row
type TableFormatter struct {
	headers    []string
	rows       [][]string
	alignments map[int]Alignment
	style      TableStyle
	maxWidth   int
	colors     ColorSystem
	theme      ColorTheme
}

// NewTableFormatter creates a table formatter. Headers are colorized with the
// theme's primary color when colors is non-nil.
func NewTableFormatter(colors ColorSystem, theme ColorTheme) *TableFormatter {
	return &TableFormatter{
		alignments: make(map[int]Alignment),
		style:      DefaultTableStyle,
		colors:     colors,
		theme:      theme,
	}
}

func (tf *TableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

func (tf *TableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

func (tf *TableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

func (tf *TableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// SetMaxWidth caps the rendered width. Zero uses the terminal width when
// stdout is a terminal and leaves the table unconstrained otherwise. A
// negative width disables fitting.
func (tf *TableFormatter) SetMaxWidth(width int) {
	tf.maxWidth = width
}

// Render returns the formatted table as a string
func (tf *TableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}

	widths := tf.fitWidths(tf.columnWidths())
	border := tf.style.BorderStyle

	var b strings.Builder
	if border.Horizontal != "" {
		b.WriteString(tf.rule(widths, border.TopLeft, border.TopTee, border.TopRight))
	}
	if len(tf.headers) > 0 {
		b.WriteString(tf.renderRow(tf.headers, widths, true))
		if tf.style.HeaderSeparator && border.Horizontal != "" {
			b.WriteString(tf.rule(widths, border.LeftTee, border.Cross, border.RightTee))
		}
	}
	for _, row := range tf.rows {
		b.WriteString(tf.renderRow(row, widths, false))
	}
	if border.Horizontal != "" {
		b.WriteString(tf.rule(widths, border.BottomLeft, border.BottomTee, border.BottomRight))
	}
	return b.String()
}

// RenderTo renders the table to the specified writer
func (tf *TableFormatter) RenderTo(w io.Writer) {
	fmt.Fprint(w, tf.Render())
}

func (tf *TableFormatter) columnCount() int {
	n := len(tf.headers)
	for _, row := range tf.rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// columnWidths returns the content width of each column
func (tf *TableFormatter) columnWidths() []int {
	widths := make([]int, tf.columnCount())
	measure := func(row []string) {
		for i, cell := range row {
			if w := visibleWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(tf.headers)
	for _, row := range tf.rows {
		measure(row)
	}
	return widths
}

// fitWidths shrinks the widest columns until the table fits the max width
func (tf *TableFormatter) fitWidths(widths []int) []int {
	limit := tf.maxWidth
	if limit == 0 {
		limit = terminalWidth()
	}
	if limit <= 0 {
		return widths
	}

	const minWidth = 4
	for tf.totalWidth(widths) > limit {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (tf *TableFormatter) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w + tf.style.Padding*2
	}
	if tf.style.BorderStyle.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (tf *TableFormatter) rule(widths []int, left, middle, right string) string {
	var b strings.Builder
	b.WriteString(left)
	for i, w := range widths {
		b.WriteString(strings.Repeat(tf.style.BorderStyle.Horizontal, w+tf.style.Padding*2))
		if i < len(widths)-1 {
			b.WriteString(middle)
		}
	}
	b.WriteString(right)
	b.WriteString("\n")
	return b.String()
}

func (tf *TableFormatter) renderRow(row []string, widths []int, header bool) string {
	vertical := tf.style.BorderStyle.Vertical
	pad := strings.Repeat(" ", tf.style.Padding)

	var b strings.Builder
	b.WriteString(vertical)
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		cell = fitCell(cell, w, tf.alignments[i])
		if header && tf.colors != nil {
			cell = tf.colors.Colorize(cell, tf.theme.Primary)
		}
		b.WriteString(pad + cell + pad)
		b.WriteString(vertical)
	}
	return strings.TrimRight(b.String(), " ") + "\n"
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// visibleWidth counts the runes of s that occupy a terminal cell
func visibleWidth(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

// fitCell truncates or pads content to exactly width cells. Colored content is
// never truncated.
func fitCell(content string, width int, alignment Alignment) string {
	colored := ansiEscape.MatchString(content)
	if n := visibleWidth(content); n > width && !colored {
		runes := []rune(content)
		if width > 3 {
			return string(runes[:width-3]) + "..."
		}
		return string(runes[:width])
	}

	fill := ""
	if n := visibleWidth(content); n < width {
		fill = strings.Repeat(" ", width-n)
	}
	if alignment == AlignRight {
		return fill + content
	}
	return content + fill
}

// terminalWidth returns the width of stdout, or 0 when it is not a terminal
func terminalWidth() int {
	width, _, err := term.GetSize(1)
	if err != nil {
		return 0
	}
	return width
}

package report

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

// Format carries the inline styling accumulated while descending the markdown
// inline tree. Flags are only ever added on the way down: the accumulator is
// copied by value into each recursive call, so a child can never clear a flag
// set by an ancestor.
type Format struct {
	Bold   bool
	Italic bool
	Strike bool
	Mono   bool
}

// Run is one styled text fragment, or a hard line break when LineBreak is set.
type Run struct {
	Text      string
	Format    Format
	LineBreak bool
}

// BlockKind enumerates the visual element a parsed block maps to.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockList
	BlockTable
	BlockCode
	BlockQuote
	BlockRule
	BlockSpacer
)

// Block is one block-level element of the laid-out document.
type Block struct {
	Kind         BlockKind
	HeadingLevel int       // 1..3 for BlockHeading; deeper levels are bucketed to 3
	Runs         []Run     // heading, paragraph, quote
	Items        [][]Run   // list items, one flattened run sequence per item
	Header       [][]Run   // table header cells
	Rows         [][][]Run // table body rows
	Text         string    // code block and fallback raw text
	ColumnWidths []int64   // table column widths in twips
}

// Layout is the ordered block sequence produced from one markdown body.
type Layout struct {
	Blocks []Block
}

const (
	emptyBodyNotice = "No quotation content was available for this report."

	minColumnWidthTwips = 900
	maxColumnWidthTwips = 4800
	twipsPerCharacter   = 120
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// buildLayout parses the markdown body and maps every block token to a visual
// element. Malformed or unknown constructs degrade to plain text; an empty
// body yields the single error-notice paragraph.
func buildLayout(bodyMarkdown string, logger *zap.Logger) Layout {
	if strings.TrimSpace(bodyMarkdown) == "" {
		return Layout{Blocks: []Block{{
			Kind: BlockParagraph,
			Runs: []Run{{Text: emptyBodyNotice}},
		}}}
	}

	source := []byte(bodyMarkdown)
	root := markdown.Parser().Parse(text.NewReader(source))

	var blocks []Block
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		blocks = append(blocks, mapBlock(node, source, logger))
	}
	if len(blocks) == 0 {
		blocks = []Block{{Kind: BlockParagraph, Runs: []Run{{Text: emptyBodyNotice}}}}
	}
	return Layout{Blocks: blocks}
}

func mapBlock(node ast.Node, source []byte, logger *zap.Logger) Block {
	switch n := node.(type) {
	case *ast.Heading:
		return Block{
			Kind:         BlockHeading,
			HeadingLevel: bucketHeadingLevel(n.Level),
			Runs:         flattenChildren(n, source, Format{}),
		}
	case *ast.Paragraph:
		return Block{Kind: BlockParagraph, Runs: flattenChildren(n, source, Format{})}
	case *ast.TextBlock:
		return Block{Kind: BlockParagraph, Runs: flattenChildren(n, source, Format{})}
	case *ast.List:
		return mapList(n, source)
	case *extast.Table:
		return mapTable(n, source)
	case *ast.FencedCodeBlock:
		return Block{Kind: BlockCode, Text: blockLines(n, source)}
	case *ast.CodeBlock:
		return Block{Kind: BlockCode, Text: blockLines(n, source)}
	case *ast.Blockquote:
		return Block{Kind: BlockQuote, Runs: flattenBlockContent(n, source)}
	case *ast.ThematicBreak:
		return Block{Kind: BlockRule}
	default:
		raw := strings.TrimSpace(rawText(node, source))
		if raw == "" {
			return Block{Kind: BlockSpacer}
		}
		logger.Warn("unrecognized markdown block rendered as plain text",
			zap.String("kind", node.Kind().String()))
		return Block{Kind: BlockParagraph, Text: raw}
	}
}

// bucketHeadingLevel maps markdown heading levels onto the three defined
// heading styles: level 1 takes the largest, level 2 the middle, and every
// deeper level the smallest.
func bucketHeadingLevel(level int) int {
	switch {
	case level <= 1:
		return 1
	case level == 2:
		return 2
	default:
		return 3
	}
}

// mapList flattens each item to a single run sequence. Nested lists degrade
// into their parent item's flattened text.
func mapList(list *ast.List, source []byte) Block {
	var items [][]Run
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		items = append(items, listItemRuns(item, source))
	}
	return Block{Kind: BlockList, Items: items}
}

func listItemRuns(item ast.Node, source []byte) []Run {
	var runs []Run
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		var sub []Run
		if nested, ok := child.(*ast.List); ok {
			for nestedItem := nested.FirstChild(); nestedItem != nil; nestedItem = nestedItem.NextSibling() {
				itemRuns := listItemRuns(nestedItem, source)
				if len(sub) > 0 && len(itemRuns) > 0 {
					sub = append(sub, Run{Text: " "})
				}
				sub = append(sub, itemRuns...)
			}
		} else {
			sub = flattenChildren(child, source, Format{})
		}
		if len(runs) > 0 && len(sub) > 0 {
			runs = append(runs, Run{Text: " "})
		}
		runs = append(runs, sub...)
	}
	return runs
}

// mapTable derives the column count from the header row; ragged body rows are
// padded or truncated so every emitted row has exactly that many cells.
func mapTable(table *extast.Table, source []byte) Block {
	var header [][]Run
	var rows [][][]Run

	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		cells := tableRowCells(child, source)
		if _, ok := child.(*extast.TableHeader); ok {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}

	columns := len(header)
	if columns == 0 && len(rows) > 0 {
		columns = len(rows[0])
	}
	for i, row := range rows {
		for len(row) < columns {
			row = append(row, nil)
		}
		rows[i] = row[:columns]
	}

	return Block{
		Kind:         BlockTable,
		Header:       header,
		Rows:         rows,
		ColumnWidths: columnWidths(header, rows, columns),
	}
}

func tableRowCells(row ast.Node, source []byte) [][]Run {
	var cells [][]Run
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		cells = append(cells, flattenChildren(cell, source, Format{}))
	}
	return cells
}

// columnWidths sizes each column from its longest cell content, clamped to a
// fixed range, each column independent of the others.
func columnWidths(header [][]Run, rows [][][]Run, columns int) []int64 {
	widths := make([]int64, columns)
	for col := 0; col < columns; col++ {
		longest := 0
		if col < len(header) {
			if n := runTextLength(header[col]); n > longest {
				longest = n
			}
		}
		for _, row := range rows {
			if col < len(row) {
				if n := runTextLength(row[col]); n > longest {
					longest = n
				}
			}
		}
		width := int64(longest) * twipsPerCharacter
		if width < minColumnWidthTwips {
			width = minColumnWidthTwips
		}
		if width > maxColumnWidthTwips {
			width = maxColumnWidthTwips
		}
		widths[col] = width
	}
	return widths
}

func runTextLength(runs []Run) int {
	total := 0
	for _, run := range runs {
		total += len([]rune(run.Text))
	}
	return total
}

// flattenChildren walks a node's inline children accumulating format state.
func flattenChildren(parent ast.Node, source []byte, format Format) []Run {
	var runs []Run
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		runs = append(runs, flattenInline(child, source, format)...)
	}
	return runs
}

func flattenInline(node ast.Node, source []byte, format Format) []Run {
	switch n := node.(type) {
	case *ast.Text:
		runs := []Run{{Text: string(n.Segment.Value(source)), Format: format}}
		if n.HardLineBreak() {
			runs = append(runs, Run{Format: format, LineBreak: true})
		} else if n.SoftLineBreak() {
			runs = append(runs, Run{Text: " ", Format: format})
		}
		return runs
	case *ast.String:
		return []Run{{Text: string(n.Value), Format: format}}
	case *ast.Emphasis:
		child := format
		if n.Level >= 2 {
			child.Bold = true
		} else {
			child.Italic = true
		}
		return flattenChildren(n, source, child)
	case *extast.Strikethrough:
		child := format
		child.Strike = true
		return flattenChildren(n, source, child)
	case *ast.CodeSpan:
		child := format
		child.Mono = true
		return flattenChildren(n, source, child)
	case *ast.Link:
		runs := flattenChildren(n, source, format)
		trailing := format
		trailing.Italic = true
		return append(runs, Run{Text: " (" + string(n.Destination) + ")", Format: trailing})
	case *ast.AutoLink:
		return []Run{{Text: string(n.URL(source)), Format: format}}
	case *ast.Image:
		runs := flattenChildren(n, source, format)
		trailing := format
		trailing.Italic = true
		return append(runs, Run{Text: " (" + string(n.Destination) + ")", Format: trailing})
	case *ast.RawHTML:
		var sb strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			segment := n.Segments.At(i)
			sb.Write(segment.Value(source))
		}
		return []Run{{Text: sb.String(), Format: format}}
	default:
		if node.HasChildren() {
			return flattenChildren(node, source, format)
		}
		if raw := rawText(node, source); raw != "" {
			return []Run{{Text: raw, Format: format}}
		}
		return nil
	}
}

// flattenBlockContent collapses a container's block children (paragraphs and
// the like) into one run sequence.
func flattenBlockContent(parent ast.Node, source []byte) []Run {
	var runs []Run
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		sub := flattenChildren(child, source, Format{})
		if len(runs) > 0 && len(sub) > 0 {
			runs = append(runs, Run{Text: " "})
		}
		runs = append(runs, sub...)
	}
	return runs
}

func blockLines(node ast.Node, source []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		sb.Write(segment.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func rawText(node ast.Node, source []byte) string {
	if node.Type() == ast.TypeBlock {
		if text := blockLines(node, source); text != "" {
			return text
		}
	}
	var sb strings.Builder
	for _, run := range flattenChildren(node, source, Format{}) {
		sb.WriteString(run.Text)
	}
	return sb.String()
}

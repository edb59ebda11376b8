package report

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fumiama/go-docx"
)

const (
	titleFontSize   = "40" // half-points
	captionFontSize = "20"
	captionColor    = "999999"
	monoFont        = "Courier New"
	headerShadeFill = "D9D9D9"
	bulletPrefix    = "• "
	ruleText        = "________________________________________"
)

// The three heading styles; deeper levels were already bucketed to 3.
var headingSizes = map[int]string{1: "32", 2: "28", 3: "24"}

// emitDocument serializes the laid-out blocks to DOCX, framed by a title
// block, a generation-date block and a closing caption.
func emitDocument(title string, generatedOn time.Time, layout Layout) ([]byte, error) {
	doc := docx.New().WithDefaultTheme()

	titlePara := doc.AddParagraph()
	titlePara.Justification("center")
	titlePara.AddText("Software Project Quotation: " + title).Size(titleFontSize).Bold()
	doc.AddParagraph()
	doc.AddParagraph().AddText("Generated on: " + generatedOn.Format("January 2, 2006")).Italic()
	doc.AddParagraph()

	for _, block := range layout.Blocks {
		emitBlock(doc, block)
	}

	doc.AddParagraph()
	captionPara := doc.AddParagraph()
	captionPara.Justification("center")
	captionPara.AddText("--- End of Report ---").Italic().Color(captionColor).Size(captionFontSize)

	var buffer bytes.Buffer
	if _, err := doc.WriteTo(&buffer); err != nil {
		return nil, err
	}
	return normalizeArchive(buffer.Bytes())
}

// normalizeArchive repacks the zip container with its entries in name order
// and zeroed timestamps. The document library emits entries in map-iteration
// order, which would make identical documents serialize to different bytes.
func normalizeArchive(data []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	entries := make([]*zip.File, len(reader.File))
	copy(entries, reader.File)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	var out bytes.Buffer
	writer := zip.NewWriter(&out)
	for _, entry := range entries {
		if err := copyArchiveEntry(writer, entry); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func copyArchiveEntry(writer *zip.Writer, entry *zip.File) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := writer.CreateHeader(&zip.FileHeader{
		Name:   entry.Name,
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

func emitBlock(doc *docx.Docx, block Block) {
	switch block.Kind {
	case BlockHeading:
		size := headingSizes[block.HeadingLevel]
		para := doc.AddParagraph()
		writeRuns(doc, para, block.Runs, func(r *docx.Run) {
			r.Size(size).Bold()
		})
	case BlockParagraph:
		para := doc.AddParagraph()
		if block.Text != "" {
			para.AddText(block.Text)
			return
		}
		writeRuns(doc, para, block.Runs, nil)
	case BlockList:
		for _, item := range block.Items {
			para := doc.AddParagraph()
			para.AddText("").AddTab()
			para.AddText(bulletPrefix)
			writeRuns(doc, para, item, nil)
		}
	case BlockTable:
		emitTable(doc, block)
	case BlockCode:
		for _, line := range strings.Split(block.Text, "\n") {
			para := doc.AddParagraph()
			if line == "" {
				continue
			}
			para.AddText(line).Font(monoFont, "", monoFont, "")
		}
	case BlockQuote:
		para := doc.AddParagraph()
		para.AddText("").AddTab()
		writeRuns(doc, para, block.Runs, nil)
	case BlockRule:
		doc.AddParagraph().AddText(ruleText).Color(captionColor)
	case BlockSpacer:
		doc.AddParagraph()
	}
}

func emitTable(doc *docx.Docx, block Block) {
	columns := len(block.ColumnWidths)
	if columns == 0 {
		return
	}
	rowCount := len(block.Rows)
	hasHeader := len(block.Header) > 0
	if hasHeader {
		rowCount++
	}
	if rowCount == 0 {
		return
	}

	var tableWidth int64
	for _, width := range block.ColumnWidths {
		tableWidth += width
	}
	rowHeights := make([]int64, rowCount)
	table := doc.AddTableTwips(rowHeights, block.ColumnWidths, tableWidth, nil)

	rowIndex := 0
	if hasHeader {
		fillTableRow(table.TableRows[0], block.Header, true)
		rowIndex = 1
	}
	for _, row := range block.Rows {
		fillTableRow(table.TableRows[rowIndex], row, false)
		rowIndex++
	}
}

func fillTableRow(row *docx.WTableRow, cells [][]Run, header bool) {
	for i, cellRuns := range cells {
		if i >= len(row.TableCells) {
			break
		}
		para := row.TableCells[i].AddParagraph()
		for _, run := range cellRuns {
			if run.LineBreak || run.Text == "" {
				continue
			}
			r := para.AddText(run.Text)
			applyFormat(r, run.Format)
			if header {
				r.Bold().Shade("clear", "auto", headerShadeFill)
			}
		}
	}
}

// writeRuns appends styled runs to the paragraph, starting a fresh paragraph
// at each hard line break.
func writeRuns(doc *docx.Docx, para *docx.Paragraph, runs []Run, decorate func(*docx.Run)) {
	current := para
	for _, run := range runs {
		if run.LineBreak {
			current = doc.AddParagraph()
			continue
		}
		if run.Text == "" {
			continue
		}
		r := current.AddText(run.Text)
		applyFormat(r, run.Format)
		if decorate != nil {
			decorate(r)
		}
	}
}

func applyFormat(r *docx.Run, format Format) {
	if format.Bold {
		r.Bold()
	}
	if format.Italic {
		r.Italic()
	}
	if format.Strike {
		r.Strike(true)
	}
	if format.Mono {
		r.Font(monoFont, "", monoFont, "")
	}
}

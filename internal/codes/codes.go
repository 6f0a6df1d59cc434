package codes

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// headerMarker identifies the lookup-code column header cell.
const headerMarker = "MÃ TRA CỨU"

// portalDomain identifies portal URLs embedded in spreadsheet cells.
const portalDomain = "vnpt-invoice.com.vn"

// ParseResult holds the codes extracted from a spreadsheet.
type ParseResult struct {
	Codes       []string
	DetectedURL string
	SheetName   string
	TotalRows   int
}

// ParseFile reads the first sheet of an XLSX file, locates the lookup-code
// column by its header marker, and returns the valid codes below it. It also
// scans all cells for an embedded portal URL.
func ParseFile(path string) (*ParseResult, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "codes: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("codes: no worksheets in file")
	}
	sheet := f.Sheets[0]

	result := &ParseResult{
		SheetName: sheet.Name,
		TotalRows: len(sheet.Rows),
	}

	headerRow, codeCol := -1, -1
	for i, row := range sheet.Rows {
		for j, cell := range row.Cells {
			text := cell.String()
			if text == "" {
				continue
			}
			if headerRow < 0 && strings.Contains(strings.ToUpper(text), headerMarker) {
				headerRow, codeCol = i, j
			}
			if result.DetectedURL == "" {
				if url, ok := extractPortalURL(text); ok {
					result.DetectedURL = url
				}
			}
		}
	}

	if headerRow < 0 {
		return nil, eris.Errorf("codes: header %q not found in sheet %s", headerMarker, sheet.Name)
	}

	for i := headerRow + 1; i < len(sheet.Rows); i++ {
		row := sheet.Rows[i]
		if codeCol >= len(row.Cells) {
			continue
		}
		value := strings.TrimSpace(row.Cells[codeCol].String())
		if IsValidCode(value) {
			result.Codes = append(result.Codes, value)
		}
	}

	return result, nil
}

// IsValidCode reports whether value looks like a lookup code (e.g.
// C25TLK0019654_Ln) rather than header or signature noise.
func IsValidCode(value string) bool {
	return len(value) > 5 &&
		strings.Contains(value, "C") &&
		strings.Contains(value, "_")
}

// extractPortalURL pulls an http(s) portal URL out of free-form cell text.
func extractPortalURL(text string) (string, bool) {
	for _, prefix := range []string{"https://", "http://"} {
		idx := strings.Index(text, prefix)
		if idx < 0 {
			continue
		}
		rest := text[idx:]
		end := strings.IndexFunc(rest, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '"' || r == '\''
		})
		if end < 0 {
			end = len(rest)
		}
		url := rest[:end]
		if strings.Contains(url, portalDomain) {
			return url, true
		}
	}
	return "", false
}

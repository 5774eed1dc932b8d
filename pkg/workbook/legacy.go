package workbook

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/extrame/xls"
)

// compoundFileMagic opens every OLE2 container, which is how BIFF workbooks are stored.
var compoundFileMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func isCompoundFile(data []byte) bool {
	return bytes.HasPrefix(data, compoundFileMagic)
}

// decodeLegacy reads the first sheet of a BIFF workbook. The reader panics on
// some malformed streams, so a panic is reported as ErrFormat.
func decodeLegacy(data []byte) (records []Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("%w: unreadable xls: %v", ErrFormat, r)
		}
	}()
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrFormat)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrFormat)
	}
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol()+1)
		for c := 0; c <= row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, trimTrailingBlank(cells))
	}
	return projectRows(rows, func(_, _ int, raw string) any {
		return legacyValue(raw)
	}), nil
}

// legacyValue types a BIFF cell from its text. The reader formats every cell
// as a string, so only text that round-trips as a number becomes one.
func legacyValue(raw string) any {
	if raw == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil && strconv.FormatFloat(n, 'f', -1, 64) == raw {
		return n
	}
	switch strings.ToUpper(raw) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	return raw
}

func trimTrailingBlank(cells []string) []string {
	end := len(cells)
	for end > 0 && strings.TrimSpace(cells[end-1]) == "" {
		end--
	}
	return cells[:end]
}

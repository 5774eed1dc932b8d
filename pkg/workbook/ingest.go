package workbook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	defaultMaxBytes = 20 << 20
	emptyHeader     = "__EMPTY"
)

// Ingester fetches workbooks by URL and projects their first sheet into records.
type Ingester struct {
	client   *http.Client
	maxBytes int64
}

// NewIngester returns an Ingester. A nil client gets a 60s timeout; maxBytes <= 0 caps bodies at 20 MiB.
func NewIngester(client *http.Client, maxBytes int64) *Ingester {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Ingester{client: client, maxBytes: maxBytes}
}

// Ingest fetches url and decodes the first sheet. Transport failures never reach the decoder.
func (i *Ingester) Ingest(ctx context.Context, url string) ([]Record, error) {
	data, err := i.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Fetch downloads the raw workbook bytes.
func (i *Ingester) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: download failed: %s", ErrTransport, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrTransport, i.maxBytes)
	}
	return data, nil
}

// Decode opens data as a workbook and returns the rows of its first sheet.
// OOXML (.xlsx) and legacy BIFF (.xls) workbooks are both accepted.
func Decode(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrFormat)
	}
	if isCompoundFile(data) {
		return decodeLegacy(data)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrFormat)
	}
	sheet := sheets[0]
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", ErrFormat, err)
	}
	return projectRows(rows, func(col, row int, raw string) any {
		return cellValue(f, sheet, col, row, raw)
	}), nil
}

// projectRows turns a sheet grid into records keyed by its header row.
// value converts the raw text at a zero-based grid position.
func projectRows(rows [][]string, value func(col, row int, raw string) any) []Record {
	// The header is the first row of the used range, which need not start at A1.
	start := 0
	for start < len(rows) && blankRow(rows[start]) {
		start++
	}
	records := make([]Record, 0)
	if len(rows)-start < 2 {
		return records
	}
	offset := firstUsedColumn(rows[start:])
	header := skipColumns(rows[start], offset)
	headers := newHeaderSet(header)
	width := len(header)
	for r := start + 1; r < len(rows); r++ {
		row := skipColumns(rows[r], offset)
		if blankRow(row) {
			continue
		}
		rec := NewRecord()
		for c := 0; c < width || c < len(row); c++ {
			raw := ""
			if c < len(row) {
				raw = row[c]
			}
			if c >= width && raw == "" {
				continue
			}
			rec.Set(headers.key(c), value(offset+c, r, raw))
		}
		records = append(records, rec)
	}
	return records
}

// firstUsedColumn is the smallest column index holding a non-blank cell.
func firstUsedColumn(rows [][]string) int {
	first := -1
	for _, row := range rows {
		for c, cell := range row {
			if first >= 0 && c >= first {
				break
			}
			if strings.TrimSpace(cell) != "" {
				first = c
				break
			}
		}
	}
	if first < 0 {
		return 0
	}
	return first
}

func skipColumns(row []string, n int) []string {
	if n >= len(row) {
		return nil
	}
	return row[n:]
}

func cellValue(f *excelize.File, sheet string, col, row int, raw string) any {
	if raw == "" {
		return nil
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return raw
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return raw
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
		return raw
	default:
		return raw
	}
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// headerSet names columns: blank headers become __EMPTY, __EMPTY_1, ...
// and repeated headers get _1, _2 suffixes.
type headerSet struct {
	keys []string
	used map[string]bool
	seen map[string]int
}

func newHeaderSet(header []string) *headerSet {
	h := &headerSet{used: map[string]bool{}, seen: map[string]int{}}
	for _, name := range header {
		h.add(name)
	}
	return h
}

func (h *headerSet) add(name string) {
	base := name
	if strings.TrimSpace(base) == "" {
		base = emptyHeader
	}
	key := base
	n := h.seen[base]
	for h.used[key] {
		n++
		key = base + "_" + strconv.Itoa(n)
	}
	h.seen[base] = n
	h.used[key] = true
	h.keys = append(h.keys, key)
}

func (h *headerSet) key(col int) string {
	for len(h.keys) <= col {
		h.add("")
	}
	return h.keys[col]
}

package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"catalogpanel/pkg/workbook"
)

func xlsxBytes(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func sheetUpload(name string, data []byte) FileUpload {
	return FileUpload{Name: name, Size: int64(len(data)), Body: bytes.NewReader(data)}
}

func TestUploadSheetNamesAndValidates(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()

	file, err := env.app.UploadSheet(ctx, sheetUpload("prices_2024.xlsx", []byte("x")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	wantName := fmt.Sprintf("%d_prices_2024.xlsx", testEpoch.UnixMilli())
	if file.Name != wantName || file.DisplayName != "prices_2024.xlsx" {
		t.Fatalf("unexpected file: %+v", file)
	}
	if !file.UploadedAt.Equal(testEpoch) {
		t.Fatalf("uploadedAt = %v", file.UploadedAt)
	}
	if file.URL != env.baseURL+"/files/sheets/"+wantName {
		t.Fatalf("url = %q", file.URL)
	}

	if _, err := env.app.UploadSheet(ctx, sheetUpload("report.csv", []byte("a,b"))); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	if _, err := env.app.UploadSheet(ctx, FileUpload{Name: "", Body: strings.NewReader("x")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListSheetsKeepsNewestBeyondLimit(t *testing.T) {
	var tick atomic.Int64
	env := newTestEnv(t, testOptions{listLimit: 2, now: func() time.Time {
		return testEpoch.Add(time.Duration(tick.Add(1)) * time.Minute)
	}})
	ctx := context.Background()
	// keys sort oldest first, so a cut in key order would drop the newest
	for _, name := range []string{"z-old.xlsx", "m-mid.xlsx", "a-new.xlsx"} {
		if _, err := env.app.UploadSheet(ctx, sheetUpload(name, []byte("data"))); err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
	}
	page, err := env.app.ListSheets(ctx, SheetQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].DisplayName != "a-new.xlsx" || page.Items[1].DisplayName != "m-mid.xlsx" {
		t.Fatalf("limit must keep the newest sheets, got %v, %v", page.Items[0].DisplayName, page.Items[1].DisplayName)
	}
}

func TestListSheetsNewestFirstWithSearch(t *testing.T) {
	var tick atomic.Int64
	env := newTestEnv(t, testOptions{now: func() time.Time {
		return testEpoch.Add(time.Duration(tick.Add(1)) * time.Minute)
	}})
	ctx := context.Background()
	for _, name := range []string{"January Sales.xlsx", "stock.xls", "february sales.xlsx"} {
		if _, err := env.app.UploadSheet(ctx, sheetUpload(name, []byte("data"))); err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
	}

	page, err := env.app.ListSheets(ctx, SheetQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.Matched != 3 || len(page.Items) != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
	got := []string{page.Items[0].DisplayName, page.Items[1].DisplayName, page.Items[2].DisplayName}
	want := []string{"february sales.xlsx", "stock.xls", "January Sales.xlsx"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if page.Items[0].Size != 4 {
		t.Fatalf("size = %d", page.Items[0].Size)
	}

	page, err = env.app.ListSheets(ctx, SheetQuery{Search: "SALES", PerPage: 1, Page: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 3 || page.Matched != 2 || page.TotalPages != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected search page: %+v", page)
	}
	if page.Items[0].DisplayName != "January Sales.xlsx" {
		t.Fatalf("page 2 item = %q", page.Items[0].DisplayName)
	}
}

func TestDeleteAndOpenSheet(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	file, err := env.app.UploadSheet(ctx, sheetUpload("stock.xlsx", []byte("payload")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	rc, info, err := env.app.OpenSheet(ctx, file.Name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" || info.DisplayName != "stock.xlsx" {
		t.Fatalf("unexpected download: %q %+v", body, info)
	}

	if err := env.app.DeleteSheet(ctx, file.Name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := env.app.OpenSheet(ctx, file.Name); !errors.Is(err, ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
	if err := env.app.DeleteSheet(ctx, "../config.yaml"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for path name, got %v", err)
	}
}

func TestShareSheetBuildsViewerAndMessageLinks(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	link, err := env.app.ShareSheet("1717232400000_تقرير مارس.xlsx")
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	wantView := "https://panel.example.com/dashboard/sheets/view/" + url.PathEscape("1717232400000_تقرير مارس.xlsx")
	if link.ViewURL != wantView {
		t.Fatalf("view url = %q, want %q", link.ViewURL, wantView)
	}
	u, err := url.Parse(link.ShareURL)
	if err != nil {
		t.Fatalf("parse share url: %v", err)
	}
	if u.Host != "wa.me" {
		t.Fatalf("share host = %q", u.Host)
	}
	if got := u.Query().Get("text"); got != "رابط الملف للعرض فقط: "+wantView {
		t.Fatalf("share text = %q", got)
	}
	if _, err := env.app.ShareSheet(" "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPreviewSheetReadsStoredWorkbook(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	data := xlsxBytes(t, []any{"Name", "Qty"}, []any{"Pen", 10}, []any{"Book"})
	file, err := env.app.UploadSheet(ctx, sheetUpload("stock.xlsx", data))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	preview, err := env.app.PreviewSheet(ctx, file.Name)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Title != "stock.xlsx" || preview.URL != file.URL || len(preview.Records) != 2 {
		t.Fatalf("unexpected preview: %+v", preview)
	}
	if qty, _ := preview.Records[0].Get("Qty"); qty != float64(10) {
		t.Fatalf("qty = %#v", qty)
	}
	if len(preview.Table.Columns) != 2 || preview.Table.Rows[1][1] != "" {
		t.Fatalf("unexpected table: %+v", preview.Table)
	}

	byURL, err := env.app.PreviewURL(ctx, file.URL)
	if err != nil {
		t.Fatalf("preview url: %v", err)
	}
	if byURL.Name != file.Name || byURL.Title != "stock.xlsx" {
		t.Fatalf("unexpected url preview: %+v", byURL)
	}
}

func TestPreviewURLOnlyFetchesLibraryOrAllowedHosts(t *testing.T) {
	var hits atomic.Int32
	data := xlsxBytes(t, []any{"Name"}, []any{"Pen"})
	partner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(data)
	}))
	t.Cleanup(partner.Close)
	partnerURL, _ := url.Parse(partner.URL)

	env := newTestEnv(t, testOptions{previewHost: partnerURL.Host})
	ctx := context.Background()

	rejected := []string{
		"http://169.254.169.254/latest/meta-data/",
		"http://internal.example:8080/stock.xlsx",
		env.baseURL + "/files/images/1-pen.png",
		env.baseURL + "/files/sheets/../images/1-pen.png",
		env.baseURL + "/files/sheets/",
		strings.Replace(env.baseURL, "http://", "http://user:pw@", 1) + "/files/sheets/1_a.xlsx",
	}
	for _, raw := range rejected {
		if _, err := env.app.PreviewURL(ctx, raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("PreviewURL(%q) expected ErrInvalidInput, got %v", raw, err)
		}
	}

	preview, err := env.app.PreviewURL(ctx, partner.URL+"/exports/1717232400000_stock.xlsx")
	if err != nil {
		t.Fatalf("allowed host: %v", err)
	}
	if hits.Load() != 1 || len(preview.Records) != 1 || preview.Title != "stock.xlsx" {
		t.Fatalf("unexpected preview from allowed host: hits=%d %+v", hits.Load(), preview)
	}
}

func TestPreviewSheetFailures(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()

	if _, err := env.app.PreviewSheet(ctx, "1_missing.xlsx"); !errors.Is(err, workbook.ErrTransport) {
		t.Fatalf("expected ErrTransport for a missing file, got %v", err)
	}

	file, err := env.app.UploadSheet(ctx, sheetUpload("broken.xlsx", []byte("not a workbook")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := env.app.PreviewSheet(ctx, file.Name); !errors.Is(err, workbook.ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	if _, err := env.app.PreviewURL(ctx, "ftp://example.com/a.xlsx"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

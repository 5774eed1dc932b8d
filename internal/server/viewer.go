package server

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"catalogpanel/internal/app"
	"catalogpanel/internal/util"
	"catalogpanel/pkg/workbook"
)

const (
	noticeInvalidName = "اسم الملف غير صالح"
	noticeFetchFailed = "تعذر الحصول على الملف، حاول مرة أخرى لاحقاً"
	noticeBadFormat   = "تعذر قراءة الملف أو الملف غير صالح"
	noticeEmpty       = "الملف فارغ أو لا يحتوي على بيانات قابلة للعرض"
	noticeFailed      = "حدث خطأ غير متوقع"
)

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!doctype html>
<html lang="ar" dir="rtl">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>عرض ملف الإكسل</title>
<style>
body{margin:0;font-family:system-ui,sans-serif;background:#eef2ff;color:#1f2937}
main{max-width:64rem;margin:2rem auto;background:#fff;border-radius:1rem;padding:2rem;box-shadow:0 10px 25px rgba(0,0,0,.08)}
h1{font-size:1.5rem;margin:0 0 1rem}
.name{color:#4b5563;word-break:break-all;margin-bottom:1rem}
.notice{color:#dc2626}
.empty{color:#6b7280}
.scroll{overflow-x:auto}
table{border-collapse:collapse;min-width:100%}
th,td{padding:.75rem 1.5rem;text-align:right;white-space:nowrap;border-bottom:1px solid #e5e7eb}
th{background:#f9fafb;font-size:.75rem;color:#6b7280}
</style>
</head>
<body>
<main>
<h1>عرض ملف الإكسل</h1>
<p class="name">{{.Title}}</p>
{{if .Notice}}<div class="notice">{{.Notice}}</div>
{{else if .Table.Empty}}<div class="empty">{{.EmptyNotice}}</div>
{{else}}<div class="scroll"><table>
<thead><tr>{{range .Table.Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Table.Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
</table></div>
{{end}}</main>
</body>
</html>
`))

type viewerPage struct {
	Title       string
	Notice      string
	EmptyNotice string
	Table       workbook.Table
}

// handleSheetView renders the public read-only page for a shared sheet.
// Failures render a notice instead of a partial table.
func (s *Server) handleSheetView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/dashboard/sheets/view/")
	page := viewerPage{Title: name, EmptyNotice: noticeEmpty}

	status := http.StatusOK
	preview, err := s.app.PreviewSheet(r.Context(), name)
	if err != nil {
		status, page.Notice = viewerNotice(err)
		util.LoggerFromContext(r.Context()).Warn("sheet view failed", "sheet", name, "err", err)
	} else {
		page.Title = preview.Title
		page.Table = preview.Table
	}

	var buf bytes.Buffer
	if err := viewerTemplate.Execute(&buf, page); err != nil {
		util.LoggerFromContext(r.Context()).Error("render sheet view", "err", err)
		http.Error(w, noticeFailed, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Security-Policy", util.PageContentSecurityPolicy)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func viewerNotice(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest, noticeInvalidName
	case errors.Is(err, workbook.ErrTransport):
		return http.StatusBadGateway, noticeFetchFailed
	case errors.Is(err, workbook.ErrFormat):
		return http.StatusUnprocessableEntity, noticeBadFormat
	default:
		return http.StatusInternalServerError, noticeFailed
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"catalogpanel/internal/util"
	"catalogpanel/pkg/domain"
	"catalogpanel/pkg/storage"
	"catalogpanel/pkg/workbook"
)

const (
	sheetViewPath = "/dashboard/sheets/view/"
	shareBaseURL  = "https://wa.me/?text="
	shareMessage  = "رابط الملف للعرض فقط: "
)

var sheetContentTypes = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
}

// SheetQuery filters and pages the sheet library.
type SheetQuery struct {
	Search  string
	Page    int
	PerPage int
}

// SheetPage is one page of the library. Total counts every listed file,
// Matched only those passing the search.
type SheetPage struct {
	Items      []domain.SheetFile `json:"items"`
	Total      int                `json:"total"`
	Matched    int                `json:"matched"`
	Page       int                `json:"page"`
	PerPage    int                `json:"perPage"`
	TotalPages int                `json:"totalPages"`
}

// SheetPreview is the first sheet of a workbook, as records and as a table.
type SheetPreview struct {
	Name    string            `json:"name"`
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	Records []workbook.Record `json:"records"`
	Table   workbook.Table    `json:"table"`
}

// UploadSheet stores a workbook under "{epochMillis}_{name}".
func (a *App) UploadSheet(ctx context.Context, f FileUpload) (domain.SheetFile, error) {
	name := baseName(f.Name)
	if name == "" || f.Body == nil {
		return domain.SheetFile{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	ext := strings.ToLower(path.Ext(name))
	if _, ok := a.sheetExtensions[ext]; !ok {
		return domain.SheetFile{}, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}
	if a.maxSheetBytes > 0 && f.Size > a.maxSheetBytes {
		return domain.SheetFile{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, name, a.maxSheetBytes)
	}
	key := sheetObjectName(a.now(), name)
	contentType := sheetContentTypes[ext]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.sheets.Put(ctx, key, f.Body, f.Size, contentType); err != nil {
		return domain.SheetFile{}, fmt.Errorf("upload sheet: %w", err)
	}
	util.LoggerFromContext(ctx).Info("sheet uploaded", "name", key, "size", f.Size)
	return a.sheetFile(storage.ObjectInfo{Key: key, Size: f.Size}), nil
}

// ListSheets lists the newest sheetListLimit sheets, newest first, filtered
// by display name. Object stores list in key order, so the whole bucket is
// read before the cut.
func (a *App) ListSheets(ctx context.Context, q SheetQuery) (SheetPage, error) {
	objects, err := a.sheets.List(ctx, 0)
	if err != nil {
		return SheetPage{}, fmt.Errorf("list sheets: %w", err)
	}
	files := make([]domain.SheetFile, 0, len(objects))
	for _, obj := range objects {
		files = append(files, a.sheetFile(obj))
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].Name < files[j].Name
	})
	if len(files) > a.sheetListLimit {
		files = files[:a.sheetListLimit]
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := files
	if search != "" {
		matched = make([]domain.SheetFile, 0, len(files))
		for _, f := range files {
			if strings.Contains(strings.ToLower(f.DisplayName), search) {
				matched = append(matched, f)
			}
		}
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	items, page, totalPages := paginate(matched, q.Page, perPage)
	return SheetPage{
		Items:      items,
		Total:      len(files),
		Matched:    len(matched),
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// DeleteSheet removes a workbook from the library.
func (a *App) DeleteSheet(ctx context.Context, name string) error {
	if err := checkSheetName(name); err != nil {
		return err
	}
	if err := a.sheets.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	util.LoggerFromContext(ctx).Info("sheet deleted", "name", name)
	return nil
}

// OpenSheet returns the stored bytes for download. The caller closes the reader.
func (a *App) OpenSheet(ctx context.Context, name string) (io.ReadCloser, domain.SheetFile, error) {
	if err := checkSheetName(name); err != nil {
		return nil, domain.SheetFile{}, err
	}
	rc, info, err := a.sheets.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.SheetFile{}, ErrSheetNotFound
		}
		return nil, domain.SheetFile{}, fmt.Errorf("open sheet: %w", err)
	}
	if info.Key == "" {
		info.Key = name
	}
	return rc, a.sheetFile(info), nil
}

// PreviewSheet resolves the sheet's public URL and runs the workbook pipeline on it.
func (a *App) PreviewSheet(ctx context.Context, name string) (SheetPreview, error) {
	if err := checkSheetName(name); err != nil {
		return SheetPreview{}, err
	}
	file := a.sheetFile(storage.ObjectInfo{Key: name})
	return a.preview(ctx, file.URL, file.Name, file.DisplayName)
}

// PreviewURL runs the workbook pipeline on an already public URL.
func (a *App) PreviewURL(ctx context.Context, rawURL string) (SheetPreview, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return SheetPreview{}, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidInput)
	}
	if !a.previewAllowed(u) {
		return SheetPreview{}, fmt.Errorf("%w: url is outside the sheet library", ErrInvalidInput)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	display, _ := parseSheetName(name)
	return a.preview(ctx, rawURL, name, display)
}

// previewAllowed accepts URLs under the sheets store's public prefix and
// any URL on a configured preview host.
func (a *App) previewAllowed(u *url.URL) bool {
	if _, ok := a.previewHosts[strings.ToLower(u.Host)]; ok {
		return true
	}
	base, err := url.Parse(a.sheets.PublicURL(""))
	if err != nil || base.Host == "" {
		return false
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return false
	}
	if u.User != nil {
		return false
	}
	prefix := base.EscapedPath()
	escaped := u.EscapedPath()
	if !strings.HasSuffix(prefix, "/") || !strings.HasPrefix(escaped, prefix) {
		return false
	}
	key := strings.TrimPrefix(escaped, prefix)
	return key != "" && !strings.Contains(key, "/") && path.Clean(u.Path) == u.Path
}

func (a *App) preview(ctx context.Context, fileURL, name, title string) (SheetPreview, error) {
	records, err := a.previewer.Ingest(ctx, fileURL)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("sheet preview failed", "name", name, "err", err)
		return SheetPreview{}, err
	}
	return SheetPreview{
		Name:    name,
		Title:   title,
		URL:     fileURL,
		Records: records,
		Table:   workbook.NewTable(records),
	}, nil
}

// ShareSheet builds the read-only viewer link and a WhatsApp deep link carrying it.
func (a *App) ShareSheet(name string) (domain.ShareLink, error) {
	if err := checkSheetName(name); err != nil {
		return domain.ShareLink{}, err
	}
	viewURL := a.publicBaseURL + sheetViewPath + url.PathEscape(name)
	return domain.ShareLink{
		Name:     name,
		ViewURL:  viewURL,
		ShareURL: shareBaseURL + url.QueryEscape(shareMessage+viewURL),
	}, nil
}

func (a *App) sheetFile(obj storage.ObjectInfo) domain.SheetFile {
	display, uploadedAt := parseSheetName(obj.Key)
	return domain.SheetFile{
		Name:        obj.Key,
		DisplayName: display,
		UploadedAt:  uploadedAt,
		URL:         a.sheets.PublicURL(obj.Key),
		Size:        obj.Size,
	}
}

func checkSheetName(name string) error {
	if strings.TrimSpace(name) == "" || name != baseName(name) {
		return fmt.Errorf("%w: invalid sheet name", ErrInvalidInput)
	}
	return nil
}

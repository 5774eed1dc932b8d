package app

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"catalogpanel/internal/util"
	"catalogpanel/pkg/domain"
	"catalogpanel/pkg/storage"
	"catalogpanel/pkg/store"
	"catalogpanel/pkg/workbook"
)

// OrphanPolicy decides what happens to stored images no product references
// after a failed create/update, an edit that drops them, or a delete.
type OrphanPolicy string

const (
	OrphanKeep  OrphanPolicy = "keep"
	OrphanPurge OrphanPolicy = "purge"
)

const (
	defaultPerPage        = 10
	defaultSheetListLimit = 100
)

// ProductCache caches the full newest-first product list.
type ProductCache interface {
	Get(ctx context.Context) ([]domain.Product, bool, error)
	Generation(ctx context.Context) (int64, error)
	// Set skips the write when the cache was invalidated after generation was read.
	Set(ctx context.Context, generation int64, products []domain.Product) (bool, error)
	Invalidate(ctx context.Context) error
}

// Previewer turns a workbook URL into row records.
type Previewer interface {
	Ingest(ctx context.Context, url string) ([]workbook.Record, error)
}

// FileUpload is one file received from a client.
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Config holds runtime dependencies and settings for the core application.
type Config struct {
	Store  store.Store
	Images storage.ObjectStore
	Sheets storage.ObjectStore
	// Cache is optional; without it every list reads the store.
	Cache     ProductCache
	Previewer Previewer

	PublicBaseURL     string
	OrphanPolicy      OrphanPolicy
	UploadConcurrency int
	SheetExtensions   []string
	// PreviewHosts are extra hosts PreviewURL may fetch from, besides the sheets store.
	PreviewHosts   []string
	SheetListLimit int
	MaxImageBytes  int64
	MaxSheetBytes  int64
	Now            func() time.Time
}

// App serves the product catalog and the sheet library.
type App struct {
	store     store.Store
	images    storage.ObjectStore
	sheets    storage.ObjectStore
	cache     ProductCache
	previewer Previewer

	publicBaseURL     string
	orphanPolicy      OrphanPolicy
	uploadConcurrency int
	sheetExtensions   map[string]struct{}
	previewHosts      map[string]struct{}
	sheetListLimit    int
	maxImageBytes     int64
	maxSheetBytes     int64
	now               func() time.Time
}

// New constructs the application from already-connected dependencies.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("product store is required")
	}
	if cfg.Images == nil || cfg.Sheets == nil {
		return nil, errors.New("images and sheets object stores are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("public base URL is required")
	}
	policy := cfg.OrphanPolicy
	switch policy {
	case "":
		policy = OrphanKeep
	case OrphanKeep, OrphanPurge:
	default:
		return nil, errors.New("orphan policy must be keep or purge")
	}
	previewer := cfg.Previewer
	if previewer == nil {
		previewer = workbook.NewIngester(nil, cfg.MaxSheetBytes)
	}
	listLimit := cfg.SheetListLimit
	if listLimit <= 0 {
		listLimit = defaultSheetListLimit
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:             cfg.Store,
		images:            cfg.Images,
		sheets:            cfg.Sheets,
		cache:             cfg.Cache,
		previewer:         previewer,
		publicBaseURL:     baseURL,
		orphanPolicy:      policy,
		uploadConcurrency: cfg.UploadConcurrency,
		sheetExtensions:   normalizeExtensions(cfg.SheetExtensions),
		previewHosts:      normalizeHosts(cfg.PreviewHosts),
		sheetListLimit:    listLimit,
		maxImageBytes:     cfg.MaxImageBytes,
		maxSheetBytes:     cfg.MaxSheetBytes,
		now:               now,
	}, nil
}

// OrphanPolicy reports the active policy.
func (a *App) OrphanPolicy() OrphanPolicy {
	return a.orphanPolicy
}

func (a *App) invalidateProducts(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("product cache invalidate failed", "err", err)
	}
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".xlsx", ".xls"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

// normalizeHosts lower-cases host[:port] entries; full URLs contribute their host.
func normalizeHosts(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if strings.Contains(host, "://") {
			if u, err := url.Parse(host); err == nil {
				host = u.Host
			}
		}
		if host != "" {
			out[host] = struct{}{}
		}
	}
	return out
}

// paginate returns the 1-based page of items, clamping page into range.
func paginate[T any](items []T, page, perPage int) ([]T, int, int) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	totalPages := (len(items) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], page, totalPages
}

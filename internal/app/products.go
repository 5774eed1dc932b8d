package app

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"catalogpanel/internal/util"
	"catalogpanel/pkg/domain"
)

// ProductQuery filters and pages the product list.
type ProductQuery struct {
	Search  string
	Page    int
	PerPage int
}

// ProductPage is one page of the filtered product list.
type ProductPage struct {
	Items      []domain.Product `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalPages int              `json:"totalPages"`
}

// CreateProduct uploads the images concurrently and inserts one product row
// with their public URLs in input order. If any upload fails no row is written.
func (a *App) CreateProduct(ctx context.Context, in domain.ProductInput, files []FileUpload) (domain.Product, error) {
	in.TitleAr = strings.TrimSpace(in.TitleAr)
	in.TitleEn = strings.TrimSpace(in.TitleEn)
	in.VideoCode = strings.TrimSpace(in.VideoCode)
	if in.TitleAr == "" || in.TitleEn == "" {
		return domain.Product{}, fmt.Errorf("%w: titleAr and titleEn are required", ErrInvalidInput)
	}
	if err := a.checkImages(files); err != nil {
		return domain.Product{}, err
	}
	urls, err := a.uploadImages(ctx, files)
	if err != nil {
		return domain.Product{}, err
	}
	now := a.now().UTC()
	product := domain.Product{
		ID:        util.NewID(),
		TitleAr:   in.TitleAr,
		TitleEn:   in.TitleEn,
		ContentAr: in.ContentAr,
		ContentEn: in.ContentEn,
		Images:    urls,
		VideoCode: in.VideoCode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.InsertProduct(ctx, product); err != nil {
		a.discardImages(ctx, urls)
		return domain.Product{}, err
	}
	a.invalidateProducts(ctx)
	util.LoggerFromContext(ctx).Info("product created", "product_id", product.ID, "images", len(urls))
	return product, nil
}

// ListProducts returns every product, newest first.
func (a *App) ListProducts(ctx context.Context) ([]domain.Product, error) {
	logger := util.LoggerFromContext(ctx)
	fill := false
	var generation int64
	if a.cache != nil {
		products, ok, err := a.cache.Get(ctx)
		if err != nil {
			logger.Warn("product cache read failed", "err", err)
		} else if ok {
			return products, nil
		}
		if gen, err := a.cache.Generation(ctx); err != nil {
			logger.Warn("product cache generation read failed", "err", err)
		} else {
			generation, fill = gen, true
		}
	}
	products, err := a.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if fill {
		stored, err := a.cache.Set(ctx, generation, products)
		if err != nil {
			logger.Warn("product cache write failed", "err", err)
		} else if !stored {
			logger.Debug("product cache fill skipped after concurrent change")
		}
	}
	return products, nil
}

// SearchProducts filters the list by title and returns the requested page.
func (a *App) SearchProducts(ctx context.Context, q ProductQuery) (ProductPage, error) {
	products, err := a.ListProducts(ctx)
	if err != nil {
		return ProductPage{}, err
	}
	matched := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.MatchesSearch(q.Search) {
			matched = append(matched, p)
		}
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	items, page, totalPages := paginate(matched, q.Page, perPage)
	return ProductPage{
		Items:      items,
		Total:      len(matched),
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// GetProduct returns one product.
func (a *App) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, ErrProductNotFound
	}
	product, ok, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return product, nil
}

// UpdateProduct merges the supplied fields into the product. Newly uploaded
// files are appended after the patch's image list, or after the current
// images when the patch carries none.
func (a *App) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch, files []FileUpload) (domain.Product, error) {
	if err := validatePatch(&patch); err != nil {
		return domain.Product{}, err
	}
	if err := a.checkImages(files); err != nil {
		return domain.Product{}, err
	}
	current, err := a.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	var uploaded []string
	if len(files) > 0 {
		uploaded, err = a.uploadImages(ctx, files)
		if err != nil {
			return domain.Product{}, err
		}
		base := current.Images
		if patch.Images != nil {
			base = *patch.Images
		}
		merged := append(append([]string{}, base...), uploaded...)
		patch.Images = &merged
	}
	if patch.IsEmpty() {
		return current, nil
	}

	now := a.now().UTC()
	ok, err := a.store.UpdateProduct(ctx, current.ID, patch, now)
	if err != nil {
		a.discardImages(ctx, uploaded)
		return domain.Product{}, err
	}
	if !ok {
		a.discardImages(ctx, uploaded)
		return domain.Product{}, ErrProductNotFound
	}
	a.invalidateProducts(ctx)

	updated := patch.Apply(current)
	updated.UpdatedAt = now
	if patch.Images != nil {
		a.discardImages(ctx, droppedImages(current.Images, updated.Images))
	}
	return updated, nil
}

// DeleteProduct removes the product row. Deleting a missing id is not an error.
// Images stay in storage unless the orphan policy is purge.
func (a *App) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	var images []string
	if a.orphanPolicy == OrphanPurge {
		product, ok, err := a.store.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			images = product.Images
		}
	}
	if err := a.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	a.invalidateProducts(ctx)
	a.discardImages(ctx, images)
	return nil
}

// UploadImages stores images and returns their public URLs in input order.
func (a *App) UploadImages(ctx context.Context, files []FileUpload) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images supplied", ErrInvalidInput)
	}
	if err := a.checkImages(files); err != nil {
		return nil, err
	}
	return a.uploadImages(ctx, files)
}

func (a *App) checkImages(files []FileUpload) error {
	for _, f := range files {
		if f.Body == nil || baseName(f.Name) == "" {
			return fmt.Errorf("%w: image file name is required", ErrInvalidInput)
		}
		if a.maxImageBytes > 0 && f.Size > a.maxImageBytes {
			return fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, baseName(f.Name), a.maxImageBytes)
		}
		if ct := imageContentType(f); !strings.HasPrefix(ct, "image/") {
			return fmt.Errorf("%w: %s is not an image", ErrUnsupportedFileType, baseName(f.Name))
		}
	}
	return nil
}

// uploadImages runs one upload per file in an errgroup. The first failure
// cancels the rest; completed uploads are handled by the orphan policy.
func (a *App) uploadImages(ctx context.Context, files []FileUpload) ([]string, error) {
	if len(files) == 0 {
		return []string{}, nil
	}
	now := a.now()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = imageObjectName(now, f.Name)
	}
	names = uniqueNames(names)

	done := make([]bool, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if a.uploadConcurrency > 0 {
		g.SetLimit(a.uploadConcurrency)
	}
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := a.images.Put(gctx, names[i], f.Body, f.Size, imageContentType(f)); err != nil {
				return fmt.Errorf("upload image %s: %w", baseName(f.Name), err)
			}
			done[i] = true
			return nil
		})
	}
	urls := make([]string, len(files))
	for i, name := range names {
		urls[i] = a.images.PublicURL(name)
	}
	if err := g.Wait(); err != nil {
		var completed []string
		for i, ok := range done {
			if ok {
				completed = append(completed, urls[i])
			}
		}
		a.discardImages(ctx, completed)
		return nil, err
	}
	return urls, nil
}

// discardImages removes stored images under the purge policy, best effort.
func (a *App) discardImages(ctx context.Context, urls []string) {
	if a.orphanPolicy != OrphanPurge || len(urls) == 0 {
		return
	}
	logger := util.LoggerFromContext(ctx)
	ctx = context.WithoutCancel(ctx)
	for _, u := range urls {
		key, ok := a.imageKey(u)
		if !ok {
			continue
		}
		if err := a.images.Delete(ctx, key); err != nil {
			logger.Warn("orphan image cleanup failed", "key", key, "err", err)
			continue
		}
		logger.Info("orphan image removed", "key", key)
	}
}

// imageKey recovers the object key from a public URL issued by the images store.
func (a *App) imageKey(publicURL string) (string, bool) {
	prefix := a.images.PublicURL("")
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

func validatePatch(patch *domain.ProductPatch) error {
	if err := trimRequired(&patch.TitleAr, "titleAr"); err != nil {
		return err
	}
	if err := trimRequired(&patch.TitleEn, "titleEn"); err != nil {
		return err
	}
	if patch.VideoCode != nil {
		code := strings.TrimSpace(*patch.VideoCode)
		patch.VideoCode = &code
	}
	if patch.Images != nil {
		for _, img := range *patch.Images {
			if strings.TrimSpace(img) == "" {
				return fmt.Errorf("%w: images must not contain empty entries", ErrInvalidInput)
			}
		}
	}
	return nil
}

// trimRequired replaces a supplied field with its trimmed copy and rejects blanks.
func trimRequired(field **string, name string) error {
	if *field == nil {
		return nil
	}
	v := strings.TrimSpace(**field)
	if v == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, name)
	}
	*field = &v
	return nil
}

func droppedImages(before, after []string) []string {
	kept := make(map[string]struct{}, len(after))
	for _, u := range after {
		kept[u] = struct{}{}
	}
	var dropped []string
	for _, u := range before {
		if _, ok := kept[u]; !ok {
			dropped = append(dropped, u)
		}
	}
	return dropped
}

func imageContentType(f FileUpload) string {
	if ct := strings.TrimSpace(f.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return mime.TypeByExtension(strings.ToLower(path.Ext(baseName(f.Name))))
}

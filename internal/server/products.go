package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"catalogpanel/internal/app"
	"catalogpanel/internal/stafftoken"
	"catalogpanel/pkg/domain"
)

const (
	imagesField         = "images"
	existingImagesField = "existingImages"
	maxMemoryBytes      = 32 << 20
)

// /api/products
func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	switch r.Method {
	case http.MethodGet:
		page, err := s.app.SearchProducts(r.Context(), app.ProductQuery{
			Search:  r.URL.Query().Get("q"),
			Page:    queryInt(r, "page"),
			PerPage: queryInt(r, "perPage"),
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		s.handleCreateProduct(w, r, staff)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	if !s.allowRate(w, r, "catalog.product.create") {
		return
	}
	form, err := s.parseMultipart(w, r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	files, closeFiles, err := openUploads(form, imagesField)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer closeFiles()

	in := domain.ProductInput{
		TitleAr:   formValue(form, "titleAr"),
		TitleEn:   formValue(form, "titleEn"),
		ContentAr: formValue(form, "contentAr"),
		ContentEn: formValue(form, "contentEn"),
		VideoCode: formValue(form, "videoCode"),
	}
	product, err := s.app.CreateProduct(r.Context(), in, files)
	if err != nil {
		s.audit(r, "catalog.product.create", "fail", "user_id", staff.ID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.product.create", "success", "user_id", staff.ID, "product_id", product.ID)
	writeJSON(w, http.StatusCreated, product)
}

// /api/products/images
func (s *Server) handleProductImages(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if !s.allowRate(w, r, "catalog.images.upload") {
		return
	}
	form, err := s.parseMultipart(w, r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	files, closeFiles, err := openUploads(form, imagesField)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer closeFiles()

	urls, err := s.app.UploadImages(r.Context(), files)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.images.upload", "success", "user_id", staff.ID, "count", len(urls))
	writeJSON(w, http.StatusCreated, map[string]any{"urls": urls})
}

// /api/products/{id}
func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff) {
	id := strings.TrimPrefix(r.URL.Path, "/api/products/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		product, err := s.app.GetProduct(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPatch:
		s.handleUpdateProduct(w, r, staff, id)
	case http.MethodDelete:
		if err := s.app.DeleteProduct(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "catalog.product.delete", "success", "user_id", staff.ID, "product_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w, r)
	}
}

// handleUpdateProduct accepts either a JSON patch or a multipart form whose
// present fields form the patch and whose images are appended.
func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request, staff stafftoken.Staff, id string) {
	var (
		patch domain.ProductPatch
		files []app.FileUpload
	)
	if isMultipart(r) {
		if !s.allowRate(w, r, "catalog.product.update") {
			return
		}
		form, err := s.parseMultipart(w, r)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		uploads, closeFiles, err := openUploads(form, imagesField)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		defer closeFiles()
		files = uploads
		patch = patchFromForm(form)
	} else {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid JSON body")
			return
		}
	}

	product, err := s.app.UpdateProduct(r.Context(), id, patch, files)
	if err != nil {
		s.audit(r, "catalog.product.update", "fail", "user_id", staff.ID, "product_id", id, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog.product.update", "success", "user_id", staff.ID, "product_id", id)
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, fmt.Errorf("%w: request exceeds %d bytes", app.ErrFileTooLarge, maxBytes.Limit)
		}
		return nil, fmt.Errorf("%w: invalid form data", app.ErrInvalidInput)
	}
	return r.MultipartForm, nil
}

// openUploads opens every file under field. The returned func closes them.
func openUploads(form *multipart.Form, field string) ([]app.FileUpload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	headers := form.File[field]
	uploads := make([]app.FileUpload, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("%w: cannot read %s", app.ErrInvalidInput, fh.Filename)
		}
		opened = append(opened, file)
		uploads = append(uploads, app.FileUpload{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        file,
		})
	}
	return uploads, closeAll, nil
}

func patchFromForm(form *multipart.Form) domain.ProductPatch {
	field := func(name string) *string {
		values, ok := form.Value[name]
		if !ok || len(values) == 0 {
			return nil
		}
		v := values[0]
		return &v
	}
	patch := domain.ProductPatch{
		TitleAr:   field("titleAr"),
		TitleEn:   field("titleEn"),
		ContentAr: field("contentAr"),
		ContentEn: field("contentEn"),
		VideoCode: field("videoCode"),
	}
	if values, ok := form.Value[existingImagesField]; ok {
		images := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				images = append(images, v)
			}
		}
		patch.Images = &images
	}
	return patch
}

func formValue(form *multipart.Form, name string) string {
	if values := form.Value[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

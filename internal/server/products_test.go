package server

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"catalogpanel/internal/app"
	"catalogpanel/pkg/domain"
)

func createProduct(t *testing.T, srv *testServer, titleEn string, images ...formFile) domain.Product {
	t.Helper()
	contentType, body := multipartBody(t, map[string][]string{
		"titleAr":   {"منتج"},
		"titleEn":   {titleEn},
		"contentEn": {"<p>Details</p>"},
		"videoCode": {"abc123"},
	}, images...)
	resp := srv.do(t, http.MethodPost, "/api/products", staffToken, contentType, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expected 201, got %d", resp.StatusCode)
	}
	var product domain.Product
	decodeJSON(t, resp, &product)
	return product
}

func TestProductLifecycle(t *testing.T) {
	srv := newTestServer(t, 0)
	png := formFile{field: "images", name: "front.png", contentType: "image/png", data: []byte("png-bytes")}
	product := createProduct(t, srv, "Pen", png)
	if product.ID == "" || len(product.Images) != 1 || !strings.HasPrefix(product.Images[0], srv.url+"/files/images/") {
		t.Fatalf("unexpected product: %+v", product)
	}

	img := srv.do(t, http.MethodGet, strings.TrimPrefix(product.Images[0], srv.url), "", "", nil)
	if img.StatusCode != http.StatusOK {
		t.Fatalf("image should be publicly served, got %d", img.StatusCode)
	}

	resp := srv.do(t, http.MethodGet, "/api/products?q=pen", staffToken, "", nil)
	var page app.ProductPage
	decodeJSON(t, resp, &page)
	if page.Total != 1 || page.Items[0].ID != product.ID {
		t.Fatalf("unexpected list: %+v", page)
	}

	resp = srv.do(t, http.MethodPatch, "/api/products/"+product.ID, staffToken, "application/json",
		bytes.NewReader([]byte(`{"titleEn":"Blue pen"}`)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json patch expected 200, got %d", resp.StatusCode)
	}
	var updated domain.Product
	decodeJSON(t, resp, &updated)
	if updated.TitleEn != "Blue pen" || updated.TitleAr != "منتج" || len(updated.Images) != 1 {
		t.Fatalf("unexpected json patch result: %+v", updated)
	}

	contentType, body := multipartBody(t, map[string][]string{"contentAr": {"<p>أزرق</p>"}},
		formFile{field: "images", name: "back.jpg", contentType: "image/jpeg", data: []byte("jpg")})
	resp = srv.do(t, http.MethodPatch, "/api/products/"+product.ID, staffToken, contentType, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("multipart patch expected 200, got %d", resp.StatusCode)
	}
	decodeJSON(t, resp, &updated)
	if updated.ContentAr != "<p>أزرق</p>" || len(updated.Images) != 2 || !strings.HasSuffix(updated.Images[1], "-back.jpg") {
		t.Fatalf("unexpected multipart patch result: %+v", updated)
	}

	contentType, body = multipartBody(t, map[string][]string{"existingImages": {updated.Images[1]}})
	resp = srv.do(t, http.MethodPatch, "/api/products/"+product.ID, staffToken, contentType, body)
	decodeJSON(t, resp, &updated)
	if len(updated.Images) != 1 || !strings.HasSuffix(updated.Images[0], "-back.jpg") {
		t.Fatalf("existingImages should replace the gallery: %v", updated.Images)
	}

	resp = srv.do(t, http.MethodDelete, "/api/products/"+product.ID, staffToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete expected 200, got %d", resp.StatusCode)
	}
	expectError(t, srv.do(t, http.MethodGet, "/api/products/"+product.ID, staffToken, "", nil), http.StatusNotFound, "PRODUCT_NOT_FOUND")
	expectError(t, srv.do(t, http.MethodPatch, "/api/products/"+product.ID, staffToken, "application/json",
		bytes.NewReader([]byte(`{"titleEn":"x"}`))), http.StatusNotFound, "PRODUCT_NOT_FOUND")
}

func TestCreateProductRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t, 0)

	contentType, body := multipartBody(t, map[string][]string{"titleAr": {"منتج"}})
	expectError(t, srv.do(t, http.MethodPost, "/api/products", staffToken, contentType, body), http.StatusBadRequest, "INVALID_INPUT")

	contentType, body = multipartBody(t, map[string][]string{"titleAr": {"منتج"}, "titleEn": {"Pen"}},
		formFile{field: "images", name: "notes.txt", contentType: "text/plain", data: []byte("hi")})
	expectError(t, srv.do(t, http.MethodPost, "/api/products", staffToken, contentType, body), http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE")

	expectError(t, srv.do(t, http.MethodPost, "/api/products", staffToken, "application/json",
		strings.NewReader(`{"titleAr":"x"}`)), http.StatusBadRequest, "INVALID_INPUT")

	expectError(t, srv.do(t, http.MethodPut, "/api/products", staffToken, "", nil), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
}

func TestUploadImagesReturnsOrderedURLs(t *testing.T) {
	srv := newTestServer(t, 0)
	contentType, body := multipartBody(t, nil,
		formFile{field: "images", name: "a.png", contentType: "image/png", data: []byte("a")},
		formFile{field: "images", name: "b.png", contentType: "image/png", data: []byte("b")})
	resp := srv.do(t, http.MethodPost, "/api/products/images", staffToken, contentType, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var payload struct {
		URLs []string `json:"urls"`
	}
	decodeJSON(t, resp, &payload)
	if len(payload.URLs) != 2 || !strings.HasSuffix(payload.URLs[0], "-a.png") || !strings.HasSuffix(payload.URLs[1], "-b.png") {
		t.Fatalf("unexpected urls: %v", payload.URLs)
	}
}

func TestUploadsAreRateLimited(t *testing.T) {
	srv := newTestServer(t, 1)
	upload := func() *http.Response {
		contentType, body := multipartBody(t, nil,
			formFile{field: "images", name: "a.png", contentType: "image/png", data: []byte("a")})
		return srv.do(t, http.MethodPost, "/api/products/images", staffToken, contentType, body)
	}
	if resp := upload(); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first upload expected 201, got %d", resp.StatusCode)
	}
	resp := upload()
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("rate limited response should carry Retry-After")
	}
	expectError(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")

	if list := srv.do(t, http.MethodGet, "/api/products", staffToken, "", nil); list.StatusCode != http.StatusOK {
		t.Fatalf("reads must not be rate limited, got %d", list.StatusCode)
	}
}

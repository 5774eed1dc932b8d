package panelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catalogpanel/internal/app"
	"catalogpanel/pkg/domain"
)

// Client calls the catalog panel HTTP API with a staff token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents an error response from the panel API.
type APIError struct {
	Status    int
	Message   string
	Code      string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// NewClient constructs a panel API client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// ListSheets returns one page of the sheet library.
func (c *Client) ListSheets(ctx context.Context, search string, page int) (app.SheetPage, error) {
	var out app.SheetPage
	err := c.get(ctx, "/api/sheets", listQuery(search, page), &out)
	return out, err
}

// ShareSheet returns the viewer and messaging links for a stored sheet.
func (c *Client) ShareSheet(ctx context.Context, name string) (domain.ShareLink, error) {
	var out domain.ShareLink
	err := c.get(ctx, "/api/sheets/"+url.PathEscape(name)+"/share", nil, &out)
	return out, err
}

// UploadSheet sends one workbook to the library.
func (c *Client) UploadSheet(ctx context.Context, filename string, r io.Reader) (domain.SheetFile, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return domain.SheetFile{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return domain.SheetFile{}, err
	}
	if err := writer.Close(); err != nil {
		return domain.SheetFile{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/sheets", nil, body)
	if err != nil {
		return domain.SheetFile{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var file domain.SheetFile
	if err := c.do(req, &file); err != nil {
		return domain.SheetFile{}, err
	}
	return file, nil
}

// ListProducts returns one page of the catalog, newest first.
func (c *Client) ListProducts(ctx context.Context, search string, page int) (app.ProductPage, error) {
	var out app.ProductPage
	err := c.get(ctx, "/api/products", listQuery(search, page), &out)
	return out, err
}

// GetProduct fetches one product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := c.get(ctx, "/api/products/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("panel server URL is not configured")
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code), RequestID: errResp.RequestID}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func listQuery(search string, page int) url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(search); s != "" {
		q.Set("q", s)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	return q
}

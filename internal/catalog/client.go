package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dhanbg/traditionalalley-sub002/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Product is a catalog record with both identifier schemes populated.
type Product struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"documentId"`
	Title      string    `json:"title"`
	Price      int64     `json:"price"`
	ImageRef   string    `json:"imageRef,omitempty"`
	Variants   []Variant `json:"variants,omitempty"`
}

// Variant is one selectable variation of a product.
type Variant struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Sizes []string `json:"sizes,omitempty"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// Client reads product records from the catalog. Catalog reads are
// side-effect free, so unlike line-item mutations they go through the
// retrying HTTP client.
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a catalog client.
func NewClient(httpClient HTTPDoer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, httpReq)
	if err != nil {
		return fmt.Errorf("call catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "catalog")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ProductByID fetches a product by its numeric store id.
func (c *Client) ProductByID(ctx context.Context, id int64) (*Product, error) {
	var env dataEnvelope[Product]
	if err := c.get(ctx, "/api/products/id/"+strconv.FormatInt(id, 10), &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// ProductByDocumentID fetches a product by its content-addressed document id.
func (c *Client) ProductByDocumentID(ctx context.Context, documentID string) (*Product, error) {
	var env dataEnvelope[Product]
	if err := c.get(ctx, "/api/products/"+url.PathEscape(documentID), &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

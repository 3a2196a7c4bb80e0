package remote

import (
	"bytes"
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
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// dataEnvelope is the wrapper the line-item store puts around every payload.
type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// Client talks to the authoritative line-item store. All mutating calls run
// with a single attempt; callers decide whether and when to re-trigger.
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	apiToken   string
	logger     *slog.Logger
}

// NewClient creates a line-item store client.
func NewClient(httpClient HTTPDoer, baseURL, apiToken string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiToken:   apiToken,
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(dataEnvelope[any]{Data: payload})
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(ctx, httpReq)
	if err != nil {
		return fmt.Errorf("call line-item store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return httpclient.ParseResponseError(resp, "line-item store")
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateLineItem inserts a new line item under a bag and returns the stored
// record with both remote identifiers populated.
func (c *Client) CreateLineItem(ctx context.Context, req CreateLineItemRequest) (*LineItemRecord, error) {
	var env dataEnvelope[LineItemRecord]
	if err := c.do(ctx, http.MethodPost, "/api/line-items", req, &env); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "line item created",
		slog.Int64("remote_line_id", env.Data.ID),
		slog.String("remote_line_document_id", env.Data.DocumentID),
	)
	return &env.Data, nil
}

// UpdateLineItemQuantity sets the quantity of a line item addressed by its
// document id.
func (c *Client) UpdateLineItemQuantity(ctx context.Context, documentID string, quantity int) (*LineItemRecord, error) {
	var env dataEnvelope[LineItemRecord]
	path := "/api/line-items/" + url.PathEscape(documentID)
	if err := c.do(ctx, http.MethodPut, path, UpdateLineItemRequest{Quantity: quantity}, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// DeleteLineItemByDocumentID removes a line item addressed by its document id.
func (c *Client) DeleteLineItemByDocumentID(ctx context.Context, documentID string) error {
	return c.do(ctx, http.MethodDelete, "/api/line-items/"+url.PathEscape(documentID), nil, nil)
}

// DeleteLineItemByID removes a line item addressed by its numeric id.
func (c *Client) DeleteLineItemByID(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/line-items/id/"+strconv.FormatInt(id, 10), nil, nil)
}

// ListLineItems returns every line item currently stored under a bag.
func (c *Client) ListLineItems(ctx context.Context, bagDocumentID string) ([]LineItemRecord, error) {
	var env dataEnvelope[[]LineItemRecord]
	path := "/api/line-items?bag=" + url.QueryEscape(bagDocumentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// FindBagByUser looks up the bag owned by an external user id. Returns nil
// without error when the user has no bag yet.
func (c *Client) FindBagByUser(ctx context.Context, externalUserID string) (*BagRecord, error) {
	var env dataEnvelope[[]BagRecord]
	path := "/api/bags?user=" + url.QueryEscape(externalUserID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	return &env.Data[0], nil
}

// CreateBag creates a bag owned by a profile.
func (c *Client) CreateBag(ctx context.Context, profileDocumentID string) (*BagRecord, error) {
	var env dataEnvelope[BagRecord]
	if err := c.do(ctx, http.MethodPost, "/api/bags", CreateBagRequest{ProfileDocumentID: profileDocumentID}, &env); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "bag created",
		slog.String("bag_document_id", env.Data.DocumentID),
	)
	return &env.Data, nil
}

// FindProfileByExternalID looks up the profile registered for an external
// user id. Returns nil without error when none exists.
func (c *Client) FindProfileByExternalID(ctx context.Context, externalUserID string) (*ProfileRecord, error) {
	var env dataEnvelope[[]ProfileRecord]
	path := "/api/user-profiles?externalId=" + url.QueryEscape(externalUserID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	return &env.Data[0], nil
}

// CreateProfile registers a profile for an external user id.
func (c *Client) CreateProfile(ctx context.Context, externalUserID string) (*ProfileRecord, error) {
	var env dataEnvelope[ProfileRecord]
	if err := c.do(ctx, http.MethodPost, "/api/user-profiles", CreateProfileRequest{ExternalID: externalUserID}, &env); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "profile created",
		slog.String("profile_document_id", env.Data.DocumentID),
		slog.String("external_user_id", externalUserID),
	)
	return &env.Data, nil
}

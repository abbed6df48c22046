// internal/clients/catalog_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"librastacks/internal/book"
	"librastacks/internal/catalog"
)

// CatalogClient reaches a catalog service over HTTP. It satisfies
// circulation.Catalog.
type CatalogClient struct {
	t *transport
}

func NewCatalogClient(baseURL string, opts ...Option) *CatalogClient {
	return &CatalogClient{t: newTransport("catalog", baseURL, opts...)}
}

func (c *CatalogClient) FindAvailableCopy(ctx context.Context, bookID string) (*catalog.CopyLocation, error) {
	return c.getLocation(ctx, fmt.Sprintf("/books/%s/available-copy", url.PathEscape(bookID)))
}

func (c *CatalogClient) FindCopyByID(ctx context.Context, copyID string) (*catalog.CopyLocation, error) {
	return c.getLocation(ctx, "/copies/"+url.PathEscape(copyID))
}

func (c *CatalogClient) getLocation(ctx context.Context, path string) (*catalog.CopyLocation, error) {
	resp, err := c.t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		var loc catalog.CopyLocation
		if err := resp.decode(&loc); err != nil {
			return nil, err
		}
		return &loc, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, resp.unexpected()
	}
}

func (c *CatalogClient) UpdateCopyStatus(ctx context.Context, copyID string, status book.Status, holderAccountID string) error {
	req := struct {
		Status          book.Status `json:"status"`
		HolderAccountID string      `json:"holder_account_id"`
	}{
		Status:          status,
		HolderAccountID: holderAccountID,
	}

	resp, err := c.t.do(ctx, http.MethodPatch, "/copies/"+url.PathEscape(copyID)+"/status", req)
	if err != nil {
		return err
	}

	switch resp.status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("copy %s: %w", copyID, catalog.ErrCopyNotFound)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("copy %s status %q: %w", copyID, status, catalog.ErrInvalidStatus)
	default:
		return resp.unexpected()
	}
}

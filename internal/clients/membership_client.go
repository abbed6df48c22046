// internal/clients/membership_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"librastacks/internal/membership"
)

// MembershipClient reaches a membership service over HTTP. It satisfies
// circulation.Accounts.
type MembershipClient struct {
	t *transport
}

func NewMembershipClient(baseURL string, opts ...Option) *MembershipClient {
	return &MembershipClient{t: newTransport("membership", baseURL, opts...)}
}

func (c *MembershipClient) GetAccount(ctx context.Context, id uuid.UUID) (*membership.Account, error) {
	resp, err := c.t.do(ctx, http.MethodGet, "/accounts/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		var account membership.Account
		if err := resp.decode(&account); err != nil {
			return nil, err
		}
		return &account, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("account %s: %w", id, membership.ErrAccountNotFound)
	default:
		return nil, resp.unexpected()
	}
}

func (c *MembershipClient) AddLoan(ctx context.Context, id uuid.UUID, copyID string) error {
	req := struct {
		CopyID string `json:"copy_id"`
	}{CopyID: copyID}

	resp, err := c.t.do(ctx, http.MethodPost, "/accounts/"+id.String()+"/loans", req)
	if err != nil {
		return err
	}
	return bookkeepingResult(id, resp, membership.ErrNoOutstandingLoans)
}

func (c *MembershipClient) RemoveLoan(ctx context.Context, id uuid.UUID, copyID string) error {
	resp, err := c.t.do(ctx, http.MethodDelete, "/accounts/"+id.String()+"/loans/"+url.PathEscape(copyID), nil)
	if err != nil {
		return err
	}
	return bookkeepingResult(id, resp, membership.ErrNoOutstandingLoans)
}

func (c *MembershipClient) AddReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error {
	req := struct {
		ReservationID uuid.UUID `json:"reservation_id"`
	}{ReservationID: reservationID}

	resp, err := c.t.do(ctx, http.MethodPost, "/accounts/"+id.String()+"/reservations", req)
	if err != nil {
		return err
	}
	return bookkeepingResult(id, resp, membership.ErrReservationNotFound)
}

func (c *MembershipClient) RemoveReservation(ctx context.Context, id uuid.UUID, reservationID uuid.UUID) error {
	resp, err := c.t.do(ctx, http.MethodDelete, "/accounts/"+id.String()+"/reservations/"+reservationID.String(), nil)
	if err != nil {
		return err
	}
	return bookkeepingResult(id, resp, membership.ErrReservationNotFound)
}

// bookkeepingResult maps a bookkeeping route's status back onto membership's
// sentinels. The routes answer 409 only with the route's own conflict error.
func bookkeepingResult(id uuid.UUID, resp *response, conflict error) error {
	switch resp.status {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("account %s: %w", id, membership.ErrAccountNotFound)
	case http.StatusConflict:
		return fmt.Errorf("account %s: %w", id, conflict)
	default:
		return resp.unexpected()
	}
}

package wix

import (
	"context"
	"iter"
	"net/http"

	"wix-store-migrator/internal/domain"
)

func (c *Client) ListAccounts(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "loyalty.list",
		method:     http.MethodGet,
		path:       "/loyalty-accounts/v1/accounts",
		itemsField: "accounts",
	})
}

func (c *Client) CreateAccount(ctx context.Context, token string, contactID string) (string, error) {
	return c.createAndExtractID(ctx, "loyalty.create", token, "/loyalty-accounts/v1/accounts", "",
		domain.RawItem{"contactId": contactID}, "account.id")
}

// AdjustPoints reads the account revision first; the adjust endpoint rejects stale revisions.
func (c *Client) AdjustPoints(ctx context.Context, token string, accountID string, delta int) error {
	if delta == 0 {
		return nil
	}
	var current domain.RawItem
	if err := c.do(ctx, "loyalty.get", token, http.MethodGet,
		"/loyalty-accounts/v1/accounts/"+escape(accountID), nil, &current); err != nil {
		return err
	}
	body := map[string]any{
		"amount":   delta,
		"revision": current.String("account.revision"),
	}
	return c.doWrite(ctx, "loyalty.adjust", token, http.MethodPost,
		"/loyalty-accounts/v1/accounts/"+escape(accountID)+"/adjust-points", body, nil)
}

package wix

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"wix-store-migrator/internal/domain"
)

const orderTagFQDN = "wix.ecom.v1.order"

func (c *Client) ListOrders(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:           "orders.search",
		method:       http.MethodPost,
		path:         "/ecom/v1/orders/search",
		itemsField:   "orders",
		cursorPaging: true,
		body: cursorQuery("search", map[string]any{
			"sort": []any{map[string]any{"fieldName": "createdDate", "order": "ASC"}},
		}),
	})
}

func (c *Client) GetOrder(ctx context.Context, token string, orderID string) (domain.RawItem, error) {
	var resp domain.RawItem
	if err := c.do(ctx, "orders.get", token, http.MethodGet, "/ecom/v1/orders/"+escape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	order, _ := resp.Object("order")
	return order, nil
}

// ListTransactions returns the payments of an order with each payment's refunds
// embedded under "refunds". Refund transactions reference payments by id.
func (c *Client) ListTransactions(ctx context.Context, token string, orderID string) ([]domain.RawItem, error) {
	var resp domain.RawItem
	if err := c.do(ctx, "transactions.list", token, http.MethodGet,
		"/ecom/v1/payments/orders/"+escape(orderID), nil, &resp); err != nil {
		return nil, err
	}

	payments := resp.Objects("orderTransactions.payments")
	byID := make(map[string]domain.RawItem, len(payments))
	for _, p := range payments {
		byID[p.String("id")] = p
	}
	for _, refund := range resp.Objects("orderTransactions.refunds") {
		for _, tx := range refund.Objects("transactions") {
			p, ok := byID[tx.String("paymentId")]
			if !ok {
				continue
			}
			embedded := domain.RawItem{
				"id":               refund.String("id"),
				"amount":           tx["amount"],
				"createdDate":      refund["createdDate"],
				"externalRefund":   tx["externalRefund"],
				"providerRefundId": tx.String("providerRefundId"),
			}
			p["refunds"] = append(p.Slice("refunds"), map[string]any(embedded))
		}
	}
	return payments, nil
}

func (c *Client) SearchRefundsByCharge(ctx context.Context, token string, chargeID string) ([]domain.RawItem, error) {
	var resp domain.RawItem
	q := url.Values{"chargeId": {chargeID}}
	if err := c.do(ctx, "refunds.search", token, http.MethodGet, "/payments/v1/refunds?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Objects("refunds"), nil
}

func (c *Client) GetRefund(ctx context.Context, token string, refundID string) (domain.RawItem, error) {
	var resp domain.RawItem
	if err := c.do(ctx, "refunds.get", token, http.MethodGet, "/payments/v1/refunds/"+escape(refundID), nil, &resp); err != nil {
		return nil, err
	}
	refund, _ := resp.Object("refund")
	return refund, nil
}

func (c *Client) ListFulfillments(ctx context.Context, token string, orderID string) ([]domain.RawItem, error) {
	var resp domain.RawItem
	if err := c.do(ctx, "fulfillments.list", token, http.MethodGet,
		"/ecom/v1/fulfillments/orders/"+escape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Objects("orderWithFulfillments.fulfillments"), nil
}

func (c *Client) ListTags(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "tags.query",
		method:     http.MethodPost,
		path:       "/tags/v1/tags/query",
		itemsField: "tags",
		body: offsetQuery(map[string]any{
			"filter": map[string]any{"fqdn": orderTagFQDN},
		}),
	})
}

// FindOrCreateTag matches an existing order tag by display name before creating one
func (c *Client) FindOrCreateTag(ctx context.Context, token string, name string) (string, error) {
	for tag, err := range c.ListTags(ctx, token) {
		if err != nil {
			return "", err
		}
		if strings.EqualFold(tag.String("displayName"), name) {
			return tag.String("id"), nil
		}
	}
	return c.createAndExtractID(ctx, "tags.create", token, "/tags/v1/tags", "tag",
		domain.RawItem{"displayName": name, "fqdn": orderTagFQDN}, "tag.id")
}

func (c *Client) CreateOrder(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "orders.create", token, "/ecom/v1/orders", "order", payload, "order.id")
}

func (c *Client) CreateFulfillment(ctx context.Context, token string, orderID string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "fulfillments.create", token,
		"/ecom/v1/fulfillments/orders/"+escape(orderID)+"/create-fulfillment", "fulfillment", payload, "fulfillmentId")
}

func (c *Client) AddPayments(ctx context.Context, token string, orderID string, payments []domain.RawItem) ([]string, error) {
	list := make([]any, len(payments))
	for i, p := range payments {
		list[i] = map[string]any(p)
	}
	var resp domain.RawItem
	if err := c.doWrite(ctx, "payments.add", token, http.MethodPost,
		"/ecom/v1/payments/orders/"+escape(orderID)+"/add-payment", map[string]any{"payments": list}, &resp); err != nil {
		return nil, err
	}
	return resp.Strings("paymentsIds"), nil
}

func (c *Client) RefundPayments(ctx context.Context, token string, orderID string, refunds []domain.RawItem) error {
	list := make([]any, len(refunds))
	for i, r := range refunds {
		list[i] = map[string]any(r)
	}
	body := map[string]any{
		"orderId":        orderID,
		"paymentRefunds": list,
		"sideEffects":    map[string]any{"restockInfo": map[string]any{"type": "NO_ITEMS"}},
		"refundDetails":  map[string]any{"reason": "Migrated refund"},
	}
	return c.doWrite(ctx, "payments.refund", token, http.MethodPost, "/ecom/v1/order-billing/refund-payments", body, nil)
}

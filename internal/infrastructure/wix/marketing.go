package wix

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"wix-store-migrator/internal/domain"
)

// Coupons

func (c *Client) ListCoupons(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "coupons.query",
		method:     http.MethodPost,
		path:       "/stores/v2/coupons/query",
		itemsField: "coupons",
		body:       offsetQuery(nil),
	})
}

// FindCouponByCode looks a coupon up by its code. The coupons query takes its
// filter as a JSON string.
func (c *Client) FindCouponByCode(ctx context.Context, token string, code string) (domain.RawItem, error) {
	filter, err := json.Marshal(map[string]any{"specification.code": code})
	if err != nil {
		return nil, fmt.Errorf("failed to encode coupon filter: %w", err)
	}
	body := map[string]any{
		"query": map[string]any{
			"filter": string(filter),
			"paging": map[string]any{"limit": 1},
		},
	}
	var resp domain.RawItem
	if err := c.do(ctx, "coupons.findByCode", token, http.MethodPost, "/stores/v2/coupons/query", body, &resp); err != nil {
		return nil, err
	}
	coupons := resp.Objects("coupons")
	if len(coupons) == 0 {
		return nil, nil
	}
	return coupons[0], nil
}

func (c *Client) CreateCoupon(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "coupons.create", token, "/stores/v2/coupons", "specification", payload, "id")
}

// Discount rules

func (c *Client) ListDiscountRules(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "discountRules.query",
		method:     http.MethodPost,
		path:       "/ecom/v1/discount-rules/query",
		itemsField: "discountRules",
		body:       offsetQuery(nil),
	})
}

func (c *Client) CreateDiscountRule(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "discountRules.create", token, "/ecom/v1/discount-rules", "discountRule", payload, "discountRule.id")
}

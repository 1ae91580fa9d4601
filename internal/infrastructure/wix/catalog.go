package wix

import (
	"context"
	"iter"
	"net/http"

	"wix-store-migrator/internal/domain"
)

// Collections

func (c *Client) ListCollections(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "collections.query",
		method:     http.MethodPost,
		path:       "/stores/v1/collections/query",
		itemsField: "collections",
		body:       offsetQuery(nil),
	})
}

func (c *Client) CreateCollection(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "collections.create", token, "/stores/v1/collections", "collection", payload, "collection.id")
}

// Products

func (c *Client) ListProducts(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "products.query",
		method:     http.MethodPost,
		path:       "/stores/v1/products/query",
		itemsField: "products",
		body:       offsetQuery(map[string]any{"includeVariants": true}),
	})
}

func (c *Client) ListInventory(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "inventory.query",
		method:     http.MethodPost,
		path:       "/stores/v2/inventoryItems/query",
		itemsField: "inventoryItems",
		body:       offsetQuery(nil),
	})
}

func (c *Client) CreateProduct(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "products.create", token, "/stores/v1/products", "product", payload, "product.id")
}

func (c *Client) AddProductsToCollection(ctx context.Context, token string, collectionID string, productIDs []string) error {
	body := map[string]any{"productIds": productIDs}
	return c.do(ctx, "collections.addProducts", token, http.MethodPost,
		"/stores/v1/collections/"+escape(collectionID)+"/productIds", body, nil)
}

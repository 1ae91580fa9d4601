package pipelines

import (
	"slices"
	"strings"
	"time"

	"wix-store-migrator/internal/domain"

	"github.com/shopspring/decimal"
)

// moneyAt reads an amount stored either as {"amount": "9.90"} or as a bare value
func moneyAt(r domain.RawItem, path string) (decimal.Decimal, bool) {
	if d, ok := r.Decimal(path + ".amount"); ok {
		return d, true
	}
	return r.Decimal(path)
}

// paymentSignatures returns the identities a payment can be recognised by across
// stores, most specific first: provider transaction id, gateway transaction id,
// then amount with the creation minute.
func paymentSignatures(p domain.RawItem) []string {
	var sigs []string
	if id := p.FirstString("regularPaymentDetails.providerTransactionId", "providerTransactionId"); id != "" {
		sigs = append(sigs, "provider:"+id)
	}
	if id := p.FirstString("regularPaymentDetails.gatewayTransactionId", "gatewayTransactionId"); id != "" {
		sigs = append(sigs, "gateway:"+id)
	}
	if amount, ok := moneyAt(p, "amount"); ok {
		var minute string
		if t, ok := p.Time("createdDate"); ok {
			minute = t.UTC().Truncate(time.Minute).Format(time.RFC3339)
		}
		sigs = append(sigs, "amount:"+amount.StringFixed(2)+"@"+minute)
	}
	return sigs
}

// matchPayments pairs every source payment with the first unused destination
// payment carrying the source payment's primary signature. Unmatched source
// payments get -1.
func matchPayments(source, dest []domain.RawItem) []int {
	destSigs := make([][]string, len(dest))
	for j, d := range dest {
		destSigs[j] = paymentSignatures(d)
	}
	used := make([]bool, len(dest))
	out := make([]int, len(source))
	for i, s := range source {
		out[i] = -1
		sigs := paymentSignatures(s)
		if len(sigs) == 0 {
			continue
		}
		for j := range dest {
			if used[j] || !slices.Contains(destSigs[j], sigs[0]) {
				continue
			}
			used[j] = true
			out[i] = j
			break
		}
	}
	return out
}

// refundSignature identifies a refund by amount. Refunds replayed as external
// refunds carry no provider refund id in the destination.
func refundSignature(r domain.RawItem) string {
	amount, ok := moneyAt(r, "amount")
	if !ok {
		return ""
	}
	return "amount:" + amount.StringFixed(2)
}

// missingRefunds returns the source refunds the destination payment does not carry yet
func missingRefunds(source []domain.RawItem, destPayment domain.RawItem) []domain.RawItem {
	existing := make(map[string]int)
	for _, r := range destPayment.Objects("refunds") {
		existing[refundSignature(r)]++
	}
	var out []domain.RawItem
	for _, r := range source {
		sig := refundSignature(r)
		if existing[sig] > 0 {
			existing[sig]--
			continue
		}
		out = append(out, r)
	}
	return out
}

// paymentPayload keeps the creation date so that signatures survive the copy
func paymentPayload(p domain.RawItem) domain.RawItem {
	return p.Without("id", "_id", "refunds")
}

func lineSKU(line domain.RawItem) string {
	return strings.TrimSpace(line.FirstString("physicalProperties.sku", "sku"))
}

func lineName(line domain.RawItem) string {
	return strings.TrimSpace(line.FirstString("productName.original", "productName.translated", "productName", "name"))
}

// lineCapacity tracks how many units of each destination line item can still
// be fulfilled, and how many of those the source actually shipped
type lineCapacity struct {
	remaining map[string]int
	owed      map[string]int
	fulfilled map[string]int
	bySKU     map[string]string
	byName    map[string]string
}

func newLineCapacity(destLines, destFulfillments []domain.RawItem) *lineCapacity {
	c := &lineCapacity{
		remaining: make(map[string]int, len(destLines)),
		fulfilled: make(map[string]int, len(destLines)),
		bySKU:     make(map[string]string, len(destLines)),
		byName:    make(map[string]string, len(destLines)),
	}
	for _, l := range destLines {
		id := l.String("id")
		c.remaining[id] = l.Int("quantity")
		if sku := lineSKU(l); sku != "" {
			if _, taken := c.bySKU[sku]; !taken {
				c.bySKU[sku] = id
			}
		}
		if name := lineName(l); name != "" {
			if _, taken := c.byName[name]; !taken {
				c.byName[name] = id
			}
		}
	}
	for _, f := range destFulfillments {
		for _, fl := range f.Objects("lineItems") {
			id := fl.String("id")
			c.remaining[id] -= fl.Int("quantity")
			c.fulfilled[id] += fl.Int("quantity")
		}
	}
	return c
}

// expect limits what take hands out to the units the source fulfillments ship
// per destination line, less what the destination already has fulfilled
func (c *lineCapacity) expect(sourceLines map[string]domain.RawItem, sourceFulfillments []domain.RawItem) {
	c.owed = make(map[string]int, len(c.remaining))
	for _, f := range sourceFulfillments {
		for _, fl := range f.Objects("lineItems") {
			src, ok := sourceLines[fl.String("id")]
			if !ok {
				continue
			}
			if destID, ok := c.destinationLine(src); ok {
				c.owed[destID] += fl.Int("quantity")
			}
		}
	}
	for id, qty := range c.fulfilled {
		if _, ok := c.owed[id]; ok {
			c.owed[id] -= qty
		}
	}
}

// destinationLine finds the destination line item for a source line, SKU first
func (c *lineCapacity) destinationLine(src domain.RawItem) (string, bool) {
	if sku := lineSKU(src); sku != "" {
		if id, ok := c.bySKU[sku]; ok {
			return id, true
		}
	}
	if name := lineName(src); name != "" {
		if id, ok := c.byName[name]; ok {
			return id, true
		}
	}
	return "", false
}

// take caps the line items of a source fulfillment at what the destination order
// still has unfulfilled and consumes that capacity. Once expect has run it also
// caps at the units still owed. Lines that cannot be matched or have nothing
// left are dropped.
func (c *lineCapacity) take(sourceLines map[string]domain.RawItem, fulfillment domain.RawItem) []any {
	var out []any
	for _, fl := range fulfillment.Objects("lineItems") {
		src, ok := sourceLines[fl.String("id")]
		if !ok {
			continue
		}
		destID, ok := c.destinationLine(src)
		if !ok {
			continue
		}
		qty := min(fl.Int("quantity"), c.remaining[destID])
		if c.owed != nil {
			qty = min(qty, c.owed[destID])
		}
		if qty <= 0 {
			continue
		}
		c.remaining[destID] -= qty
		if c.owed != nil {
			c.owed[destID] -= qty
		}
		out = append(out, map[string]any{"id": destID, "quantity": qty})
	}
	return out
}

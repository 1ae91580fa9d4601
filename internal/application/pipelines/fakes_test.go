package pipelines

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/infrastructure/repository"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

const (
	srcToken = "src"
	dstToken = "dst"
)

// fakeStore is the state of one store instance
type fakeStore struct {
	collections []domain.RawItem
	products    []domain.RawItem
	inventory   []domain.RawItem
	contacts    []domain.RawItem
	labels      []domain.RawItem
	fields      []domain.RawItem
	members     []domain.RawItem
	badges      []domain.RawItem
	tags        []domain.RawItem
	orders      []domain.RawItem
	coupons     []domain.RawItem
	rules       []domain.RawItem
	folders     []domain.RawItem
	accounts    []domain.RawItem

	files           map[string][]domain.RawItem // folder id -> files
	attachments     map[string][]domain.RawItem // contact id -> attachments
	badgeMembers    map[string][]string
	following       map[string][]string
	transactions    map[string][]domain.RawItem // order id -> payments
	fulfillments    map[string][]domain.RawItem // order id -> fulfillments
	refundsByCharge map[string][]domain.RawItem

	collectionProducts map[string][]string
	follows            []string
	adjustments        []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:              make(map[string][]domain.RawItem),
		attachments:        make(map[string][]domain.RawItem),
		badgeMembers:       make(map[string][]string),
		following:          make(map[string][]string),
		transactions:       make(map[string][]domain.RawItem),
		fulfillments:       make(map[string][]domain.RawItem),
		refundsByCharge:    make(map[string][]domain.RawItem),
		collectionProducts: make(map[string][]string),
	}
}

// fakeRemote implements every client port over two in-memory stores
type fakeRemote struct {
	mu     sync.Mutex
	stores map[string]*fakeStore
	seq    int

	// calls counts write operations by name
	calls map[string]int
	// created lists created destination items as "kind:label" in call order
	created []string
	// contactQueries records the email batches sent to the bulk lookup
	contactQueries [][]string
	// conflictCoupons makes CreateCoupon store the coupon and still answer 409
	conflictCoupons bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		stores: map[string]*fakeStore{srcToken: newFakeStore(), dstToken: newFakeStore()},
		calls:  make(map[string]int),
	}
}

func (f *fakeRemote) src() *fakeStore { return f.stores[srcToken] }
func (f *fakeRemote) dst() *fakeStore { return f.stores[dstToken] }

func (f *fakeRemote) clients() ports.RemoteClients {
	return ports.RemoteClients{
		Collections:   f,
		Products:      f,
		Contacts:      f,
		Members:       f,
		Orders:        f,
		Coupons:       f,
		DiscountRules: f,
		Media:         f,
		Loyalty:       f,
	}
}

func (f *fakeRemote) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeRemote) write(op string) {
	f.calls[op]++
}

func seqOf(items []domain.RawItem) iter.Seq2[domain.RawItem, error] {
	snapshot := make([]domain.RawItem, len(items))
	for i, it := range items {
		snapshot[i] = it.Clone()
	}
	return func(yield func(domain.RawItem, error) bool) {
		for _, it := range snapshot {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func findByID(items []domain.RawItem, id string) domain.RawItem {
	for _, it := range items {
		if it.String("id") == id {
			return it
		}
	}
	return nil
}

func (f *fakeRemote) list(token string, pick func(*fakeStore) []domain.RawItem) iter.Seq2[domain.RawItem, error] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return seqOf(pick(f.stores[token]))
}

// Collections and products

func (f *fakeRemote) ListCollections(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.collections })
}

func (f *fakeRemote) CreateCollection(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("collections.create")
	id := f.nextID("col")
	c := payload.Clone()
	c["id"] = id
	f.stores[token].collections = append(f.stores[token].collections, c)
	f.created = append(f.created, "collection:"+payload.String("name"))
	return id, nil
}

func (f *fakeRemote) ListProducts(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.products })
}

func (f *fakeRemote) ListInventory(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.inventory })
}

func (f *fakeRemote) CreateProduct(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("products.create")
	id := f.nextID("prod")
	p := payload.Clone()
	p["id"] = id
	f.stores[token].products = append(f.stores[token].products, p)
	f.created = append(f.created, "product:"+payload.String("name"))
	return id, nil
}

func (f *fakeRemote) AddProductsToCollection(_ context.Context, token string, collectionID string, productIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("collections.addProducts")
	s := f.stores[token]
	s.collectionProducts[collectionID] = append(s.collectionProducts[collectionID], productIDs...)
	return nil
}

// Contacts

func (f *fakeRemote) ListContacts(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.contacts })
}

func fakeContactEmail(c domain.RawItem) string {
	return strings.ToLower(c.FirstString("primaryInfo.email", "info.emails.items.0.email"))
}

func (f *fakeRemote) FindContactByEmail(_ context.Context, token string, email string) (domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.stores[token].contacts {
		if fakeContactEmail(c) == strings.ToLower(email) {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) QueryContactIDsByEmail(_ context.Context, token string, emails []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactQueries = append(f.contactQueries, append([]string(nil), emails...))
	out := make(map[string]string)
	for _, c := range f.stores[token].contacts {
		e := fakeContactEmail(c)
		for _, want := range emails {
			if e == strings.ToLower(want) {
				out[e] = c.String("id")
			}
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateContact(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("contacts.create")
	id := f.nextID("contact")
	c := payload.Clone()
	c["id"] = id
	f.stores[token].contacts = append(f.stores[token].contacts, c)
	label := payload.FirstString("info.emails.items.0.email", "info.name.first")
	f.created = append(f.created, "contact:"+label)
	return id, nil
}

func (f *fakeRemote) ListLabels(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.labels })
}

func (f *fakeRemote) FindOrCreateLabel(_ context.Context, token string, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stores[token]
	for _, l := range s.labels {
		if l.String("displayName") == displayName {
			return l.String("key"), nil
		}
	}
	f.write("labels.create")
	key := "custom." + strings.ToLower(strings.ReplaceAll(displayName, " ", "-"))
	s.labels = append(s.labels, domain.RawItem{"key": key, "displayName": displayName})
	return key, nil
}

func (f *fakeRemote) ListExtendedFields(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.fields })
}

func (f *fakeRemote) FindOrCreateExtendedField(_ context.Context, token string, displayName string, dataType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stores[token]
	for _, fd := range s.fields {
		if fd.String("displayName") == displayName {
			return fd.String("key"), nil
		}
	}
	f.write("fields.create")
	key := "custom.dst-" + strings.ToLower(displayName)
	s.fields = append(s.fields, domain.RawItem{"key": key, "displayName": displayName, "dataType": dataType})
	return key, nil
}

func (f *fakeRemote) ListAttachments(_ context.Context, token string, contactID string) ([]domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[token].attachments[contactID], nil
}

func (f *fakeRemote) AttachmentUploadURL(_ context.Context, _ string, contactID string, fileName string, _ string) (string, error) {
	return "https://upload.test/" + contactID + "/" + fileName, nil
}

// Members

func (f *fakeRemote) ListMembers(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.members })
}

func (f *fakeRemote) CreateMember(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("members.create")
	id := f.nextID("member")
	m := payload.Clone()
	m["id"] = id
	f.stores[token].members = append(f.stores[token].members, m)
	return id, nil
}

func (f *fakeRemote) ListBadges(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.badges })
}

func (f *fakeRemote) ListBadgeMembers(_ context.Context, token string, badgeID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[token].badgeMembers[badgeID], nil
}

func (f *fakeRemote) FindOrCreateBadge(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stores[token]
	for _, b := range s.badges {
		if b.String("title") == payload.String("title") {
			return b.String("id"), nil
		}
	}
	f.write("badges.create")
	id := f.nextID("badge")
	b := payload.Clone()
	b["id"] = id
	s.badges = append(s.badges, b)
	return id, nil
}

func (f *fakeRemote) AssignBadge(_ context.Context, token string, badgeID string, memberIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("badges.assign")
	s := f.stores[token]
	s.badgeMembers[badgeID] = append(s.badgeMembers[badgeID], memberIDs...)
	return nil
}

func (f *fakeRemote) ListFollowing(_ context.Context, token string, memberID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[token].following[memberID], nil
}

func (f *fakeRemote) Follow(_ context.Context, token string, memberID string, followedMemberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	edge := memberID + "->" + followedMemberID
	s := f.stores[token]
	for _, e := range s.follows {
		if e == edge {
			return &ports.RemoteError{Op: "members.follow", Status: http.StatusConflict, Body: "already following"}
		}
	}
	f.write("members.follow")
	s.follows = append(s.follows, edge)
	return nil
}

// Orders

func (f *fakeRemote) ListOrders(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.orders })
}

func (f *fakeRemote) GetOrder(_ context.Context, token string, orderID string) (domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := findByID(f.stores[token].orders, orderID); o != nil {
		return o.Clone(), nil
	}
	return nil, nil
}

func (f *fakeRemote) ListTransactions(_ context.Context, token string, orderID string) ([]domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RawItem
	for _, p := range f.stores[token].transactions[orderID] {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (f *fakeRemote) SearchRefundsByCharge(_ context.Context, token string, chargeID string) ([]domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[token].refundsByCharge[chargeID], nil
}

func (f *fakeRemote) GetRefund(_ context.Context, token string, refundID string) (domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, refunds := range f.stores[token].refundsByCharge {
		if r := findByID(refunds, refundID); r != nil {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) ListFulfillments(_ context.Context, token string, orderID string) ([]domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stores[token].fulfillments[orderID], nil
}

func (f *fakeRemote) ListTags(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.tags })
}

func (f *fakeRemote) FindOrCreateTag(_ context.Context, token string, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stores[token]
	for _, t := range s.tags {
		if t.String("displayName") == name {
			return t.String("id"), nil
		}
	}
	f.write("tags.create")
	id := f.nextID("tag")
	s.tags = append(s.tags, domain.RawItem{"id": id, "displayName": name})
	return id, nil
}

func (f *fakeRemote) CreateOrder(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("orders.create")
	id := f.nextID("order")
	o := payload.Clone()
	o["id"] = id
	for _, line := range o.Objects("lineItems") {
		line["id"] = f.nextID("line")
	}
	f.stores[token].orders = append(f.stores[token].orders, o)
	return id, nil
}

func (f *fakeRemote) CreateFulfillment(_ context.Context, token string, orderID string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("fulfillments.create")
	id := f.nextID("ful")
	ful := payload.Clone()
	ful["id"] = id
	s := f.stores[token]
	s.fulfillments[orderID] = append(s.fulfillments[orderID], ful)
	return id, nil
}

func (f *fakeRemote) AddPayments(_ context.Context, token string, orderID string, payments []domain.RawItem) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("payments.add")
	s := f.stores[token]
	ids := make([]string, len(payments))
	for i, p := range payments {
		ids[i] = f.nextID("pay")
		stored := p.Clone()
		stored["id"] = ids[i]
		s.transactions[orderID] = append(s.transactions[orderID], stored)
	}
	return ids, nil
}

func (f *fakeRemote) RefundPayments(_ context.Context, token string, orderID string, refunds []domain.RawItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("payments.refund")
	for _, r := range refunds {
		p := findByID(f.stores[token].transactions[orderID], r.String("paymentId"))
		if p == nil {
			return &ports.RemoteError{Op: "payments.refund", Status: http.StatusNotFound, Body: "payment not found"}
		}
		p["refunds"] = append(p.Slice("refunds"), map[string]any{"id": f.nextID("refund"), "amount": r["amount"]})
	}
	return nil
}

// Coupons and discount rules

func (f *fakeRemote) ListCoupons(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.coupons })
}

func (f *fakeRemote) FindCouponByCode(_ context.Context, token string, code string) (domain.RawItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.stores[token].coupons {
		if c.String("specification.code") == code {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) CreateCoupon(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("coupons.create")
	id := f.nextID("coupon")
	f.stores[token].coupons = append(f.stores[token].coupons, domain.RawItem{"id": id, "specification": map[string]any(payload.Clone())})
	if f.conflictCoupons {
		return "", &ports.RemoteError{Op: "coupons.create", Status: http.StatusConflict, Body: `{"message":"code already exists"}`}
	}
	f.created = append(f.created, "coupon:"+payload.String("code"))
	return id, nil
}

func (f *fakeRemote) ListDiscountRules(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.rules })
}

func (f *fakeRemote) CreateDiscountRule(_ context.Context, token string, payload domain.RawItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("discountRules.create")
	id := f.nextID("rule")
	r := payload.Clone()
	r["id"] = id
	f.stores[token].rules = append(f.stores[token].rules, r)
	return id, nil
}

// Media

func (f *fakeRemote) ListFolders(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.folders })
}

func (f *fakeRemote) ListFiles(_ context.Context, token string, folderID string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.files[folderID] })
}

func (f *fakeRemote) EnsureFolder(_ context.Context, token string, displayName string, parentFolderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stores[token]
	for _, folder := range s.folders {
		if folder.String("displayName") == displayName && folder.String("parentFolderId") == parentFolderID {
			return folder.String("id"), nil
		}
	}
	f.write("folders.create")
	id := f.nextID("folder")
	s.folders = append(s.folders, domain.RawItem{"id": id, "displayName": displayName, "parentFolderId": parentFolderID})
	return id, nil
}

func (f *fakeRemote) ImportFiles(_ context.Context, token string, files []ports.FileImport) ([]ports.FileImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("files.import")
	s := f.stores[token]
	var results []ports.FileImportResult
	for _, file := range files {
		// files at an "unanswered" URL get no result entry at all
		if strings.Contains(file.URL, "unanswered") {
			continue
		}
		result := ports.FileImportResult{ExternalID: file.ExternalID}
		if strings.Contains(file.URL, "broken") {
			result.Error = "unsupported file"
			results = append(results, result)
			continue
		}
		result.DestinationID = f.nextID("file")
		s.files[file.ParentFolderID] = append(s.files[file.ParentFolderID], domain.RawItem{
			"id":          result.DestinationID,
			"displayName": file.DisplayName,
			"url":         file.URL,
		})
		results = append(results, result)
	}
	return results, nil
}

// Loyalty

func (f *fakeRemote) ListAccounts(_ context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return f.list(token, func(s *fakeStore) []domain.RawItem { return s.accounts })
}

func (f *fakeRemote) CreateAccount(_ context.Context, token string, contactID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("loyalty.create")
	id := f.nextID("account")
	f.stores[token].accounts = append(f.stores[token].accounts, domain.RawItem{
		"id":        id,
		"contactId": contactID,
		"points":    map[string]any{"balance": 0},
	})
	return id, nil
}

func (f *fakeRemote) AdjustPoints(_ context.Context, token string, accountID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write("loyalty.adjust")
	s := f.stores[token]
	a := findByID(s.accounts, accountID)
	if a == nil {
		return &ports.RemoteError{Op: "loyalty.adjust", Status: http.StatusNotFound, Body: "account not found"}
	}
	a.Set("points.balance", a.Int("points.balance")+delta)
	s.adjustments = append(s.adjustments, fmt.Sprintf("%s:%+d", accountID, delta))
	return nil
}

// fakeFiles implements ports.FileTransfer
type fakeFiles struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeFiles) Download(_ context.Context, url string) ([]byte, string, error) {
	return []byte("content of " + url), "application/octet-stream", nil
}

func (f *fakeFiles) Upload(_ context.Context, signedURL string, _ []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, signedURL+" "+contentType)
	return nil
}

type harness struct {
	remote *fakeRemote
	files  *fakeFiles
	ledger *repository.MemoryLedgerStore
	deps   Deps
}

func newHarness() *harness {
	h := &harness{
		remote: newFakeRemote(),
		files:  &fakeFiles{},
		ledger: repository.NewMemoryLedgerStore(),
	}
	h.deps = Deps{
		Ledger: h.ledger,
		Remote: h.remote.clients(),
		Files:  h.files,
		Logger: zerolog.Nop(),
	}
	return h
}

func newJob() *Job {
	return &Job{
		RunID:            "run-1",
		OperatorID:       "op-1",
		FromStoreID:      "store-a",
		ToStoreID:        "store-b",
		SourceToken:      srcToken,
		DestinationToken: dstToken,
		Remapper:         NewRemapper(),
	}
}

// ledgerRow fetches the row of sourceKey for the default job's store pair
func (h *harness) ledgerRow(entity domain.EntityType, sourceKey string) *domain.LedgerEntry {
	job := newJob()
	e, _ := h.ledger.FindByKey(context.Background(), domain.LedgerKey{
		Entity:      entity,
		OperatorID:  job.OperatorID,
		FromStoreID: job.FromStoreID,
		ToStoreID:   job.ToStoreID,
		SourceKey:   sourceKey,
	})
	return e
}

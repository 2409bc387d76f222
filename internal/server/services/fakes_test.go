package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/dbx"
	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/generator"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/entitlements"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/events"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/generations"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/orders"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/pendingsignups"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/users"
	"github.com/dmitrijs2005/neoma/internal/server/repositories/visitors"
)

var errBoom = errors.New("boom")

func discardLogger() logging.Logger {
	return logging.New(io.Discard, logging.BackendSlog, "debug")
}

// bufferLogger returns a logger whose JSON output lands in buf.
func bufferLogger(buf *bytes.Buffer) logging.Logger {
	return logging.New(buf, logging.BackendSlog, "debug")
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// store is a shared in-memory backend for the fake repositories. A single
// mutex keeps every operation atomic, like the single statements the
// Postgres repositories use.
type store struct {
	mu sync.Mutex

	users        map[string]*models.User // by id
	refresh      map[string]*models.RefreshToken
	visitors     map[string]*models.VisitorState
	generations  []*models.Generation
	entitlements map[string]*models.Entitlement
	pending      map[string]*models.PendingSignup
	events       map[string]string
	orders       []*models.Order

	seq int

	errs map[string]error // forced failures by "<repo>.<method>"
}

func newStore() *store {
	return &store{
		users:        map[string]*models.User{},
		refresh:      map[string]*models.RefreshToken{},
		visitors:     map[string]*models.VisitorState{},
		entitlements: map[string]*models.Entitlement{},
		pending:      map[string]*models.PendingSignup{},
		events:       map[string]string{},
		errs:         map[string]error{},
	}
}

func (s *store) fail(op string, err error) { s.errs[op] = err }

func (s *store) next(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

// --- repo manager ---

type fakeRepoManager struct{ s *store }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return fakeUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return fakeRefresh{m.s} }
func (m *fakeRepoManager) Visitors(dbx.DBTX) visitors.Repository           { return fakeVisitors{m.s} }
func (m *fakeRepoManager) Generations(dbx.DBTX) generations.Repository     { return fakeGenerations{m.s} }
func (m *fakeRepoManager) Entitlements(dbx.DBTX) entitlements.Repository   { return fakeEntitlements{m.s} }
func (m *fakeRepoManager) PendingSignups(dbx.DBTX) pendingsignups.Repository {
	return fakePending{m.s}
}
func (m *fakeRepoManager) Events(dbx.DBTX) events.Repository { return fakeEvents{m.s} }
func (m *fakeRepoManager) Orders(dbx.DBTX) orders.Repository { return fakeOrders{m.s} }

// --- users ---

type fakeUsers struct{ s *store }

func (f fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["users.Create"]; err != nil {
		return nil, err
	}
	for _, existing := range f.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrAlreadyExists
		}
	}
	u.ID = f.s.next("u")
	u.CreatedAt = time.Now()
	cp := *u
	f.s.users[u.ID] = &cp
	return u, nil
}

func (f fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["users.GetByEmail"]; err != nil {
		return nil, err
	}
	for _, u := range f.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeUsers) Exists(ctx context.Context, id string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["users.Exists"]; err != nil {
		return false, err
	}
	_, ok := f.s.users[id]
	return ok, nil
}

// --- refresh tokens ---

type fakeRefresh struct{ s *store }

func (f fakeRefresh) Create(ctx context.Context, userID, token string, validity time.Duration) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["refresh.Create"]; err != nil {
		return err
	}
	f.s.refresh[token] = &models.RefreshToken{UserID: userID, Expires: time.Now().Add(validity)}
	return nil
}

func (f fakeRefresh) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.refresh[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.s.refresh, token)
	return t, nil
}

func (f fakeRefresh) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for k, t := range f.s.refresh {
		if t.Expires.Before(now) {
			delete(f.s.refresh, k)
			n++
		}
	}
	return n, nil
}

// --- visitors ---

type fakeVisitors struct{ s *store }

func (f fakeVisitors) Touch(ctx context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["visitors.Touch"]; err != nil {
		return err
	}
	if _, ok := f.s.visitors[id]; !ok {
		f.s.visitors[id] = &models.VisitorState{VisitorID: id, Kind: models.VisitorUnclaimed}
	}
	return nil
}

func (f fakeVisitors) Get(ctx context.Context, id string) (*models.VisitorState, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	st, ok := f.s.visitors[id]
	if !ok {
		return &models.VisitorState{VisitorID: id, Kind: models.VisitorUnclaimed}, nil
	}
	cp := *st
	return &cp, nil
}

func (f fakeVisitors) Consume(ctx context.Context, id string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["visitors.Consume"]; err != nil {
		return false, err
	}
	st, ok := f.s.visitors[id]
	if !ok {
		now := time.Now()
		f.s.visitors[id] = &models.VisitorState{VisitorID: id, Kind: models.VisitorExhausted, ConsumedAt: &now}
		return true, nil
	}
	if st.Kind != models.VisitorUnclaimed {
		return false, nil
	}
	now := time.Now()
	st.Kind = models.VisitorExhausted
	st.ConsumedAt = &now
	return true, nil
}

func (f fakeVisitors) Release(ctx context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if st, ok := f.s.visitors[id]; ok && st.Kind == models.VisitorExhausted {
		st.Kind = models.VisitorUnclaimed
		st.ConsumedAt = nil
	}
	return nil
}

func (f fakeVisitors) Claim(ctx context.Context, id, userID string) (string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["visitors.Claim"]; err != nil {
		return "", err
	}
	st, ok := f.s.visitors[id]
	if !ok {
		return "", nil
	}
	if st.Kind == models.VisitorExhausted && st.UserID == "" {
		now := time.Now()
		st.Kind = models.VisitorClaimed
		st.UserID = userID
		st.ClaimedAt = &now
	}
	return st.UserID, nil
}

// --- generations ---

type fakeGenerations struct{ s *store }

func (f fakeGenerations) Create(ctx context.Context, g *models.Generation) (*models.Generation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["generations.Create"]; err != nil {
		return nil, err
	}
	g.ID = f.s.next("g")
	g.CreatedAt = time.Now().Add(time.Duration(f.s.seq) * time.Millisecond)
	cp := *g
	f.s.generations = append(f.s.generations, &cp)
	return g, nil
}

func (f fakeGenerations) TransferVisitor(ctx context.Context, visitorID, userID string) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for _, g := range f.s.generations {
		if g.OwnerVisitorID == visitorID && g.OwnerUserID == "" {
			g.OwnerUserID = userID
			n++
		}
	}
	return n, nil
}

func (f fakeGenerations) ListVisible(ctx context.Context, userID, currentVisitorID string) ([]*models.Generation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["generations.ListVisible"]; err != nil {
		return nil, err
	}
	var out []*models.Generation
	for _, g := range f.s.generations {
		linked := false
		if st, ok := f.s.visitors[g.OwnerVisitorID]; ok && userID != "" && st.UserID == userID {
			linked = true
		}
		if (userID != "" && g.OwnerUserID == userID) || linked ||
			(currentVisitorID != "" && g.OwnerVisitorID == currentVisitorID && g.OwnerUserID == "") {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- entitlements ---

type fakeEntitlements struct{ s *store }

func (f fakeEntitlements) Create(ctx context.Context, userID string, attempts int) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["entitlements.Create"]; err != nil {
		return err
	}
	if _, ok := f.s.entitlements[userID]; !ok {
		f.s.entitlements[userID] = &models.Entitlement{UserID: userID, AttemptsRemaining: attempts}
	}
	return nil
}

func (f fakeEntitlements) Get(ctx context.Context, userID string) (*models.Entitlement, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["entitlements.Get"]; err != nil {
		return nil, err
	}
	e, ok := f.s.entitlements[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *e
	return &cp, nil
}

func (f fakeEntitlements) Decrement(ctx context.Context, userID string) (int, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["entitlements.Decrement"]; err != nil {
		return 0, false, err
	}
	e, ok := f.s.entitlements[userID]
	if !ok || e.AttemptsRemaining <= 0 {
		return 0, false, nil
	}
	e.AttemptsRemaining--
	return e.AttemptsRemaining, true, nil
}

func (f fakeEntitlements) Increment(ctx context.Context, userID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if e, ok := f.s.entitlements[userID]; ok {
		e.AttemptsRemaining++
	}
	return nil
}

func (f fakeEntitlements) Grant(ctx context.Context, g models.EntitlementGrant) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["entitlements.Grant"]; err != nil {
		return err
	}
	e, ok := f.s.entitlements[g.UserID]
	if !ok {
		e = &models.Entitlement{UserID: g.UserID}
		f.s.entitlements[g.UserID] = e
	}
	e.IsPaid = true
	if g.Attempts > e.AttemptsRemaining {
		e.AttemptsRemaining = g.Attempts
	}
	if g.SubscriptionFormat != "" {
		e.SubscriptionFormat = g.SubscriptionFormat
	}
	if g.SubscriptionQuality != "" {
		e.SubscriptionQuality = g.SubscriptionQuality
	}
	if g.CustomerRef != "" {
		e.CustomerRef = g.CustomerRef
	}
	e.IncludedPosterAvailable = e.IncludedPosterAvailable || g.GrantIncludedPoster
	return nil
}

func (f fakeEntitlements) RedeemIncludedPoster(ctx context.Context, userID, posterRef string) (*models.Entitlement, bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	e, ok := f.s.entitlements[userID]
	if !ok || !e.IncludedPosterAvailable || e.SubscriptionFormat == "" {
		return nil, false, nil
	}
	e.IncludedPosterAvailable = false
	e.IncludedPosterRef = posterRef
	cp := *e
	return &cp, true, nil
}

// --- pending signups ---

type fakePending struct{ s *store }

func (f fakePending) Create(ctx context.Context, p *models.PendingSignup) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["pending.Create"]; err != nil {
		return err
	}
	p.CreatedAt = time.Now()
	cp := *p
	f.s.pending[p.ID] = &cp
	return nil
}

func (f fakePending) Get(ctx context.Context, id string) (*models.PendingSignup, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.pending[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *p
	return &cp, nil
}

func (f fakePending) Delete(ctx context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.pending, id)
	return nil
}

func (f fakePending) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for id, p := range f.s.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(f.s.pending, id)
			n++
		}
	}
	return n, nil
}

// --- events ---

type fakeEvents struct{ s *store }

func (f fakeEvents) MarkProcessed(ctx context.Context, id, typ string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["events.MarkProcessed"]; err != nil {
		return false, err
	}
	if _, ok := f.s.events[id]; ok {
		return false, nil
	}
	f.s.events[id] = typ
	return true, nil
}

// --- orders ---

type fakeOrders struct{ s *store }

func (f fakeOrders) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.errs["orders.Create"]; err != nil {
		return nil, err
	}
	o.ID = f.s.next("o")
	o.CreatedAt = time.Now()
	cp := *o
	f.s.orders = append(f.s.orders, &cp)
	return o, nil
}

func (f fakeOrders) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.Order
	for _, o := range f.s.orders {
		if o.PayerUserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- outer collaborators ---

type fakeArtifactStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	putErr     error
	presignErr error
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: map[string][]byte{}}
}

func (f *fakeArtifactStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = body
	return nil
}

func (f *fakeArtifactStore) PresignGet(ctx context.Context, key string) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://s3.test/" + key + "?sig", nil
}

type fakeProvider struct {
	err   error
	calls int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (*generator.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Image{Data: []byte("png:" + prompt), ContentType: "image/png"}, nil
}

type fakeProcessor struct {
	mu   sync.Mutex
	reqs []payments.SessionRequest
	err  error
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	id := fmt.Sprintf("cs_test_%d", len(f.reqs))
	return &payments.Session{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (f *fakeProcessor) last() payments.SessionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

package httpapi

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dmitrijs2005/neoma/internal/logging"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/payments"
	"github.com/dmitrijs2005/neoma/internal/server/services"
)

var errBoom = errors.New("boom")

func discardLogger() logging.Logger {
	return logging.New(io.Discard, logging.BackendSlog, "debug")
}

type fakeQuota struct {
	got models.Principal
	res *services.Attempts
	err error
}

func (f *fakeQuota) GetAttempts(ctx context.Context, p models.Principal) (*services.Attempts, error) {
	f.got = p
	return f.res, f.err
}

type fakeGenerator struct {
	got    models.Principal
	prompt string
	res    *services.GenerationResult
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, p models.Principal, prompt string) (*services.GenerationResult, error) {
	f.got, f.prompt = p, prompt
	return f.res, f.err
}

type fakeArtifacts struct {
	userID, visitorID string
	list              []*models.Artifact
	err               error
}

func (f *fakeArtifacts) ListAllArtifacts(ctx context.Context, userID, visitorID string) ([]*models.Artifact, error) {
	f.userID, f.visitorID = userID, visitorID
	return f.list, f.err
}

type fakeAccounts struct {
	email, password, visitorID string
	pair                       *services.TokenPair
	err                        error
}

func (f *fakeAccounts) Register(ctx context.Context, email, password, visitorID string) (*services.TokenPair, error) {
	f.email, f.password, f.visitorID = email, password, visitorID
	return f.pair, f.err
}

func (f *fakeAccounts) Login(ctx context.Context, email, password, visitorID string) (*services.TokenPair, error) {
	f.email, f.password, f.visitorID = email, password, visitorID
	return f.pair, f.err
}

func (f *fakeAccounts) RefreshToken(ctx context.Context, token string) (*services.TokenPair, error) {
	f.password = token
	return f.pair, f.err
}

type fakeCheckout struct {
	priceReq services.PriceRequest
	intent   services.CheckoutIntent
	price    *services.PriceBreakdown
	session  *services.CheckoutSession
	orders   []*models.Order
	err      error
}

func (f *fakeCheckout) Price(req services.PriceRequest) (*services.PriceBreakdown, error) {
	f.priceReq = req
	return f.price, f.err
}

func (f *fakeCheckout) CreateSession(ctx context.Context, in services.CheckoutIntent) (*services.CheckoutSession, error) {
	f.intent = in
	return f.session, f.err
}

func (f *fakeCheckout) Orders(ctx context.Context, userID string) ([]*models.Order, error) {
	return f.orders, f.err
}

type fakeSettlement struct {
	events []*payments.Event
	status services.SettlementStatus
	err    error
}

func (f *fakeSettlement) Settle(ctx context.Context, ev *payments.Event) (services.SettlementStatus, error) {
	f.events = append(f.events, ev)
	return f.status, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

var testCreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

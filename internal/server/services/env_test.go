package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/neoma/internal/cryptox"
	"github.com/dmitrijs2005/neoma/internal/server/config"
	"github.com/dmitrijs2005/neoma/internal/server/pricing"
	_ "modernc.org/sqlite"
)

// newTxDB returns a real *sql.DB so dbx.WithTx can begin and commit; the
// fake repositories ignore the handle they are given.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	store     *store
	rm        *fakeRepoManager
	db        *sql.DB
	cfg       *config.Config
	registry  *pricing.Registry
	signupKey []byte

	artifacts *fakeArtifactStore
	provider  *fakeProvider
	processor *fakeProcessor

	quota      *QuotaService
	identity   *IdentityService
	users      *UserService
	generation *GenerationService
	checkout   *CheckoutService
	settlement *SettlementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, newTxDB(t))
}

func newTestEnvWithDB(t *testing.T, db *sql.DB) *testEnv {
	t.Helper()

	e := &testEnv{
		store: newStore(),
		db:    db,
		cfg: &config.Config{
			SecretKey:                    "k",
			AccessTokenValidityDuration:  time.Hour,
			RefreshTokenValidityDuration: 2 * time.Hour,
			PublicBaseURL:                "https://neoma.test/",
		},
		registry:  pricing.DefaultRegistry(),
		signupKey: cryptox.KeyFromSecret("signupKey"),
		artifacts: newFakeArtifactStore(),
		provider:  &fakeProvider{},
		processor: &fakeProcessor{},
	}
	e.rm = &fakeRepoManager{s: e.store}
	log := discardLogger()

	cat := e.registry.Current()
	e.quota = NewQuotaService(db, e.rm, log)
	e.identity = NewIdentityService(db, e.rm, e.artifacts, log)
	e.users = NewUserService(db, e.rm, e.identity, e.cfg, cat.FreeUserAttempts, log)
	e.generation = NewGenerationService(db, e.rm, e.quota, e.provider, e.artifacts, log)
	e.checkout = NewCheckoutService(db, e.rm, e.registry, e.processor, e.signupKey, e.cfg.PublicBaseURL, log)
	e.settlement = NewSettlementService(db, e.rm, e.registry, e.identity, e.signupKey, log)
	return e
}

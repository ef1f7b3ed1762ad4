package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"referralhub/internal/config"
	"referralhub/internal/model"
	"referralhub/internal/pricing"
	"referralhub/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	repos   repository.Repositories
	catalog *pricing.Catalog
	clock   *fakeClock
	codes   ReferralCodeService
	track   AttributionService
	owner   *model.User
	code    *model.ReferralCode
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.NewSQLiteDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// newFixture seeds alice@x.com owning FRIEND10 and wires the tracking stack with cfg.
func newFixture(t *testing.T, cfg LedgerConfig) *fixture {
	t.Helper()

	db := openTestDB(t)
	catalog, err := pricing.NewCatalog(pricing.DefaultProducts)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	f := &fixture{
		t:       t,
		db:      db,
		repos:   repository.NewRepositories(db),
		catalog: catalog,
		clock:   newFakeClock(),
	}
	f.codes = NewReferralCodeService(f.repos.Codes, f.repos.Users)
	f.track = NewAttributionService(f.codes, repository.NewUnitOfWork(db), catalog, cfg, zap.NewNop(), WithClock(f.clock.Now))
	f.owner = f.createUser("alice@x.com", "Alice")
	f.code = f.createCode(f.owner, "FRIEND10")
	return f
}

func (f *fixture) createUser(email, name string) *model.User {
	f.t.Helper()
	u := &model.User{Email: email, Name: name, Status: model.UserStatusActive}
	if err := f.repos.Users.Create(context.Background(), u); err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) createCode(owner *model.User, code string) *model.ReferralCode {
	f.t.Helper()
	rc := &model.ReferralCode{Code: code, OwnerUserID: owner.ID, IsActive: true}
	if err := f.repos.Codes.Create(context.Background(), rc); err != nil {
		f.t.Fatalf("create code: %v", err)
	}
	return rc
}

func (f *fixture) reloadCode() *model.ReferralCode {
	f.t.Helper()
	rc, err := f.repos.Codes.GetByOwner(context.Background(), f.owner.ID)
	if err != nil {
		f.t.Fatalf("reload code: %v", err)
	}
	return rc
}

func (f *fixture) count(m interface{}, query string, args ...interface{}) int64 {
	f.t.Helper()
	var n int64
	q := f.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		f.t.Fatalf("count: %v", err)
	}
	return n
}

func (f *fixture) mustTrack(in TrackInput) *TrackResult {
	f.t.Helper()
	res, err := f.track.Track(context.Background(), in)
	if err != nil {
		f.t.Fatalf("track %s: %v", in.Action, err)
	}
	if !res.Success {
		f.t.Fatalf("track %s: success=false", in.Action)
	}
	return res
}

func click(code, email string) TrackInput {
	return TrackInput{Action: "click", ReferralCode: code, RefereeEmail: email}
}

func signup(code, email string) TrackInput {
	return TrackInput{Action: "signup", ReferralCode: code, RefereeEmail: email}
}

func purchase(code, email, orderID string) TrackInput {
	return TrackInput{Action: "purchase", ReferralCode: code, RefereeEmail: email, OrderID: orderID}
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

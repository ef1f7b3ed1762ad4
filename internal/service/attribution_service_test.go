package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"referralhub/internal/model"
)

func TestTrack_ClickSignupPurchaseReplay(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())

	// click
	clicked := f.mustTrack(click("FRIEND10", "bob@y.com"))
	if clicked.ReferralID == nil {
		t.Fatal("click should return a referral id")
	}
	if got := f.reloadCode().TotalClicks; got != 1 {
		t.Fatalf("totalClicks = %d, want 1", got)
	}
	if n := f.count(&model.Redemption{}, "status = ?", model.RedemptionStatusPending); n != 1 {
		t.Fatalf("pending redemptions = %d, want 1", n)
	}

	// signup
	f.clock.Advance(time.Hour)
	signed := f.mustTrack(signup("FRIEND10", "Bob@Y.com"))
	if *signed.ReferralID != *clicked.ReferralID {
		t.Fatalf("signup moved to a new redemption: %s != %s", signed.ReferralID, clicked.ReferralID)
	}
	if got := f.reloadCode().TotalSignups; got != 1 {
		t.Fatalf("totalSignups = %d, want 1", got)
	}
	if len(signed.Events) != 1 || signed.Events[0].Type != EventRefereeSignup || signed.Events[0].To != "alice@x.com" {
		t.Fatalf("unexpected signup events: %+v", signed.Events)
	}
	var r model.Redemption
	if err := f.db.First(&r, "id = ?", *clicked.ReferralID).Error; err != nil {
		t.Fatalf("load redemption: %v", err)
	}
	if r.SignedUpAt == nil || r.Status != model.RedemptionStatusPending {
		t.Fatalf("signup should stamp signedUpAt and stay pending: %+v", r)
	}

	// purchase
	f.clock.Advance(time.Hour)
	bought := f.mustTrack(purchase("FRIEND10", "bob@y.com", "ORD-1"))
	if *bought.ReferralID != *clicked.ReferralID {
		t.Fatal("purchase should complete the open redemption")
	}
	if bought.RewardEligible == nil || !*bought.RewardEligible {
		t.Fatalf("rewardEligible = %v, want true", bought.RewardEligible)
	}
	if bought.Rewards == nil || bought.Rewards.Referrer == nil || bought.Rewards.Referee == nil {
		t.Fatalf("rewards block incomplete: %+v", bought.Rewards)
	}
	if bought.Rewards.Referrer.AmountCents != 499 {
		t.Fatalf("credit amount = %d, want 499", bought.Rewards.Referrer.AmountCents)
	}
	wantExpiry := f.clock.Now().Add(90 * 24 * time.Hour)
	if !bought.Rewards.Referrer.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("credit expiry = %s, want %s", bought.Rewards.Referrer.ExpiresAt, wantExpiry)
	}
	if n := f.count(&model.Reward{}, "beneficiary_user_id = ? AND type = ?", f.owner.ID, model.RewardTypeReferralCredit); n != 1 {
		t.Fatalf("credits = %d, want 1", n)
	}
	if err := f.db.First(&r, "id = ?", *clicked.ReferralID).Error; err != nil {
		t.Fatalf("load redemption: %v", err)
	}
	if r.Status != model.RedemptionStatusCompleted || r.RefereeOrderID == nil || *r.RefereeOrderID != "ORD-1" {
		t.Fatalf("redemption not completed for ORD-1: %+v", r)
	}
	rc := f.reloadCode()
	if rc.TotalOrders != 1 || rc.TotalEarningsCents != 499 {
		t.Fatalf("aggregates = orders %d earnings %d", rc.TotalOrders, rc.TotalEarningsCents)
	}

	// replay
	replay := f.mustTrack(purchase("FRIEND10", "bob@y.com", "ORD-1"))
	if !replay.Replay() || replay.Message != "Purchase already tracked" {
		t.Fatalf("replay not reported: %+v", replay)
	}
	if *replay.ReferralID != *clicked.ReferralID {
		t.Fatal("replay should return the same referral id")
	}
	if replay.Rewards != nil || len(replay.Events) != 0 {
		t.Fatalf("replay should not issue anything: %+v", replay)
	}
	if n := f.count(&model.Reward{}, ""); n != 1 {
		t.Fatalf("rewards after replay = %d, want 1", n)
	}
	if got := f.reloadCode().TotalOrders; got != 1 {
		t.Fatalf("totalOrders after replay = %d, want 1", got)
	}
}

func TestTrack_RepeatedClickAndSignupDoNotDoubleCount(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())

	first := f.mustTrack(click("friend10", "bob@y.com"))
	second := f.mustTrack(click(" FRIEND10 ", "BOB@y.com"))
	if *first.ReferralID != *second.ReferralID {
		t.Fatal("duplicate click created a second redemption")
	}

	f.mustTrack(signup("FRIEND10", "bob@y.com"))
	again := f.mustTrack(signup("FRIEND10", "bob@y.com"))
	if len(again.Events) != 0 {
		t.Fatalf("second signup should not notify: %+v", again.Events)
	}

	rc := f.reloadCode()
	if rc.TotalClicks != 1 || rc.TotalSignups != 1 {
		t.Fatalf("clicks=%d signups=%d, want 1/1", rc.TotalClicks, rc.TotalSignups)
	}
	if n := f.count(&model.Redemption{}, ""); n != 1 {
		t.Fatalf("redemptions = %d, want 1", n)
	}
}

func TestTrack_PurchaseWithoutPriorTracking(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())

	in := purchase("FRIEND10", "carol@z.com", "ORD-9")
	in.OrderValue = floatPtr(19.99)
	res := f.mustTrack(in)

	var r model.Redemption
	if err := f.db.First(&r, "id = ?", *res.ReferralID).Error; err != nil {
		t.Fatalf("load redemption: %v", err)
	}
	if r.Status != model.RedemptionStatusCompleted || r.ClickedAt != nil || r.PurchasedAt == nil {
		t.Fatalf("unexpected redemption: %+v", r)
	}
	if r.OrderValueCents == nil || *r.OrderValueCents != 1999 {
		t.Fatalf("orderValueCents = %v, want 1999", r.OrderValueCents)
	}
	if res.Rewards.Referrer.AmountCents != 499 {
		t.Fatal("order value must not change the credit amount")
	}
}

func TestTrack_OrderValueBounds(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())

	in := purchase("FRIEND10", "carol@z.com", "ORD-MAX")
	in.OrderValue = floatPtr(MaxOrderValue)
	res := f.mustTrack(in)
	var r model.Redemption
	if err := f.db.First(&r, "id = ?", *res.ReferralID).Error; err != nil {
		t.Fatalf("load redemption: %v", err)
	}
	if r.OrderValueCents == nil || *r.OrderValueCents != MaxOrderValue*100 {
		t.Fatalf("orderValueCents = %v, want %d", r.OrderValueCents, int64(MaxOrderValue*100))
	}

	in = purchase("FRIEND10", "dan@z.com", "ORD-HUGE")
	in.OrderValue = floatPtr(1e300)
	_, err := f.track.Track(context.Background(), in)
	if !errors.Is(err, ErrInvalidArgument) || !strings.Contains(err.Error(), "orderValue") {
		t.Fatalf("err = %v, want orderValue rejection", err)
	}
	if n := f.count(&model.Redemption{}, "referee_email = ?", "dan@z.com"); n != 0 {
		t.Fatalf("rejected purchase wrote %d redemptions", n)
	}
}

func TestTrack_FieldLengthMessages(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())

	_, err := f.track.Track(context.Background(), purchase("FRIEND10", "bob@y.com", strings.Repeat("O", 200)))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
	if want := "orderId must be at most 128 characters"; !strings.Contains(err.Error(), want) {
		t.Fatalf("err = %q, want it to mention %q", err, want)
	}
}

func TestTrack_RejectsBeforeWriting(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())
	past := f.clock.Now().Add(-time.Minute)

	expired := f.createCode(f.createUser("dave@x.com", "Dave"), "OLDCODE")
	if err := f.db.Model(expired).Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire code: %v", err)
	}
	inactive := f.createCode(f.createUser("erin@x.com", "Erin"), "OFFCODE")
	if err := f.codes.Deactivate(context.Background(), inactive.Code); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		name string
		in   TrackInput
		want error
	}{
		{"missing action", TrackInput{ReferralCode: "FRIEND10", RefereeEmail: "bob@y.com"}, ErrInvalidArgument},
		{"invalid action", TrackInput{Action: "view", ReferralCode: "FRIEND10", RefereeEmail: "bob@y.com"}, ErrInvalidArgument},
		{"missing code", TrackInput{Action: "click", RefereeEmail: "bob@y.com"}, ErrInvalidArgument},
		{"missing email", TrackInput{Action: "click", ReferralCode: "FRIEND10"}, ErrInvalidArgument},
		{"bad email", click("FRIEND10", "not-an-email"), ErrInvalidArgument},
		{"purchase without order", purchase("FRIEND10", "bob@y.com", "  "), ErrInvalidArgument},
		{"negative order value", TrackInput{Action: "purchase", ReferralCode: "FRIEND10", RefereeEmail: "bob@y.com", OrderID: "ORD-1", OrderValue: floatPtr(-1)}, ErrInvalidArgument},
		{"order value beyond cents range", TrackInput{Action: "purchase", ReferralCode: "FRIEND10", RefereeEmail: "bob@y.com", OrderID: "ORD-1", OrderValue: floatPtr(1e300)}, ErrInvalidArgument},
		{"overlong order id", purchase("FRIEND10", "bob@y.com", strings.Repeat("O", 129)), ErrInvalidArgument},
		{"overlong referee id", TrackInput{Action: "signup", ReferralCode: "FRIEND10", RefereeEmail: "bob@y.com", RefereeID: strPtr(strings.Repeat("u", 129))}, ErrInvalidArgument},
		{"overlong email", click("FRIEND10", strings.Repeat("b", 320)+"@y.com"), ErrInvalidArgument},
		{"overlong code", click(strings.Repeat("F", 65), "bob@y.com"), ErrInvalidArgument},
		{"unknown code", click("NOPE", "bob@y.com"), ErrCodeNotFound},
		{"expired code", purchase("OLDCODE", "bob@y.com", "ORD-1"), ErrCodeExpired},
		{"inactive code", click("OFFCODE", "bob@y.com"), ErrCodeInactive},
		{"self referral", purchase("FRIEND10", "ALICE@x.com", "ORD-1"), ErrSelfReferral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.track.Track(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if n := f.count(&model.Redemption{}, ""); n != 0 {
		t.Fatalf("rejected calls wrote %d redemptions", n)
	}
	if n := f.count(&model.Reward{}, ""); n != 0 {
		t.Fatalf("rejected calls wrote %d rewards", n)
	}
	if !errors.Is(ErrSelfReferral, ErrInvalidArgument) {
		t.Fatal("self referral must be an invalid argument")
	}
}

func TestTrack_CreditCap(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())

	for i := 1; i <= 7; i++ {
		res := f.mustTrack(purchase("FRIEND10", fmt.Sprintf("ref%d@y.com", i), fmt.Sprintf("ORD-%d", i)))
		wantEligible := i <= 5
		if res.RewardEligible == nil || *res.RewardEligible != wantEligible {
			t.Fatalf("purchase %d: rewardEligible = %v, want %v", i, res.RewardEligible, wantEligible)
		}
		if !wantEligible && res.Rewards != nil && res.Rewards.Referrer != nil {
			t.Fatalf("purchase %d: credit issued past the cap", i)
		}
	}

	if n := f.count(&model.Reward{}, "type = ?", model.RewardTypeReferralCredit); n != 5 {
		t.Fatalf("credits = %d, want 5", n)
	}
	if n := f.count(&model.Redemption{}, "status = ?", model.RedemptionStatusCompleted); n != 7 {
		t.Fatalf("completed redemptions = %d, want 7", n)
	}
	rc := f.reloadCode()
	if rc.TotalOrders != 7 || rc.TotalEarningsCents != 5*499 {
		t.Fatalf("orders=%d earnings=%d", rc.TotalOrders, rc.TotalEarningsCents)
	}
}

func TestTrack_ExpiredCreditsDoNotCountTowardCap(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())
	for i := 0; i < 5; i++ {
		stale := &model.Reward{
			BeneficiaryUserID: f.owner.ID,
			AmountCents:       499,
			Type:              model.RewardTypeReferralCredit,
			Description:       "old",
			Status:            model.RewardStatusExpired,
			ExpiresAt:         f.clock.Now().Add(-time.Hour),
		}
		if err := f.repos.Rewards.Create(context.Background(), stale); err != nil {
			t.Fatalf("seed reward: %v", err)
		}
	}

	res := f.mustTrack(purchase("FRIEND10", "bob@y.com", "ORD-1"))
	if !*res.RewardEligible {
		t.Fatal("expired credits must not count toward the cap")
	}
}

func TestTrack_MilestoneCadence(t *testing.T) {
	cfg := DefaultLedgerConfig()
	cfg.RewardCap = 100
	f := newFixture(t, cfg)

	for i := 1; i <= 9; i++ {
		res := f.mustTrack(purchase("FRIEND10", fmt.Sprintf("ref%d@y.com", i), fmt.Sprintf("ORD-%d", i)))
		gotMilestone := res.Rewards != nil && res.Rewards.Milestone != nil
		if gotMilestone != (i%3 == 0) {
			t.Fatalf("completion %d: milestone = %v", i, gotMilestone)
		}
		if gotMilestone {
			m := res.Rewards.Milestone
			if m.AmountCents != 1499 {
				t.Fatalf("milestone amount = %d, want 1499", m.AmountCents)
			}
			if want := f.clock.Now().Add(180 * 24 * time.Hour); !m.ExpiresAt.Equal(want) {
				t.Fatalf("milestone expiry = %s, want %s", m.ExpiresAt, want)
			}
			var found bool
			for _, ev := range res.Events {
				if ev.Type == EventMilestoneAchieved && ev.Count == int64(i) {
					found = true
				}
			}
			if !found {
				t.Fatalf("completion %d: no milestone event in %+v", i, res.Events)
			}
		}
	}
	if n := f.count(&model.Reward{}, "type = ?", model.RewardTypeMilestoneBonus); n != 3 {
		t.Fatalf("milestones = %d, want 3", n)
	}
}

func TestTrack_MilestoneCapAndCreditCapAreIndependent(t *testing.T) {
	cfg := DefaultLedgerConfig()
	cfg.RewardCap = 1
	cfg.MilestoneCap = 1
	f := newFixture(t, cfg)

	var results []*TrackResult
	for i := 1; i <= 6; i++ {
		results = append(results, f.mustTrack(purchase("FRIEND10", fmt.Sprintf("ref%d@y.com", i), fmt.Sprintf("ORD-%d", i))))
	}

	third := results[2]
	if *third.RewardEligible {
		t.Fatal("credit cap of 1 should make the 3rd purchase ineligible")
	}
	if third.Rewards == nil || third.Rewards.Milestone == nil {
		t.Fatal("milestone should still fire on the 3rd completion")
	}
	if sixth := results[5]; sixth.Rewards != nil && sixth.Rewards.Milestone != nil {
		t.Fatal("milestone cap of 1 should block the 6th completion bonus")
	}
	if n := f.count(&model.Reward{}, ""); n != 2 {
		t.Fatalf("rewards = %d, want 1 credit + 1 milestone", n)
	}
}

func TestTrack_ConcurrentPurchaseReplays(t *testing.T) {
	f := newFixture(t, DefaultLedgerConfig())
	f.mustTrack(click("FRIEND10", "bob@y.com"))

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.track.Track(context.Background(), purchase("FRIEND10", "bob@y.com", "ORD-1"))
			if err != nil {
				errs <- err
				return
			}
			ids <- res.ReferralID.String()
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent purchase failed: %v", err)
	}
	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("concurrent replays returned %d distinct referral ids", len(seen))
	}
	if n := f.count(&model.Reward{}, ""); n != 1 {
		t.Fatalf("rewards = %d, want exactly 1", n)
	}
	if n := f.count(&model.Redemption{}, "status = ?", model.RedemptionStatusCompleted); n != 1 {
		t.Fatalf("completed redemptions = %d, want 1", n)
	}
	if got := f.reloadCode().TotalOrders; got != 1 {
		t.Fatalf("totalOrders = %d, want 1", got)
	}
}

func TestTrack_CreditEventsFollowIssuance(t *testing.T) {
	cfg := DefaultLedgerConfig()
	cfg.RewardCap = 1
	f := newFixture(t, cfg)

	first := f.mustTrack(purchase("FRIEND10", "bob@y.com", "ORD-1"))
	if len(first.Events) != 1 || first.Events[0].Type != EventRewardEarned || first.Events[0].Amount != "$4.99" {
		t.Fatalf("unexpected events: %+v", first.Events)
	}

	second := f.mustTrack(purchase("FRIEND10", "carol@z.com", "ORD-2"))
	if len(second.Events) != 1 || second.Events[0].Type != EventRefereePurchase {
		t.Fatalf("capped purchase should only notify the referral: %+v", second.Events)
	}
	if second.Message == first.Message {
		t.Fatal("capped purchase should explain the missing credit")
	}
}

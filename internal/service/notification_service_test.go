package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"referralhub/internal/repository"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMail
	fails int
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (s *fakeSender) mails() []sentMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMail(nil), s.sent...)
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close dispatcher: %v", err)
	}
}

func TestDispatcher_DeliversOncePerDedupeKey(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, repository.NewMemoryStateStore(), zap.NewNop(), DispatcherConfig{Workers: 3, QueueSize: 16, DedupeTTL: time.Hour})

	ev := Event{
		Type:          EventRewardEarned,
		To:            "alice@x.com",
		DedupeKey:     "reward_earned:1",
		RecipientName: "Alice",
		Amount:        "$4.99",
		Description:   "Referral credit: bob@y.com made their first purchase",
	}
	d.Dispatch(ev, ev, ev)
	closeDispatcher(t, d)

	mails := sender.mails()
	if len(mails) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mails))
	}
	if mails[0].to != "alice@x.com" || !strings.Contains(mails[0].body, "$4.99") || !strings.Contains(mails[0].body, "Hi Alice!") {
		t.Fatalf("unexpected mail: %+v", mails[0])
	}
}

func TestDispatcher_FailedSendReleasesDedupeKey(t *testing.T) {
	sender := &fakeSender{fails: 1}
	state := repository.NewMemoryStateStore()
	d := NewDispatcher(sender, state, zap.NewNop(), DispatcherConfig{Workers: 1, QueueSize: 4, DedupeTTL: time.Hour})

	ev := Event{Type: EventWelcome, To: "bob@y.com", DedupeKey: "welcome:1", ReferralCode: "FRIEND10"}
	d.Dispatch(ev)
	d.Dispatch(ev)
	closeDispatcher(t, d)

	mails := sender.mails()
	if len(mails) != 1 {
		t.Fatalf("sent %d mails, want the retry to go through once", len(mails))
	}
	if !strings.Contains(mails[0].subject, "FRIEND10") || !strings.Contains(mails[0].body, "Hi there!") {
		t.Fatalf("unexpected welcome mail: %+v", mails[0])
	}
}

func TestDispatcher_DispatchAfterCloseDoesNotPanic(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, repository.NewMemoryStateStore(), zap.NewNop(), DispatcherConfig{})
	closeDispatcher(t, d)

	d.Dispatch(Event{Type: EventWelcome, To: "bob@y.com"})
	if n := len(sender.mails()); n != 0 {
		t.Fatalf("sent %d mails after close", n)
	}
	closeDispatcher(t, d)
}

func TestRenderEvent(t *testing.T) {
	for _, typ := range []EventType{EventWelcome, EventRefereeSignup, EventRewardEarned, EventMilestoneAchieved, EventRefereePurchase} {
		subject, body, err := renderEvent(Event{Type: typ, ReferralCode: "FRIEND10", RefereeEmail: "bob@y.com", Count: 3})
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if subject == "" || body == "" {
			t.Fatalf("%s: empty mail", typ)
		}
	}
	if _, _, err := renderEvent(Event{Type: "unknown"}); err == nil {
		t.Fatal("unknown event type should fail to render")
	}
}

func TestRenderEvent_RefereePurchaseExplainsCreditLimit(t *testing.T) {
	_, body, err := renderEvent(Event{
		Type:          EventRefereePurchase,
		RecipientName: "Alice",
		ReferralCode:  "FRIEND10",
		RefereeEmail:  "bob@y.com",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "bob@y.com") || !strings.Contains(body, "referral credit limit") {
		t.Fatalf("unexpected body: %q", body)
	}
}

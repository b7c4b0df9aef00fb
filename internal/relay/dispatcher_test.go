package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/offpay/internal/domain"
	"github.com/punchamoorthee/offpay/internal/envelope"
	"github.com/punchamoorthee/offpay/internal/service"
	"github.com/punchamoorthee/offpay/internal/store"
)

type sms struct {
	to, body string
}

// recorder is a Transport that keeps every message and can be told to fail.
type recorder struct {
	mu    sync.Mutex
	sent  []sms
	fails int // remaining sends that fail
	calls int
}

func (r *recorder) Send(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fails != 0 {
		if r.fails > 0 {
			r.fails--
		}
		return errors.New("gateway timeout")
	}
	r.sent = append(r.sent, sms{to: to, body: body})
	return nil
}

func (r *recorder) messages() []sms {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sms(nil), r.sent...)
}

type fixture struct {
	store *store.MemoryStore
	svc   *service.TransferService
	rec   *recorder
	d     *Dispatcher
	a, b  *domain.Account
}

func newFixture(t *testing.T, rec *recorder, retries uint64) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, err := s.CreateAccount(ctx, "a@pay", "1234", 10000)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateAccount(ctx, "b@pay", "5678", 10000)
	if err != nil {
		t.Fatal(err)
	}
	svc := service.NewTransferService(s)
	d := NewDispatcher(rec, svc, Options{
		NotifyAddress: "+10000000000",
		Retries:       retries,
		RetryInterval: time.Millisecond,
	})
	return &fixture{store: s, svc: svc, rec: rec, d: d, a: a, b: b}
}

func encode(t *testing.T, r domain.TransferRequest) string {
	t.Helper()
	r.Channel = domain.ChannelOffline
	token, err := envelope.Encode(r)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestOnReceiveTransferNotifiesSender(t *testing.T) {
	f := newFixture(t, &recorder{}, 0)
	token := encode(t, domain.TransferRequest{
		SenderID: f.a.ID, ReceiverHandle: "b@pay", Amount: 2500, PIN: "1234", Op: domain.OpTransfer,
	})

	reply, err := f.d.OnReceive(context.Background(), "+15550001111", token)
	if err != nil {
		t.Fatal(err)
	}
	f.d.Wait()

	if reply.Outcome.Transfer.SenderBalance != 7500 {
		t.Fatalf("sender balance=%d want 7500", reply.Outcome.Transfer.SenderBalance)
	}
	if reply.Request.Channel != domain.ChannelOffline {
		t.Fatalf("channel=%s", reply.Request.Channel)
	}
	msgs := f.rec.messages()
	if len(msgs) != 1 {
		t.Fatalf("messages=%d want 1", len(msgs))
	}
	if msgs[0].to != "+15550001111" {
		t.Fatalf("reply went to %s", msgs[0].to)
	}
	if !strings.HasPrefix(msgs[0].body, "Rs.25.00 sent to b@pay successfully.") ||
		!strings.Contains(msgs[0].body, reply.Outcome.Transfer.ReferenceNumber) {
		t.Fatalf("body=%q", msgs[0].body)
	}
}

func TestOnReceiveFallsBackToNotifyAddress(t *testing.T) {
	f := newFixture(t, &recorder{}, 0)
	token := encode(t, domain.TransferRequest{SenderID: f.a.ID, PIN: "1234", Op: domain.OpBalance})

	reply, err := f.d.OnReceive(context.Background(), "", token)
	if err != nil {
		t.Fatal(err)
	}
	f.d.Wait()

	if reply.Outcome.Balance != 10000 {
		t.Fatalf("balance=%d", reply.Outcome.Balance)
	}
	msgs := f.rec.messages()
	if len(msgs) != 1 || msgs[0].to != "+10000000000" || msgs[0].body != "Your current balance is Rs.100.00" {
		t.Fatalf("messages=%+v", msgs)
	}
}

func TestOnReceiveRejectionNotifies(t *testing.T) {
	f := newFixture(t, &recorder{}, 0)
	token := encode(t, domain.TransferRequest{
		SenderID: f.a.ID, ReceiverHandle: "b@pay", Amount: 50000, PIN: "1234", Op: domain.OpTransfer,
	})

	reply, err := f.d.OnReceive(context.Background(), "+1555", token)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err=%v", err)
	}
	f.d.Wait()

	if reply == nil || reply.Message != "Transaction Failed due to Insufficient Balance" {
		t.Fatalf("reply=%+v", reply)
	}
	if msgs := f.rec.messages(); len(msgs) != 1 || msgs[0].body != reply.Message {
		t.Fatalf("messages=%+v", msgs)
	}
}

func TestOnReceiveMalformedEnvelope(t *testing.T) {
	f := newFixture(t, &recorder{}, 0)

	reply, err := f.d.OnReceive(context.Background(), "+1555", "!!garbage!!")
	if !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("err=%v want ErrDecode", err)
	}
	if reply != nil {
		t.Fatalf("reply=%+v want nil", reply)
	}
	f.d.Wait()
	if msgs := f.rec.messages(); len(msgs) != 1 || msgs[0].body != "Invalid Option" {
		t.Fatalf("messages=%+v", msgs)
	}
}

// A dead transport must not undo or block a completed transfer.
func TestNotificationFailureKeepsTransfer(t *testing.T) {
	rec := &recorder{fails: -1}
	f := newFixture(t, rec, 2)
	token := encode(t, domain.TransferRequest{
		SenderID: f.a.ID, ReceiverHandle: "b@pay", Amount: 1000, PIN: "1234", Op: domain.OpTransfer,
	})

	if _, err := f.d.OnReceive(context.Background(), "+1555", token); err != nil {
		t.Fatalf("transfer failed because of transport: %v", err)
	}
	f.d.Wait()

	if rec.calls != 3 {
		t.Fatalf("send attempts=%d want 3 (1 + 2 retries)", rec.calls)
	}
	a, _ := f.store.GetAccount(context.Background(), f.a.ID)
	b, _ := f.store.GetAccount(context.Background(), f.b.ID)
	if a.Balance != 9000 || b.Balance != 11000 {
		t.Fatalf("a=%d b=%d want 9000/11000", a.Balance, b.Balance)
	}
}

func TestNotificationRetrySucceeds(t *testing.T) {
	rec := &recorder{fails: 1}
	f := newFixture(t, rec, 2)

	f.d.Notify(context.Background(), "+1555", "hello")
	f.d.Wait()

	if msgs := rec.messages(); len(msgs) != 1 || msgs[0].body != "hello" {
		t.Fatalf("messages=%+v", msgs)
	}
}

func TestDuplicateDeliveryTransfersTwice(t *testing.T) {
	f := newFixture(t, &recorder{}, 0)
	token := encode(t, domain.TransferRequest{
		SenderID: f.a.ID, ReceiverHandle: "b@pay", Amount: 100, PIN: "1234", Op: domain.OpTransfer,
	})

	for i := 0; i < 2; i++ {
		if _, err := f.d.OnReceive(context.Background(), "+1555", token); err != nil {
			t.Fatal(err)
		}
	}
	f.d.Wait()

	a, _ := f.store.GetAccount(context.Background(), f.a.ID)
	if a.Balance != 9800 {
		t.Fatalf("a=%d want 9800 after duplicate delivery", a.Balance)
	}
}

func TestSendRequiresDestination(t *testing.T) {
	f := newFixture(t, &recorder{}, 0)
	if err := f.d.Send(context.Background(), "", "token"); err == nil {
		t.Fatal("expected error for empty destination")
	}
	if err := f.d.Send(context.Background(), "+1555", "token"); err != nil {
		t.Fatal(err)
	}
	if msgs := f.rec.messages(); len(msgs) != 1 || msgs[0].body != "token" {
		t.Fatalf("messages=%+v", msgs)
	}
}

func TestCloseDrainsAndRefusesNewNotifications(t *testing.T) {
	rec := &recorder{fails: 1}
	f := newFixture(t, rec, 1)

	f.d.Notify(context.Background(), "+1555", "before")
	f.d.Close()
	if msgs := rec.messages(); len(msgs) != 1 || msgs[0].body != "before" {
		t.Fatalf("pending notification not drained: %+v", msgs)
	}

	f.d.Notify(context.Background(), "+1555", "after")
	f.d.Wait()
	if msgs := rec.messages(); len(msgs) != 1 {
		t.Fatalf("notification accepted after Close: %+v", msgs)
	}
}

// Notify racing Close must never panic the WaitGroup or leak a send.
func TestCloseConcurrentWithNotify(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, rec, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.d.Notify(context.Background(), "+1555", "x")
		}()
	}
	f.d.Close()
	wg.Wait()
	f.d.Wait()

	if n := len(rec.messages()); n > 50 {
		t.Fatalf("messages=%d", n)
	}
}

package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/vinylbot/internal/pricing"
	"github.com/m3rciful/vinylbot/internal/session"
)

type fakeCheckout struct {
	mu    sync.Mutex
	calls []CheckoutRequest
	url   string
	err   error
	delay time.Duration
}

func (f *fakeCheckout) RequestCheckout(_ context.Context, req CheckoutRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	err := f.err
	url := f.url
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return url, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []Order
	err    error
	nextID int64
}

func (f *fakeOrders) Insert(_ context.Context, o Order) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	// Mirrors the repository's idempotent insert: a repeated token returns
	// the existing row instead of creating a new one.
	for i, prev := range f.orders {
		if prev.CheckoutToken == o.CheckoutToken {
			return int64(i) + 1, nil
		}
	}
	f.orders = append(f.orders, o)
	f.nextID++
	return f.nextID, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	placed []int64
	err    error
}

func (f *fakeEvents) OrderPlaced(_ context.Context, orderID int64, _ Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.placed = append(f.placed, orderID)
	return nil
}

func testTable(t *testing.T) *pricing.Table {
	t.Helper()
	table, err := pricing.New(map[int]int64{1: 2000, 2: 4000, 3: 6000, 4: 8000, 5: 10000})
	if err != nil {
		t.Fatalf("pricing.New: %v", err)
	}
	return table
}

func testMachine(t *testing.T) (*Machine, *session.MemoryStore, *fakeCheckout, *fakeOrders, *fakeEvents) {
	t.Helper()
	store := session.NewMemoryStore(0)
	t.Cleanup(store.Close)
	checkout := &fakeCheckout{url: "https://pay.example/cs_test_1"}
	orders := &fakeOrders{}
	events := &fakeEvents{}
	m, err := New(Config{
		Sessions: store,
		Prices:   testTable(t),
		Checkout: checkout,
		Orders:   orders,
		Events:   events,
		Product:  "Classic Vinyl",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, store, checkout, orders, events
}

func TestFullIntake(t *testing.T) {
	ctx := context.Background()
	m, store, checkout, orders, events := testMachine(t)
	const userID int64 = 42

	reply, err := m.Start(ctx, userID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reply.Text != promptName {
		t.Fatalf("start reply = %q, want name prompt", reply.Text)
	}

	reply, err = m.Text(ctx, userID, "Jane Doe")
	if err != nil {
		t.Fatalf("name: %v", err)
	}
	if reply.Text != promptQuantity {
		t.Fatalf("name reply = %q, want quantity prompt", reply.Text)
	}
	if len(reply.Buttons) != 6 {
		t.Fatalf("quantity buttons = %d, want 6 (1..5 and 6+)", len(reply.Buttons))
	}
	if got := reply.Buttons[5].Data; got != QuantityCustom {
		t.Fatalf("last button data = %q, want %q", got, QuantityCustom)
	}

	reply, err = m.Quantity(ctx, userID, "3")
	if err != nil {
		t.Fatalf("quantity: %v", err)
	}
	if reply.Text != promptPhone {
		t.Fatalf("quantity reply = %q, want phone prompt", reply.Text)
	}

	// Too short: the step re-enters itself and nothing is recorded.
	reply, err = m.Text(ctx, userID, "12345")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("short phone err = %v, want ValidationError", err)
	}
	if reply.Text != msgInvalidPhone {
		t.Fatalf("short phone reply = %q", reply.Text)
	}
	s, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Step != session.StepAwaitingPhone || s.Phone != "" {
		t.Fatalf("after invalid phone: step=%s phone=%q", s.Step, s.Phone)
	}

	reply, err = m.Text(ctx, userID, "123456789")
	if err != nil {
		t.Fatalf("phone: %v", err)
	}
	if reply.Text != promptAddress {
		t.Fatalf("phone reply = %q, want address prompt", reply.Text)
	}

	reply, err = m.Text(ctx, userID, "221B Baker Street")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if reply.LinkURL != "https://pay.example/cs_test_1" {
		t.Fatalf("link url = %q", reply.LinkURL)
	}
	if !strings.Contains(reply.Text, "Jane Doe") ||
		!strings.Contains(reply.Text, "221B Baker Street") ||
		!strings.Contains(reply.Text, "$60") {
		t.Fatalf("summary = %q", reply.Text)
	}

	if len(checkout.calls) != 1 {
		t.Fatalf("checkout calls = %d, want 1", len(checkout.calls))
	}
	req := checkout.calls[0]
	if req.AmountMinor != 6000 || req.Quantity != 3 || req.Token == "" {
		t.Fatalf("checkout request = %+v", req)
	}

	if len(orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders.orders))
	}
	o := orders.orders[0]
	if o.UserID != userID || o.Name != "Jane Doe" || o.Phone != "123456789" ||
		o.Address != "221B Baker Street" || o.Quantity != 3 || o.AmountMinor != 6000 {
		t.Fatalf("order = %+v", o)
	}
	if o.CheckoutToken != req.Token {
		t.Fatalf("order token %q != checkout token %q", o.CheckoutToken, req.Token)
	}

	if len(events.placed) != 1 {
		t.Fatalf("events = %d, want 1", len(events.placed))
	}

	// Session is gone; further text is ignored as no-session.
	if _, err := m.Text(ctx, userID, "hello"); err != ErrNoSession {
		t.Fatalf("post-completion text err = %v, want ErrNoSession", err)
	}
	if m.InProgress(userID) {
		t.Fatal("InProgress after completion")
	}
}

func TestCustomQuantity(t *testing.T) {
	ctx := context.Background()
	m, store, checkout, _, _ := testMachine(t)
	const userID int64 = 7

	mustStep(t, ctx, m, userID, "Ann Example")

	reply, err := m.Quantity(ctx, userID, QuantityCustom)
	if err != nil {
		t.Fatalf("custom branch: %v", err)
	}
	if reply.Text != promptCustomQuantity {
		t.Fatalf("custom reply = %q", reply.Text)
	}

	for _, bad := range []string{"abc", "0", "-2", "1.5", "", "1001", "4611686018427387904"} {
		reply, err = m.Text(ctx, userID, bad)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("input %q err = %v, want ValidationError", bad, err)
		}
		if reply.Text != msgInvalidQuantity {
			t.Fatalf("input %q reply = %q", bad, reply.Text)
		}
	}
	s, _ := store.Get(ctx, userID)
	if s.Step != session.StepAwaitingCustomQty {
		t.Fatalf("step after invalid quantities = %s", s.Step)
	}

	if _, err = m.Text(ctx, userID, "12"); err != nil {
		t.Fatalf("custom quantity: %v", err)
	}
	if _, err = m.Text(ctx, userID, "123456789"); err != nil {
		t.Fatalf("phone: %v", err)
	}
	if _, err = m.Text(ctx, userID, "Main St 1"); err != nil {
		t.Fatalf("address: %v", err)
	}

	// Above the top tier the price is linear in the single-unit tier.
	if got := checkout.calls[0].AmountMinor; got != 12*2000 {
		t.Fatalf("amount = %d, want %d", got, 12*2000)
	}
}

func TestQuantityButtonsFollowTiers(t *testing.T) {
	table, err := pricing.New(map[int]int64{1: 1500, 2: 2800, 5: 6000})
	if err != nil {
		t.Fatalf("pricing.New: %v", err)
	}
	sessions := session.NewMemoryStore(0)
	t.Cleanup(sessions.Close)
	m, err := New(Config{
		Sessions: sessions,
		Prices:   table,
		Checkout: &fakeCheckout{url: "https://pay.example/cs"},
		Orders:   &fakeOrders{},
		Product:  "Classic Vinyl",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buttons := m.QuantityButtons()
	wantLabels := []string{"1", "2", "5", "6+"}
	if len(buttons) != len(wantLabels) {
		t.Fatalf("buttons = %d, want %d", len(buttons), len(wantLabels))
	}
	for i, want := range wantLabels {
		if buttons[i].Label != want {
			t.Errorf("button %d label = %q, want %q", i, buttons[i].Label, want)
		}
	}
	if buttons[3].Data != QuantityCustom {
		t.Errorf("last button data = %q, want %q", buttons[3].Data, QuantityCustom)
	}
}

func TestStaleQuantityButton(t *testing.T) {
	ctx := context.Background()
	m, _, _, _, _ := testMachine(t)
	const userID int64 = 8

	mustStep(t, ctx, m, userID, "Ann Example")
	if _, err := m.Quantity(ctx, userID, "2"); err != nil {
		t.Fatalf("first press: %v", err)
	}
	// A second press of the old keyboard is ignored.
	if _, err := m.Quantity(ctx, userID, "4"); err != ErrNoSession {
		t.Fatalf("stale press err = %v, want ErrNoSession", err)
	}
}

func TestStartRestartsIntake(t *testing.T) {
	ctx := context.Background()
	m, store, _, _, _ := testMachine(t)
	const userID int64 = 9

	mustStep(t, ctx, m, userID, "First Name")
	if _, err := m.Start(ctx, userID); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s, err := store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Step != session.StepAwaitingName || s.Name != "" {
		t.Fatalf("after restart: step=%s name=%q", s.Step, s.Name)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	m, _, _, _, _ := testMachine(t)
	const userID int64 = 10

	if _, err := m.Cancel(ctx, userID); err != ErrNoSession {
		t.Fatalf("cancel without session err = %v, want ErrNoSession", err)
	}

	mustStep(t, ctx, m, userID, "Ann Example")
	reply, err := m.Cancel(ctx, userID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if reply.Text != msgCancelled {
		t.Fatalf("cancel reply = %q", reply.Text)
	}
	if m.InProgress(userID) {
		t.Fatal("InProgress after cancel")
	}
}

func TestProviderFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	m, store, checkout, orders, _ := testMachine(t)
	const userID int64 = 11

	runToAddress(t, ctx, m, userID)

	checkout.err = errors.New("gateway timeout")
	reply, err := m.Text(ctx, userID, "Main St 1")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if reply.Text != msgPaymentRetry {
		t.Fatalf("reply = %q", reply.Text)
	}
	s, _ := store.Get(ctx, userID)
	if s.Step != session.StepReadyForCheckout {
		t.Fatalf("step = %s, want ready_for_checkout", s.Step)
	}
	token := s.CheckoutToken

	checkout.mu.Lock()
	checkout.err = nil
	checkout.mu.Unlock()
	if _, err = m.Text(ctx, userID, "anything"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders.orders))
	}
	if orders.orders[0].CheckoutToken != token {
		t.Fatal("retry used a different checkout token")
	}
}

func TestPersistenceFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	m, store, checkout, orders, _ := testMachine(t)
	const userID int64 = 12

	runToAddress(t, ctx, m, userID)

	orders.err = errors.New("connection refused")
	reply, err := m.Text(ctx, userID, "Main St 1")
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if reply.Text != msgOrderSaveRetry {
		t.Fatalf("reply = %q", reply.Text)
	}
	s, _ := store.Get(ctx, userID)
	if s.Step != session.StepReadyForCheckout {
		t.Fatalf("step = %s, want ready_for_checkout", s.Step)
	}

	orders.mu.Lock()
	orders.err = nil
	orders.mu.Unlock()
	if _, err = m.Text(ctx, userID, "retry"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders.orders))
	}
	// Checkout ran twice but both requests carried the same token.
	if len(checkout.calls) != 2 || checkout.calls[0].Token != checkout.calls[1].Token {
		t.Fatalf("checkout calls = %+v", checkout.calls)
	}
	if _, err := store.Get(ctx, userID); err != session.ErrNotFound {
		t.Fatalf("session after success = %v, want ErrNotFound", err)
	}
}

func TestConcurrentInputsProduceOneOrder(t *testing.T) {
	ctx := context.Background()
	m, _, checkout, orders, _ := testMachine(t)
	const userID int64 = 13

	runToAddress(t, ctx, m, userID)
	checkout.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Text(ctx, userID, "Main St 1")
		}()
	}
	wg.Wait()

	// One goroutine completes the order; the other arrives after Clear and
	// is rejected as no-session. Either way exactly one order exists.
	if len(orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders.orders))
	}
}

func TestConcurrentCustomQuantityResolvesOnce(t *testing.T) {
	ctx := context.Background()
	m, storeImpl, _, orders, _ := testMachine(t)
	const userID int64 = 14

	mustStep(t, ctx, m, userID, "Ann Example")
	if _, err := m.Quantity(ctx, userID, QuantityCustom); err != nil {
		t.Fatalf("custom branch: %v", err)
	}

	// Two near-simultaneous entries serialize: the first sets the quantity
	// and advances, the second is judged against the phone rule and rejected.
	var wg sync.WaitGroup
	for _, input := range []string{"7", "8"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			m.Text(ctx, userID, text)
		}(input)
	}
	wg.Wait()

	s, err := storeImpl.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Step != session.StepAwaitingPhone {
		t.Fatalf("step = %s, want awaiting_phone", s.Step)
	}
	if s.Quantity != 7 && s.Quantity != 8 {
		t.Fatalf("quantity = %d, want 7 or 8", s.Quantity)
	}
	want := s.Quantity

	if _, err := m.Text(ctx, userID, "123456789"); err != nil {
		t.Fatalf("phone: %v", err)
	}
	if _, err := m.Text(ctx, userID, "Main St 1"); err != nil {
		t.Fatalf("address: %v", err)
	}
	if len(orders.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders.orders))
	}
	if orders.orders[0].Quantity != want {
		t.Fatalf("order quantity = %d, want %d", orders.orders[0].Quantity, want)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	m, store, _, _, _ := testMachine(t)

	mustStep(t, ctx, m, 100, "User A")
	mustStep(t, ctx, m, 200, "User B")
	if _, err := m.Quantity(ctx, 100, "2"); err != nil {
		t.Fatalf("user A quantity: %v", err)
	}

	sa, _ := store.Get(ctx, 100)
	sb, _ := store.Get(ctx, 200)
	if sa.Step != session.StepAwaitingPhone || sb.Step != session.StepAwaitingQuantity {
		t.Fatalf("steps: a=%s b=%s", sa.Step, sb.Step)
	}
	if sb.Name != "User B" {
		t.Fatalf("user B name = %q", sb.Name)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		minor int64
		want  string
	}{
		{6000, "$60"},
		{2000, "$20"},
		{5550, "$55.50"},
		{101, "$1.01"},
	}
	for _, c := range cases {
		if got := FormatAmount(c.minor); got != c.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", c.minor, got, c.want)
		}
	}
}

// mustStep starts an intake and submits the name, leaving the session at the
// quantity step.
func mustStep(t *testing.T, ctx context.Context, m *Machine, userID int64, name string) {
	t.Helper()
	if _, err := m.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Text(ctx, userID, name); err != nil {
		t.Fatalf("name: %v", err)
	}
}

// runToAddress drives the intake up to the address step.
func runToAddress(t *testing.T, ctx context.Context, m *Machine, userID int64) {
	t.Helper()
	mustStep(t, ctx, m, userID, "Ann Example")
	if _, err := m.Quantity(ctx, userID, "1"); err != nil {
		t.Fatalf("quantity: %v", err)
	}
	if _, err := m.Text(ctx, userID, "123456789"); err != nil {
		t.Fatalf("phone: %v", err)
	}
}

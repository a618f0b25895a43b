package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"payment_scheduler/internal/domain/chain"
	"payment_scheduler/internal/domain/history"
	"payment_scheduler/internal/domain/owner"
	"payment_scheduler/internal/domain/payment"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	senderAddress    = "0x1111111111111111111111111111111111111111"
	recipientAddress = "0x2222222222222222222222222222222222222222"
	senderKey        = "sender-key"
)

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

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

// memoryPayments stores copies so callers cannot mutate stored rows by accident.
type memoryPayments struct {
	mu        sync.Mutex
	rows      map[string]payment.ScheduledPayment
	createErr error
	updates   int
}

func newMemoryPayments(ps ...*payment.ScheduledPayment) *memoryPayments {
	m := &memoryPayments{rows: map[string]payment.ScheduledPayment{}}
	for _, p := range ps {
		m.rows[p.ID] = *p
	}
	return m
}

func (m *memoryPayments) Create(_ context.Context, p *payment.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.rows[p.ID] = *p
	return nil
}

func (m *memoryPayments) GetByID(_ context.Context, id string) (*payment.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return &row, nil
}

func (m *memoryPayments) ListByOwner(_ context.Context, ownerID int64) ([]*payment.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.ScheduledPayment
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			r := row
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryPayments) ListDue(_ context.Context, now time.Time, filter payment.DueFilter) ([]*payment.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.ScheduledPayment
	for _, row := range m.rows {
		if !row.IsReady(now) {
			continue
		}
		if filter.OwnerID != nil && row.OwnerID != *filter.OwnerID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, row.Type) {
			continue
		}
		r := row
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextExecutionDate.Time, out[j].NextExecutionDate.Time
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryPayments) UpdateState(_ context.Context, p *payment.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = *p
	m.updates++
	return nil
}

func (m *memoryPayments) Delete(_ context.Context, id string, ownerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.OwnerID != ownerID {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memoryPayments) get(id string) payment.ScheduledPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func containsType(types []payment.Type, t payment.Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

type memoryOwners struct {
	byID map[int64]*owner.Owner
}

func newMemoryOwners(os ...*owner.Owner) *memoryOwners {
	m := &memoryOwners{byID: map[int64]*owner.Owner{}}
	for _, o := range os {
		m.byID[o.ID] = o
	}
	return m
}

func (m *memoryOwners) GetByID(_ context.Context, id int64) (*owner.Owner, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, errors.New("owner not found")
	}
	return o, nil
}

func (m *memoryOwners) GetByAddress(_ context.Context, address string) (*owner.Owner, error) {
	for _, o := range m.byID {
		if strings.EqualFold(o.SendingAddress, address) {
			return o, nil
		}
	}
	return nil, errors.New("owner not found")
}

func testSender() *owner.Owner {
	return &owner.Owner{
		ID:                  1,
		DisplayName:         "Alice",
		SendingAddress:      senderAddress,
		EncryptedSigningKey: "sealed",
	}
}

// fakeChain answers from fixed values and records what it was asked to submit.
type fakeChain struct {
	mu          sync.Mutex
	keys        map[string]string
	balance     decimal.Decimal
	balanceErr  error
	estimate    chain.FeeEstimate
	estimateErr error
	quote       chain.FeeQuote
	quoteErr    error
	submitErr   error
	confirmErr  error
	submissions []chain.Submission
	balanceHits int
	lookupFound bool
	lookupErr   error
	lookups     []string
}

func newFakeChain(balance string) *fakeChain {
	return &fakeChain{
		keys:     map[string]string{senderKey: senderAddress},
		balance:  decimal.RequireFromString(balance),
		estimate: chain.FeeEstimate{GasUnits: 21000, Fee: decimal.RequireFromString("0.001")},
	}
}

func (f *fakeChain) DeriveAddress(authorization string) (string, error) {
	addr, ok := f.keys[authorization]
	if !ok {
		return "", chain.ErrInvalidAuthorization
	}
	return addr, nil
}

func (f *fakeChain) IsValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && len(address) == 42
}

func (f *fakeChain) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceHits++
	return f.balance, f.balanceErr
}

func (f *fakeChain) EstimateFee(_ context.Context, _ chain.Transfer) (chain.FeeEstimate, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeChain) FeeQuote(_ context.Context) (chain.FeeQuote, error) {
	return f.quote, f.quoteErr
}

func (f *fakeChain) Submit(_ context.Context, _ string, s chain.Submission) (chain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return chain.PendingTx{}, f.submitErr
	}
	f.submissions = append(f.submissions, s)
	return chain.PendingTx{Hash: "0xtx"}, nil
}

func (f *fakeChain) AwaitConfirmation(_ context.Context, tx chain.PendingTx) (chain.Receipt, error) {
	if f.confirmErr != nil {
		return chain.Receipt{}, f.confirmErr
	}
	return chain.Receipt{TxID: tx.Hash, BlockNumber: 100, GasUsed: 21000}, nil
}

func (f *fakeChain) LookupReceipt(_ context.Context, tx chain.PendingTx) (chain.Receipt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, tx.Hash)
	if f.lookupErr != nil || !f.lookupFound {
		return chain.Receipt{}, false, f.lookupErr
	}
	return chain.Receipt{TxID: tx.Hash, BlockNumber: 101, GasUsed: 21000}, true, nil
}

type staticKeys struct {
	key string
	err error
}

func (k staticKeys) Authorization(context.Context, int64) (string, error) {
	return k.key, k.err
}

type recordingReceipts struct {
	mu        sync.Mutex
	transfers []string
	failures  []string
}

func (r *recordingReceipts) RecordTransfer(_ context.Context, p *payment.ScheduledPayment, _ payment.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, p.ID)
}

func (r *recordingReceipts) NotifyFailure(_ context.Context, p *payment.ScheduledPayment, _ payment.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, p.ID)
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []*history.Entry
	err     error
}

func (h *memoryHistory) Create(_ context.Context, e *history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, e)
	return nil
}

func (h *memoryHistory) ListByOwner(_ context.Context, ownerID int64) ([]*history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*history.Entry
	for _, e := range h.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

// openLocker grants every lease unless the key is listed in held.
type openLocker struct {
	held map[string]bool
}

func (l openLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

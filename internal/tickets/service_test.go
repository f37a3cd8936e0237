package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

type memRepo struct {
	mu       sync.Mutex
	tickets  map[string]billing.ServiceTicket
	balances map[string]decimal.Decimal
	journal  []billing.Movement
	logs     map[string]billing.DailyServiceLog
	consumed map[string]string
	clients  map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		tickets:  map[string]billing.ServiceTicket{},
		balances: map[string]decimal.Decimal{},
		logs:     map[string]billing.DailyServiceLog{},
		consumed: map[string]string{},
		clients:  map[string]string{},
	}
}

type memSnapshot struct {
	tickets  map[string]billing.ServiceTicket
	balances map[string]decimal.Decimal
	journal  []billing.Movement
	consumed map[string]string
}

func (m *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		tickets:  make(map[string]billing.ServiceTicket, len(m.tickets)),
		balances: make(map[string]decimal.Decimal, len(m.balances)),
		journal:  append([]billing.Movement(nil), m.journal...),
		consumed: make(map[string]string, len(m.consumed)),
	}
	for k, v := range m.tickets {
		s.tickets[k] = v
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	for k, v := range m.consumed {
		s.consumed[k] = v
	}
	return s
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.tickets, m.balances, m.journal, m.consumed = snap.tickets, snap.balances, snap.journal, snap.consumed
		return err
	}
	return nil
}

func (m *memRepo) Querier() shared.Querier { return nil }

func (m *memRepo) List(ctx context.Context, req ListTicketsRequest) ([]billing.ServiceTicket, int, error) {
	var out []billing.ServiceTicket
	for _, t := range m.tickets {
		if req.ClientID != "" && t.ClientID != req.ClientID {
			continue
		}
		if req.Status != "" && t.Status != req.Status {
			continue
		}
		out = append(out, m.withLogs(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, len(out), nil
}

func (m *memRepo) withLogs(t billing.ServiceTicket) billing.ServiceTicket {
	t.RelatedLogIDs = []string{}
	for logID, ticketID := range m.consumed {
		if ticketID == t.ID {
			t.RelatedLogIDs = append(t.RelatedLogIDs, logID)
		}
	}
	sort.Strings(t.RelatedLogIDs)
	t.Documents = append([]string{}, t.Documents...)
	return t
}

func (m *memRepo) Get(ctx context.Context, id string) (*billing.ServiceTicket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, translate(billing.ErrTicketNotFound)
	}
	out := m.withLogs(t)
	return &out, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id string) (*billing.ServiceTicket, error) {
	return m.Get(ctx, id)
}

func (m *memRepo) Insert(ctx context.Context, t billing.ServiceTicket) (string, error) {
	for _, existing := range m.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return "", ErrDuplicateNumber
		}
	}
	t.ID = uuid.NewString()
	for _, logID := range t.RelatedLogIDs {
		if _, used := m.consumed[logID]; used {
			return "", ErrLogAlreadyConsumed
		}
		m.consumed[logID] = t.ID
	}
	t.RelatedLogIDs = nil
	m.tickets[t.ID] = t
	return t.ID, nil
}

func (m *memRepo) Update(ctx context.Context, t billing.ServiceTicket) error {
	if _, ok := m.tickets[t.ID]; !ok {
		return translate(billing.ErrTicketNotFound)
	}
	t.RelatedLogIDs = nil
	m.tickets[t.ID] = t
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.tickets[id]; !ok {
		return translate(billing.ErrTicketNotFound)
	}
	delete(m.tickets, id)
	for logID, ticketID := range m.consumed {
		if ticketID == id {
			delete(m.consumed, logID)
		}
	}
	return nil
}

func (m *memRepo) LockBalances(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, id := range ids {
		if b, ok := m.balances[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (m *memRepo) ApplyMovement(ctx context.Context, mv billing.Movement) error {
	b, ok := m.balances[mv.AgreementID]
	if !ok {
		return ErrUnknownAgreement
	}
	m.balances[mv.AgreementID] = b.Add(mv.Delta)
	m.journal = append(m.journal, mv)
	return nil
}

func (m *memRepo) LoadLogs(ctx context.Context, ids []string, forUpdate bool) ([]billing.DailyServiceLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.DailyServiceLog
	for _, id := range ids {
		if l, ok := m.logs[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memRepo) ConsumedLogs(ctx context.Context, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if ticketID, ok := m.consumed[id]; ok {
			out[id] = ticketID
		}
	}
	return out, nil
}

func (m *memRepo) ClientName(ctx context.Context, id string) (string, error) {
	name, ok := m.clients[id]
	if !ok {
		return "", httpx.NewValidationError("client_id", "The selected client id is invalid.")
	}
	return name, nil
}

type memLinks map[string]billing.LinkedJob

func (l memLinks) ResolveLink(ctx context.Context, id string) (billing.LinkedJob, error) {
	job, ok := l[id]
	if !ok {
		return billing.LinkedJob{}, fmt.Errorf("call-out job: %w", httpx.ErrNotFound)
	}
	return job, nil
}

type memIdempotency struct {
	keys map[string]string
}

func (s *memIdempotency) CheckAndInsert(ctx context.Context, q shared.Querier, key, module string) error {
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = ""
	return nil
}

func (s *memIdempotency) Attach(ctx context.Context, q shared.Querier, key, resourceID string) error {
	s.keys[key] = resourceID
	return nil
}

func (s *memIdempotency) Lookup(ctx context.Context, key, module string) (string, error) {
	if s.keys[key] == "" {
		return "", shared.ErrNotRecorded
	}
	return s.keys[key], nil
}

type recordingEnqueuer struct {
	agreements []string
}

func (e *recordingEnqueuer) EnqueueLedgerVerify(ctx context.Context, agreementID string) error {
	e.agreements = append(e.agreements, agreementID)
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return nil, shared.ErrLockHeld
}

type fixture struct {
	repo     *memRepo
	links    memLinks
	enqueuer *recordingEnqueuer
	svc      *Service
	clientID string
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepo(),
		links:    memLinks{},
		enqueuer: &recordingEnqueuer{},
		clientID: uuid.NewString(),
	}
	f.repo.clients[f.clientID] = "Acme Drilling"
	f.svc = NewService(Deps{
		Repo:        f.repo,
		Links:       f.links,
		Idempotency: &memIdempotency{keys: map[string]string{}},
		Enqueuer:    f.enqueuer,
	}, opts)
	return f
}

func (f *fixture) agreement(clientID string, amount int64) string {
	a := billing.SubAgreement{ID: uuid.NewString(), ClientID: clientID, Name: "MSA " + clientID[:4], Amount: decimal.NewFromInt(amount), Balance: decimal.NewFromInt(amount)}
	f.repo.balances[a.ID] = a.Balance
	f.links[a.ID] = billing.AgreementLink(a)
	return a.ID
}

func (f *fixture) callOut(clientID string) string {
	c := billing.CallOutJob{ID: uuid.NewString(), ClientID: clientID, JobName: "Emergency workover"}
	f.links[c.ID] = billing.CallOutLink(c)
	return c.ID
}

func (f *fixture) log(clientID string, linked *string, present string) string {
	l := billing.DailyServiceLog{
		ID:          uuid.NewString(),
		LogNumber:   "DSL-" + uuid.NewString()[:4],
		ClientID:    clientID,
		Date:        time.Date(2024, time.March, 10, 0, 0, 0, 0, time.Local),
		LinkedJobID: linked,
	}
	if present != "" {
		l.Personnel = []billing.PersonnelLogItem{{ID: "p1", Name: "Driller", DailyStatus: dayrange.BuildStatus(31, present, "")}}
	}
	f.repo.logs[l.ID] = l
	return l.ID
}

func (f *fixture) balance(id string) string {
	return f.repo.balances[id].StringFixed(2)
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func (f *fixture) create(t *testing.T, agreementID *string, amt int64) *billing.ServiceTicket {
	t.Helper()
	ticket, err := f.svc.Create(context.Background(), CreateTicketRequest{
		TicketNumber:   "ST-" + uuid.NewString()[:6],
		ClientID:       f.clientID,
		SubAgreementID: agreementID,
		Date:           "2024-03-12",
		Amount:         amount(amt),
	}, "")
	require.NoError(t, err)
	return ticket
}

func TestCreateDebitsLinkedAgreement(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)

	ticket := f.create(t, &a, 200)
	assert.Equal(t, billing.TicketInFieldToSign, ticket.Status)
	assert.Equal(t, "800.00", f.balance(a))
	require.Len(t, f.repo.journal, 1)
	assert.Equal(t, billing.ReasonTicketCreated, f.repo.journal[0].Reason)
	assert.Equal(t, ticket.ID, f.repo.journal[0].TicketID)
	assert.Equal(t, []string{a}, f.enqueuer.agreements)
}

func TestCreateUnlinkedAndCallOutLeaveBalances(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	c := f.callOut(f.clientID)

	f.create(t, nil, 200)
	_, err := f.svc.Create(context.Background(), CreateTicketRequest{
		TicketNumber: "ST-CALL", ClientID: f.clientID, CallOutJobID: &c, Date: "2024-03-12", Amount: amount(300),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "1000.00", f.balance(a))
	assert.Empty(t, f.repo.journal)
	assert.Empty(t, f.enqueuer.agreements)
}

func TestCreateRejectsInvalidLinks(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	c := f.callOut(f.clientID)
	foreign := f.agreement(uuid.NewString(), 1000)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateTicketRequest{TicketNumber: "ST-1", ClientID: f.clientID, SubAgreementID: &a, CallOutJobID: &c, Date: "2024-03-12", Amount: amount(1)}, "")
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = f.svc.Create(ctx, CreateTicketRequest{TicketNumber: "ST-2", ClientID: f.clientID, SubAgreementID: &foreign, Date: "2024-03-12", Amount: amount(1)}, "")
	require.ErrorIs(t, err, httpx.ErrValidation)

	// a call-out id passed as a sub-agreement
	_, err = f.svc.Create(ctx, CreateTicketRequest{TicketNumber: "ST-3", ClientID: f.clientID, SubAgreementID: &c, Date: "2024-03-12", Amount: amount(1)}, "")
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = f.svc.Create(ctx, CreateTicketRequest{TicketNumber: "ST-4", ClientID: f.clientID, Date: "12/03/2024", Amount: amount(1)}, "")
	require.ErrorIs(t, err, httpx.ErrValidation)

	assert.Empty(t, f.repo.tickets)
}

func TestCreateIdempotencyReplay(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	req := CreateTicketRequest{TicketNumber: "ST-IDEM", ClientID: f.clientID, SubAgreementID: &a, Date: "2024-03-12", Amount: amount(100)}

	first, err := f.svc.Create(context.Background(), req, "key-1")
	require.NoError(t, err)

	req.TicketNumber = "ST-IDEM-2"
	_, err = f.svc.Create(context.Background(), req, "key-1")
	var replay *ReplayError
	require.ErrorAs(t, err, &replay)
	assert.Equal(t, first.ID, replay.TicketID)
	assert.Equal(t, 409, httpx.StatusFor(err))
	assert.Equal(t, "900.00", f.balance(a))
}

func TestUpdateRelinkMovesBalances(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	b := f.agreement(f.clientID, 500)
	ticket := f.create(t, &a, 200)

	newAmount := amount(300)
	_, err := f.svc.Update(context.Background(), ticket.ID, UpdateTicketRequest{
		SubAgreementID: OptionalID{Set: true, Value: &b},
		Amount:         newAmount,
	})
	require.NoError(t, err)

	assert.Equal(t, "1000.00", f.balance(a))
	assert.Equal(t, "200.00", f.balance(b))
	require.Len(t, f.repo.journal, 3)
	assert.Equal(t, billing.ReasonTicketReversed, f.repo.journal[1].Reason)
	assert.Equal(t, billing.ReasonTicketApplied, f.repo.journal[2].Reason)
}

func TestUpdateAmountOnSameAgreement(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	ticket := f.create(t, &a, 200)

	newAmount := amount(350)
	updated, err := f.svc.Update(context.Background(), ticket.ID, UpdateTicketRequest{Amount: newAmount})
	require.NoError(t, err)
	assert.Equal(t, "350.00", updated.Amount.StringFixed(2))
	assert.Equal(t, "650.00", f.balance(a))
}

func TestUpdateWithoutLedgerChangeWritesNoJournal(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	ticket := f.create(t, &a, 200)

	number := "ST-RENAMED"
	_, err := f.svc.Update(context.Background(), ticket.ID, UpdateTicketRequest{TicketNumber: &number})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), ticket.ID, billing.TicketInvoiced)
	require.NoError(t, err)

	assert.Len(t, f.repo.journal, 1)
	assert.Equal(t, "800.00", f.balance(a))
	assert.Equal(t, billing.TicketInvoiced, f.repo.tickets[ticket.ID].Status)
}

func TestUpdateNullLinkCreditsAgreement(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	ticket := f.create(t, &a, 200)

	var req UpdateTicketRequest
	require.NoError(t, json.Unmarshal([]byte(`{"sub_agreement_id": null}`), &req))
	require.True(t, req.SubAgreementID.Set)

	updated, err := f.svc.Update(context.Background(), ticket.ID, req)
	require.NoError(t, err)
	assert.Nil(t, updated.SubAgreementID)
	assert.Equal(t, "1000.00", f.balance(a))
}

func TestUpdateCallOutClearsAgreement(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 1000)
	c := f.callOut(f.clientID)
	ticket := f.create(t, &a, 200)

	updated, err := f.svc.Update(context.Background(), ticket.ID, UpdateTicketRequest{CallOutJobID: OptionalID{Set: true, Value: &c}})
	require.NoError(t, err)
	assert.Nil(t, updated.SubAgreementID)
	require.NotNil(t, updated.CallOutJobID)
	assert.Equal(t, "1000.00", f.balance(a))
}

// uuidLinks rejects malformed ids the way the uuid column type does.
type uuidLinks struct{ memLinks }

func (l uuidLinks) ResolveLink(ctx context.Context, id string) (billing.LinkedJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return billing.LinkedJob{}, fmt.Errorf("invalid input syntax for type uuid: %q", id)
	}
	return l.memLinks.ResolveLink(ctx, id)
}

func TestUpdateRejectsMalformedLinkIDs(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.links = uuidLinks{f.links}
	a := f.agreement(f.clientID, 1000)
	ticket := f.create(t, &a, 200)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"sub-agreement", `{"sub_agreement_id": "abc"}`, "sub_agreement_id"},
		{"call-out job", `{"call_out_job_id": "12345"}`, "call_out_job_id"},
		{"braced uuid", `{"sub_agreement_id": "{` + a + `}"}`, "sub_agreement_id"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			var req UpdateTicketRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			_, err := f.svc.Update(context.Background(), ticket.ID, req)
			var verr *httpx.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, 422, httpx.StatusFor(err))
		})
	}
	assert.Len(t, f.repo.journal, 1)
	assert.Equal(t, "800.00", f.balance(a))
	assert.Equal(t, &a, f.repo.tickets[ticket.ID].SubAgreementID)
}

func TestCreateRequiresAmount(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Create(context.Background(), CreateTicketRequest{
		TicketNumber: "ST-NOAMOUNT", ClientID: f.clientID, Date: "2024-03-12",
	}, "")
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")
	assert.Empty(t, f.repo.tickets)
}

func TestUpdateUnknownTicket(t *testing.T) {
	f := newFixture(t, Options{})
	newAmount := amount(10)
	_, err := f.svc.Update(context.Background(), uuid.NewString(), UpdateTicketRequest{Amount: newAmount})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.ErrorIs(t, err, billing.ErrTicketNotFound)
	assert.Empty(t, f.repo.journal)
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	f := newFixture(t, Options{})
	ticket := f.create(t, nil, 10)
	_, err := f.svc.UpdateStatus(context.Background(), ticket.ID, "Lost")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDeleteKeepsBalanceAndReleasesLogs(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 10000)
	logID := f.log(f.clientID, &a, "1-5")

	ticket, err := f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{logID}}, "")
	require.NoError(t, err)
	assert.Equal(t, "7500.00", f.balance(a))

	require.NoError(t, f.svc.Delete(context.Background(), ticket.ID))
	assert.Equal(t, "7500.00", f.balance(a))
	assert.Empty(t, f.repo.consumed)
	require.ErrorIs(t, f.svc.Delete(context.Background(), ticket.ID), httpx.ErrNotFound)
}

func TestRejectOverdrawOption(t *testing.T) {
	f := newFixture(t, Options{RejectOverdraw: true})
	a := f.agreement(f.clientID, 1000)

	_, err := f.svc.Create(context.Background(), CreateTicketRequest{
		TicketNumber: "ST-BIG", ClientID: f.clientID, SubAgreementID: &a, Date: "2024-03-12", Amount: amount(1200),
	}, "")
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Equal(t, "1000.00", f.balance(a))
	assert.Empty(t, f.repo.tickets)

	permissive := newFixture(t, Options{})
	b := permissive.agreement(permissive.clientID, 1000)
	permissive.create(t, &b, 1200)
	assert.Equal(t, "-200.00", permissive.balance(b))
}

func TestGenerateConsumesLogs(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 10000)
	first := f.log(f.clientID, &a, "1-3")
	second := f.log(f.clientID, &a, "4-5")

	ticket, err := f.svc.Generate(context.Background(), GenerateRequest{
		ClientID: f.clientID,
		LogIDs:   []string{first, second, first},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "2500.00", ticket.Amount.StringFixed(2))
	require.NotNil(t, ticket.SubAgreementID)
	assert.Equal(t, a, *ticket.SubAgreementID)
	assert.Equal(t, "2024-03-10", ticket.Date.Format(time.DateOnly))
	assert.Len(t, ticket.RelatedLogIDs, 2)
	assert.NotEmpty(t, ticket.TicketNumber)
	assert.Equal(t, "7500.00", f.balance(a))

	_, err = f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{second}}, "")
	require.ErrorIs(t, err, ErrLogAlreadyConsumed)
	assert.Equal(t, "7500.00", f.balance(a))
}

func TestGenerateExplicitLinkOverridesLogs(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 10000)
	c := f.callOut(f.clientID)
	logID := f.log(f.clientID, &a, "1")

	ticket, err := f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{logID}, CallOutJobID: &c}, "")
	require.NoError(t, err)
	assert.Nil(t, ticket.SubAgreementID)
	require.NotNil(t, ticket.CallOutJobID)
	assert.Equal(t, "10000.00", f.balance(a))
}

func TestGenerateMixedLinksStayUnlinked(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 10000)
	b := f.agreement(f.clientID, 10000)

	ticket, err := f.svc.Generate(context.Background(), GenerateRequest{
		ClientID: f.clientID,
		LogIDs:   []string{f.log(f.clientID, &a, "1"), f.log(f.clientID, &b, "2")},
	}, "")
	require.NoError(t, err)
	assert.Nil(t, ticket.SubAgreementID)
	assert.Nil(t, ticket.CallOutJobID)
	assert.Empty(t, f.repo.journal)
}

func TestGenerateRejectsInvalidSelection(t *testing.T) {
	f := newFixture(t, Options{})
	other := f.log(uuid.NewString(), nil, "1")
	simple := f.log(f.clientID, nil, "")

	_, err := f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{other, simple, uuid.NewString()}}, "")
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Contains(t, verr.Fields, "log_ids[0]")
	assert.Empty(t, f.repo.tickets)
}

func TestGenerateIdempotencyReplay(t *testing.T) {
	f := newFixture(t, Options{})
	logID := f.log(f.clientID, nil, "1-2")

	first, err := f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{logID}}, "gen-key")
	require.NoError(t, err)

	_, err = f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{logID}}, "gen-key")
	var replay *ReplayError
	require.ErrorAs(t, err, &replay)
	assert.Equal(t, first.ID, replay.TicketID)
	assert.Len(t, f.repo.tickets, 1)
}

func TestGenerateLockHeld(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(Deps{Repo: repo, Links: memLinks{}, Locker: heldLocker{}}, Options{})
	_, err := svc.Generate(context.Background(), GenerateRequest{ClientID: uuid.NewString(), LogIDs: []string{uuid.NewString()}}, "")
	require.ErrorIs(t, err, ErrGenerationInProgress)
	assert.Equal(t, 409, httpx.StatusFor(err))
}

func TestPreviewReportsUnavailable(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 10000)
	used := f.log(f.clientID, &a, "1")
	free := f.log(f.clientID, &a, "2-3")
	_, err := f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{used}}, "")
	require.NoError(t, err)

	preview, err := f.svc.Preview(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{used, free}})
	require.NoError(t, err)
	assert.Equal(t, "1500.00", preview.Amount.StringFixed(2))
	assert.Contains(t, preview.Unavailable, used)
	require.NotNil(t, preview.LinkedJob)
	assert.Equal(t, a, preview.LinkedJob.ID())
	assert.Equal(t, "500.00", preview.Rates.PersonnelDay.StringFixed(2))
}

func TestOptionalIDUnmarshal(t *testing.T) {
	var req UpdateTicketRequest
	require.NoError(t, json.Unmarshal([]byte(`{"call_out_job_id": "abc"}`), &req))
	assert.False(t, req.SubAgreementID.Set)
	assert.True(t, req.CallOutJobID.Set)
	require.NotNil(t, req.CallOutJobID.Value)
	assert.Equal(t, "abc", *req.CallOutJobID.Value)

	_, err := mergeLink(billing.ServiceTicket{}, UpdateTicketRequest{
		SubAgreementID: OptionalID{Set: true, Value: ptr("a")},
		CallOutJobID:   OptionalID{Set: true, Value: ptr("c")},
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func ptr[T any](v T) *T { return &v }

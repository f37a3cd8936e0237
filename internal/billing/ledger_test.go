package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func strPtr(s string) *string { return &s }

func agreement(id string, amount, balance int64) SubAgreement {
	return SubAgreement{ID: id, ClientID: "client-1", Name: id, Amount: dec(amount), Balance: dec(balance)}
}

func balanceOf(t *testing.T, agreements []SubAgreement, id string) decimal.Decimal {
	t.Helper()
	for _, a := range agreements {
		if a.ID == id {
			return a.Balance
		}
	}
	t.Fatalf("agreement %s not found", id)
	return decimal.Zero
}

func TestReconcileOnCreate(t *testing.T) {
	agreements := []SubAgreement{agreement("A", 1000, 1000), agreement("B", 500, 500)}

	linked := ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200), Status: TicketInFieldToSign}
	out := ReconcileOnCreate(linked, agreements)
	assert.True(t, dec(800).Equal(balanceOf(t, out, "A")))
	assert.True(t, dec(500).Equal(balanceOf(t, out, "B")))
	assert.True(t, dec(1000).Equal(balanceOf(t, agreements, "A")), "input must not be mutated")

	unlinked := ServiceTicket{ID: "t2", Amount: dec(200), Status: TicketInFieldToSign}
	assert.Equal(t, agreements, ReconcileOnCreate(unlinked, agreements))

	callOut := ServiceTicket{ID: "t3", CallOutJobID: strPtr("C"), Amount: dec(200), Status: TicketInFieldToSign}
	assert.Equal(t, agreements, ReconcileOnCreate(callOut, agreements))
}

func TestReconcileOnUpdate(t *testing.T) {
	cases := []struct {
		name  string
		old   ServiceTicket
		patch TicketPatch
		start []SubAgreement
		want  map[string]int64
	}{
		{
			name:  "relink to another agreement",
			old:   ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200)},
			patch: TicketPatch{Amount: ptr(dec(300)), Link: &TicketLink{SubAgreementID: strPtr("B")}},
			start: []SubAgreement{agreement("A", 1000, 800), agreement("B", 500, 500)},
			want:  map[string]int64{"A": 1000, "B": 200},
		},
		{
			name:  "amount change on same link",
			old:   ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200)},
			patch: TicketPatch{Amount: ptr(dec(350))},
			start: []SubAgreement{agreement("A", 1000, 800)},
			want:  map[string]int64{"A": 650},
		},
		{
			name:  "link added",
			old:   ServiceTicket{ID: "t1", Amount: dec(200)},
			patch: TicketPatch{Link: &TicketLink{SubAgreementID: strPtr("A")}},
			start: []SubAgreement{agreement("A", 1000, 1000)},
			want:  map[string]int64{"A": 800},
		},
		{
			name:  "link removed",
			old:   ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200)},
			patch: TicketPatch{Link: &TicketLink{CallOutJobID: strPtr("C")}},
			start: []SubAgreement{agreement("A", 1000, 800)},
			want:  map[string]int64{"A": 1000},
		},
		{
			name:  "status only",
			old:   ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200)},
			patch: TicketPatch{Status: ptr(TicketInvoiced)},
			start: []SubAgreement{agreement("A", 1000, 800)},
			want:  map[string]int64{"A": 800},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			updated, out := ReconcileOnUpdate(tt.old, tt.patch, tt.start)
			for id, want := range tt.want {
				assert.True(t, dec(want).Equal(balanceOf(t, out, id)), "%s balance = %s", id, balanceOf(t, out, id))
			}
			if tt.patch.Amount != nil {
				assert.True(t, tt.patch.Amount.Equal(updated.Amount))
			}
			assert.Equal(t, tt.old.ID, updated.ID)
		})
	}
}

func TestUpdateTicketInNotFound(t *testing.T) {
	agreements := []SubAgreement{agreement("A", 1000, 800)}
	tickets := []ServiceTicket{{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200)}}

	gotTickets, _, gotAgreements, err := UpdateTicketIn(tickets, "missing", TicketPatch{Amount: ptr(dec(10))}, agreements)
	require.ErrorIs(t, err, ErrTicketNotFound)
	assert.Equal(t, agreements, gotAgreements)
	assert.Equal(t, tickets, gotTickets)
}

func TestUpdateTicketIn(t *testing.T) {
	agreements := []SubAgreement{agreement("A", 1000, 800)}
	tickets := []ServiceTicket{
		{ID: "t0", Amount: dec(5)},
		{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(200)},
	}

	gotTickets, updated, gotAgreements, err := UpdateTicketIn(tickets, "t1", TicketPatch{Amount: ptr(dec(350))}, agreements)
	require.NoError(t, err)
	assert.True(t, dec(350).Equal(updated.Amount))
	assert.True(t, dec(350).Equal(gotTickets[1].Amount))
	assert.True(t, dec(200).Equal(tickets[1].Amount), "input tickets must not be mutated")
	assert.True(t, dec(650).Equal(balanceOf(t, gotAgreements, "A")))
}

func TestUpdateMovementsCreditThenDebit(t *testing.T) {
	old := ServiceTicket{ID: "t1", SubAgreementID: strPtr("B"), Amount: dec(200)}
	updated := ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: dec(300)}

	moves := UpdateMovements(old, updated)
	require.Len(t, moves, 2)
	assert.Equal(t, "B", moves[0].AgreementID)
	assert.True(t, dec(200).Equal(moves[0].Delta))
	assert.Equal(t, ReasonTicketReversed, moves[0].Reason)
	assert.Equal(t, "A", moves[1].AgreementID)
	assert.True(t, dec(-300).Equal(moves[1].Delta))

	assert.Equal(t, []string{"A", "B"}, AgreementIDs(moves))
	assert.Empty(t, UpdateMovements(ServiceTicket{ID: "x"}, ServiceTicket{ID: "x"}))
}

func TestCheckOverdraw(t *testing.T) {
	balances := map[string]decimal.Decimal{"A": dec(100)}

	require.NoError(t, CheckOverdraw(balances, []Movement{{AgreementID: "A", Delta: dec(-100)}}))
	require.ErrorIs(t, CheckOverdraw(balances, []Movement{{AgreementID: "A", Delta: dec(-101)}}), ErrOverdrawn)
	// a credit and a debit on the same agreement net out
	require.NoError(t, CheckOverdraw(balances, []Movement{
		{AgreementID: "A", Delta: dec(50)},
		{AgreementID: "A", Delta: dec(-150)},
	}))
	require.NoError(t, CheckOverdraw(balances, []Movement{{AgreementID: "unknown", Delta: dec(-1)}}))
	// a credit to an already overdrawn agreement is not blocked
	require.NoError(t, CheckOverdraw(map[string]decimal.Decimal{"A": dec(-50)}, []Movement{{AgreementID: "A", Delta: dec(20)}}))
}

func TestExpectedBalance(t *testing.T) {
	got := ExpectedBalance(dec(1000), []decimal.Decimal{dec(-200), dec(200), dec(-350)})
	assert.True(t, dec(650).Equal(got))
}

func TestRepeatedCyclesDoNotDrift(t *testing.T) {
	agreements := []SubAgreement{{ID: "A", Amount: decimal.RequireFromString("1000.00"), Balance: decimal.RequireFromString("1000.00")}}
	ticket := ServiceTicket{ID: "t1", SubAgreementID: strPtr("A"), Amount: decimal.RequireFromString("0.10")}
	agreements = ReconcileOnCreate(ticket, agreements)

	for i := 0; i < 1000; i++ {
		amount := decimal.RequireFromString("0.10")
		if i%2 == 0 {
			amount = decimal.RequireFromString("0.20")
		}
		ticket, agreements = ReconcileOnUpdate(ticket, TicketPatch{Amount: &amount}, agreements)
	}
	assert.Equal(t, "999.90", agreements[0].Balance.StringFixed(2))
}

func TestTicketValidate(t *testing.T) {
	ok := ServiceTicket{Amount: dec(1), Status: TicketDelivered, SubAgreementID: strPtr("A")}
	require.NoError(t, ok.Validate())

	both := ok
	both.CallOutJobID = strPtr("C")
	require.ErrorIs(t, both.Validate(), ErrConflictingLink)

	negative := ok
	negative.Amount = dec(-1)
	require.ErrorIs(t, negative.Validate(), ErrNegativeAmount)

	badStatus := ok
	badStatus.Status = "Lost"
	require.ErrorIs(t, badStatus.Validate(), ErrInvalidStatus)
}

func ptr[T any](v T) *T { return &v }

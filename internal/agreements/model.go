package agreements

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/billing"
)

// LedgerEntry is one journal row recorded against a sub-agreement.
type LedgerEntry struct {
	ID        int64                  `json:"id"`
	TicketID  *string                `json:"ticket_id"`
	Delta     decimal.Decimal        `json:"delta"`
	Reason    billing.MovementReason `json:"reason"`
	CreatedAt time.Time              `json:"created_at"`
}

// LedgerView is the response of GET /sub-agreements/{id}/ledger.
type LedgerView struct {
	Agreement       billing.SubAgreement `json:"agreement"`
	Entries         []LedgerEntry        `json:"entries"`
	Billed          decimal.Decimal      `json:"billed"`
	ExpectedBalance decimal.Decimal      `json:"expected_balance"`
	InSync          bool                 `json:"in_sync"`
}

// Drift describes an agreement whose stored balance disagrees with its journal.
type Drift struct {
	AgreementID string          `json:"agreement_id"`
	Balance     decimal.Decimal `json:"balance"`
	Expected    decimal.Decimal `json:"expected"`
	Repaired    bool            `json:"repaired"`
}

// NewLedgerView derives the reconciliation summary for an agreement.
func NewLedgerView(a billing.SubAgreement, entries []LedgerEntry) LedgerView {
	deltas := make([]decimal.Decimal, len(entries))
	for i, e := range entries {
		deltas[i] = e.Delta
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	expected := billing.ExpectedBalance(a.Amount, deltas)
	return LedgerView{
		Agreement:       a,
		Entries:         entries,
		Billed:          a.Billed(),
		ExpectedBalance: expected,
		InSync:          expected.Equal(a.Balance),
	}
}

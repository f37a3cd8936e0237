package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MovementReason labels why a balance moved.
type MovementReason string

const (
	ReasonTicketCreated  MovementReason = "ticket_created"
	ReasonTicketReversed MovementReason = "ticket_reversed"
	ReasonTicketApplied  MovementReason = "ticket_applied"
	ReasonRepair         MovementReason = "repair"
)

// Movement is a signed change to one sub-agreement balance. A debit is negative.
type Movement struct {
	AgreementID string
	TicketID    string
	Delta       decimal.Decimal
	Reason      MovementReason
}

// CreateMovements returns the debit a newly created ticket applies.
func CreateMovements(ticket ServiceTicket) []Movement {
	id, ok := ticket.AgreementID()
	if !ok {
		return nil
	}
	return []Movement{{
		AgreementID: id,
		TicketID:    ticket.ID,
		Delta:       ticket.Amount.Neg(),
		Reason:      ReasonTicketCreated,
	}}
}

// UpdateMovements returns the credit of old's contribution followed by the
// debit of updated's contribution. Nothing moves when neither is linked.
func UpdateMovements(old, updated ServiceTicket) []Movement {
	var moves []Movement
	if id, ok := old.AgreementID(); ok {
		moves = append(moves, Movement{
			AgreementID: id,
			TicketID:    old.ID,
			Delta:       old.Amount,
			Reason:      ReasonTicketReversed,
		})
	}
	if id, ok := updated.AgreementID(); ok {
		moves = append(moves, Movement{
			AgreementID: id,
			TicketID:    updated.ID,
			Delta:       updated.Amount.Neg(),
			Reason:      ReasonTicketApplied,
		})
	}
	return moves
}

// ApplyMovements returns a copy of agreements with every movement applied.
// Movements naming an agreement outside the collection are ignored.
func ApplyMovements(agreements []SubAgreement, moves []Movement) []SubAgreement {
	out := make([]SubAgreement, len(agreements))
	copy(out, agreements)
	if len(moves) == 0 {
		return out
	}
	index := make(map[string]int, len(out))
	for i, a := range out {
		index[a.ID] = i
	}
	for _, m := range moves {
		i, ok := index[m.AgreementID]
		if !ok {
			continue
		}
		out[i].Balance = out[i].Balance.Add(m.Delta)
	}
	return out
}

// NetDeltas sums movements per agreement.
func NetDeltas(moves []Movement) map[string]decimal.Decimal {
	net := make(map[string]decimal.Decimal, len(moves))
	for _, m := range moves {
		net[m.AgreementID] = net[m.AgreementID].Add(m.Delta)
	}
	return net
}

// AgreementIDs lists the distinct agreements touched by moves in ascending
// order, the order rows are locked in.
func AgreementIDs(moves []Movement) []string {
	seen := make(map[string]struct{}, len(moves))
	ids := make([]string, 0, len(moves))
	for _, m := range moves {
		if _, ok := seen[m.AgreementID]; ok {
			continue
		}
		seen[m.AgreementID] = struct{}{}
		ids = append(ids, m.AgreementID)
	}
	sort.Strings(ids)
	return ids
}

// CheckOverdraw returns ErrOverdrawn when the net effect of moves would leave
// any of the given balances below zero. Net credits always pass, and
// agreements without a known balance are skipped.
func CheckOverdraw(balances map[string]decimal.Decimal, moves []Movement) error {
	for id, delta := range NetDeltas(moves) {
		if !delta.IsNegative() {
			continue
		}
		current, ok := balances[id]
		if !ok {
			continue
		}
		if current.Add(delta).IsNegative() {
			return ErrOverdrawn
		}
	}
	return nil
}

// ReconcileOnCreate debits the ticket's linked agreement by its amount.
func ReconcileOnCreate(ticket ServiceTicket, agreements []SubAgreement) []SubAgreement {
	return ApplyMovements(agreements, CreateMovements(ticket))
}

// ReconcileOnUpdate merges patch into old and moves balances from old's
// linkage to the merged ticket's linkage.
func ReconcileOnUpdate(old ServiceTicket, patch TicketPatch, agreements []SubAgreement) (ServiceTicket, []SubAgreement) {
	updated := old.Apply(patch)
	return updated, ApplyMovements(agreements, UpdateMovements(old, updated))
}

// UpdateTicketIn edits the ticket with the given id inside tickets and returns
// the new ticket list, the updated ticket and the reconciled agreements.
// When id is absent nothing is changed and ErrTicketNotFound is returned.
func UpdateTicketIn(tickets []ServiceTicket, id string, patch TicketPatch, agreements []SubAgreement) ([]ServiceTicket, ServiceTicket, []SubAgreement, error) {
	pos := -1
	for i, t := range tickets {
		if t.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return tickets, ServiceTicket{}, agreements, ErrTicketNotFound
	}

	updated, reconciled := ReconcileOnUpdate(tickets[pos], patch, agreements)
	out := make([]ServiceTicket, len(tickets))
	copy(out, tickets)
	out[pos] = updated
	return out, updated, reconciled, nil
}

// ExpectedBalance recomputes a balance from the agreement ceiling and the
// journal of movements recorded against it.
func ExpectedBalance(amount decimal.Decimal, journal []decimal.Decimal) decimal.Decimal {
	expected := amount
	for _, delta := range journal {
		expected = expected.Add(delta)
	}
	return expected
}

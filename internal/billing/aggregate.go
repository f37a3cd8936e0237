package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/dayrange"
)

// Rates holds the day rates applied when generating a ticket from logs.
type Rates struct {
	PersonnelDay decimal.Decimal
	EquipmentDay decimal.Decimal
}

// DefaultRates returns the standard personnel and equipment day rates.
func DefaultRates() Rates {
	return Rates{
		PersonnelDay: decimal.NewFromInt(500),
		EquipmentDay: decimal.NewFromInt(1000),
	}
}

// Generation is the aggregate computed from a selection of logs.
type Generation struct {
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date"`
	LinkedJobID    *string         `json:"linked_job_id"`
	PersonnelDays  int             `json:"personnel_days"`
	EquipmentUnits int             `json:"equipment_units"`
}

// Aggregator computes ticket amounts from daily service logs.
type Aggregator struct {
	rates Rates
}

// NewAggregator builds an Aggregator with the given rates.
func NewAggregator(rates Rates) Aggregator {
	return Aggregator{rates: rates}
}

// Rates exposes the configured rates.
func (a Aggregator) Rates() Rates {
	return a.rates
}

// Compute aggregates the selected logs. An empty selection yields a zero
// amount, an empty date and no linkage.
func (a Aggregator) Compute(selected []DailyServiceLog) Generation {
	gen := Generation{Amount: decimal.Zero}
	if len(selected) == 0 {
		return gen
	}

	var latest time.Time
	for i, log := range selected {
		gen.PersonnelDays += PersonnelDays(log)
		gen.EquipmentUnits += EquipmentUnits(log)
		if i == 0 || log.Date.After(latest) {
			latest = log.Date
		}
	}

	gen.Amount = a.rates.PersonnelDay.Mul(decimal.NewFromInt(int64(gen.PersonnelDays))).
		Add(a.rates.EquipmentDay.Mul(decimal.NewFromInt(int64(gen.EquipmentUnits))))
	gen.Date = latest.Format(time.DateOnly)
	gen.LinkedJobID = commonLinkedJob(selected)
	return gen
}

// ComputeGeneration aggregates with the default rates.
func ComputeGeneration(selected []DailyServiceLog) Generation {
	return NewAggregator(DefaultRates()).Compute(selected)
}

// PersonnelDays counts present or travel days across all personnel lines.
func PersonnelDays(log DailyServiceLog) int {
	total := 0
	for _, p := range log.Personnel {
		total += dayrange.Count(p.DailyStatus, dayrange.MarkerPresent, dayrange.MarkerTravel)
	}
	return total
}

// EquipmentUnits counts present days times quantity across equipment lines.
func EquipmentUnits(log DailyServiceLog) int {
	total := 0
	for _, e := range log.EquipmentUsed {
		total += dayrange.Count(e.DailyStatus, dayrange.MarkerPresent) * e.Quantity
	}
	return total
}

func commonLinkedJob(logs []DailyServiceLog) *string {
	first := logs[0].LinkedJobID
	for _, log := range logs[1:] {
		switch {
		case first == nil && log.LinkedJobID == nil:
		case first == nil || log.LinkedJobID == nil:
			return nil
		case *first != *log.LinkedJobID:
			return nil
		}
	}
	if first == nil {
		return nil
	}
	id := *first
	return &id
}

// ConsumedLogIDs maps each log id referenced by a ticket to that ticket's id.
func ConsumedLogIDs(tickets []ServiceTicket) map[string]string {
	consumed := make(map[string]string)
	for _, t := range tickets {
		for _, logID := range t.RelatedLogIDs {
			consumed[logID] = t.ID
		}
	}
	return consumed
}

// AvailableLogs returns the billable logs of clientID not referenced by any
// ticket, preserving input order.
func AvailableLogs(logs []DailyServiceLog, tickets []ServiceTicket, clientID string) []DailyServiceLog {
	consumed := ConsumedLogIDs(tickets)
	out := make([]DailyServiceLog, 0, len(logs))
	for _, log := range logs {
		if log.ClientID != clientID || !log.Billable() {
			continue
		}
		if _, used := consumed[log.ID]; used {
			continue
		}
		out = append(out, log)
	}
	return out
}

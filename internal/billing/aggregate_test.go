package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/dayrange"
)

func logOn(id, clientID, date string, linked *string) DailyServiceLog {
	d, err := time.ParseInLocation(time.DateOnly, date, time.Local)
	if err != nil {
		panic(err)
	}
	days := time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.Local).Day()
	return DailyServiceLog{
		ID:          id,
		ClientID:    clientID,
		Date:        d,
		LinkedJobID: linked,
		Personnel: []PersonnelLogItem{{
			ID: id + "-p1", Name: "Operator", DailyStatus: dayrange.BuildStatus(days, "1", ""),
		}},
	}
}

func TestComputeGenerationEmpty(t *testing.T) {
	gen := ComputeGeneration(nil)
	assert.True(t, gen.Amount.IsZero())
	assert.Equal(t, "", gen.Date)
	assert.Nil(t, gen.LinkedJobID)
}

func TestComputeGenerationAmount(t *testing.T) {
	log := DailyServiceLog{
		ID:       "log-1",
		ClientID: "client-1",
		Date:     time.Date(2024, time.March, 10, 0, 0, 0, 0, time.Local),
		Personnel: []PersonnelLogItem{{
			ID: "p1", Name: "Driller", DailyStatus: dayrange.BuildStatus(31, "1-5", "6-7"),
		}},
		EquipmentUsed: []EquipmentLogItem{{
			ID: "e1", Name: "Pump", Quantity: 2, DailyStatus: dayrange.BuildStatus(31, "10-12", "13"),
		}},
	}

	rates := DefaultRates()
	want := rates.PersonnelDay.Mul(decimal.NewFromInt(5 + 2)).Add(rates.EquipmentDay.Mul(decimal.NewFromInt(3 * 2)))

	gen := ComputeGeneration([]DailyServiceLog{log})
	assert.True(t, want.Equal(gen.Amount), "amount = %s", gen.Amount)
	assert.True(t, decimal.NewFromInt(9500).Equal(gen.Amount))
	assert.Equal(t, 7, gen.PersonnelDays)
	assert.Equal(t, 6, gen.EquipmentUnits)
	assert.Equal(t, "2024-03-10", gen.Date)
}

func TestComputeGenerationCustomRates(t *testing.T) {
	agg := NewAggregator(Rates{PersonnelDay: decimal.RequireFromString("12.50"), EquipmentDay: decimal.NewFromInt(40)})
	gen := agg.Compute([]DailyServiceLog{logOn("a", "c", "2024-01-05", nil), logOn("b", "c", "2024-01-20", nil)})
	assert.Equal(t, "25.00", gen.Amount.StringFixed(2))
	assert.Equal(t, "2024-01-20", gen.Date)
}

func TestComputeGenerationLinkage(t *testing.T) {
	a, b := "agreement-a", "agreement-b"

	cases := []struct {
		name string
		logs []DailyServiceLog
		want *string
	}{
		{"shared", []DailyServiceLog{logOn("1", "c", "2024-01-01", &a), logOn("2", "c", "2024-01-02", &a)}, &a},
		{"mixed", []DailyServiceLog{logOn("1", "c", "2024-01-01", &a), logOn("2", "c", "2024-01-02", &b)}, nil},
		{"some unlinked", []DailyServiceLog{logOn("1", "c", "2024-01-01", &a), logOn("2", "c", "2024-01-02", nil)}, nil},
		{"none linked", []DailyServiceLog{logOn("1", "c", "2024-01-01", nil), logOn("2", "c", "2024-01-02", nil)}, nil},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			gen := ComputeGeneration(tt.logs)
			if tt.want == nil {
				assert.Nil(t, gen.LinkedJobID)
				return
			}
			require.NotNil(t, gen.LinkedJobID)
			assert.Equal(t, *tt.want, *gen.LinkedJobID)
		})
	}
}

func TestComputeGenerationLatestDate(t *testing.T) {
	logs := []DailyServiceLog{
		logOn("1", "c", "2024-02-10", nil),
		logOn("2", "c", "2024-03-01", nil),
		logOn("3", "c", "2024-01-31", nil),
	}
	assert.Equal(t, "2024-03-01", ComputeGeneration(logs).Date)
}

func TestAvailableLogs(t *testing.T) {
	consumed := logOn("consumed", "client-1", "2024-01-01", nil)
	free := logOn("free", "client-1", "2024-01-02", nil)
	other := logOn("other", "client-2", "2024-01-03", nil)
	simple := DailyServiceLog{ID: "simple", ClientID: "client-1", Date: free.Date}

	tickets := []ServiceTicket{{ID: "t1", ClientID: "client-1", RelatedLogIDs: []string{"consumed"}}}

	got := AvailableLogs([]DailyServiceLog{consumed, free, other, simple}, tickets, "client-1")
	require.Len(t, got, 1)
	assert.Equal(t, "free", got[0].ID)

	assert.Equal(t, map[string]string{"consumed": "t1"}, ConsumedLogIDs(tickets))
}

package agreements

import (
	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/shared"
)

// CreateAgreementRequest is the body of POST /sub-agreements. The balance
// starts equal to the amount.
type CreateAgreementRequest struct {
	ClientID  string          `json:"client_id" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required,max=200"`
	Amount    decimal.Decimal `json:"amount" validate:"gte=0"`
	StartDate string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string          `json:"end_date" validate:"required,datetime=2006-01-02"`
	FileID    *string         `json:"file_id" validate:"omitempty,uuid"`
}

// UpdateAgreementRequest is the body of PUT /sub-agreements/{id}. Amount and
// balance are accepted only to be rejected with a field error.
type UpdateAgreementRequest struct {
	Name      *string          `json:"name" validate:"omitempty,max=200"`
	StartDate *string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   *string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	FileID    *string          `json:"file_id" validate:"omitempty,uuid"`
	Amount    *decimal.Decimal `json:"amount"`
	Balance   *decimal.Decimal `json:"balance"`
}

// ListAgreementsRequest filters agreement listings.
type ListAgreementsRequest struct {
	shared.ListParams
	ClientID string
}

// CreateCallOutRequest is the body of POST /call-out-jobs.
type CreateCallOutRequest struct {
	ClientID        string   `json:"client_id" validate:"required,uuid"`
	JobName         string   `json:"job_name" validate:"required,max=200"`
	WorkOrderNumber string   `json:"work_order_number" validate:"required,max=100"`
	Description     *string  `json:"description" validate:"omitempty,max=2000"`
	Priority        *string  `json:"priority" validate:"omitempty,oneof=Low Medium High Urgent"`
	Status          *string  `json:"status" validate:"omitempty,max=50"`
	StartDate       string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	Documents       []string `json:"documents" validate:"omitempty,dive,uuid"`
}

// UpdateCallOutRequest is the body of PUT /call-out-jobs/{id}.
type UpdateCallOutRequest struct {
	JobName         *string   `json:"job_name" validate:"omitempty,max=200"`
	WorkOrderNumber *string   `json:"work_order_number" validate:"omitempty,max=100"`
	Description     *string   `json:"description" validate:"omitempty,max=2000"`
	Priority        *string   `json:"priority" validate:"omitempty,oneof=Low Medium High Urgent"`
	Status          *string   `json:"status" validate:"omitempty,max=50"`
	StartDate       *string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate         *string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Documents       *[]string `json:"documents" validate:"omitempty,dive,uuid"`
}

// ListCallOutsRequest filters call-out job listings.
type ListCallOutsRequest struct {
	shared.ListParams
	ClientID string
}

package tickets

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/shared"
)

// OptionalID distinguishes an absent JSON field from an explicit null.
type OptionalID struct {
	Set   bool
	Value *string
}

// UnmarshalJSON records that the field was present.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		o.Value = nil
		return nil
	}
	o.Value = &s
	return nil
}

// CreateTicketRequest is the body of POST /service-tickets.
type CreateTicketRequest struct {
	TicketNumber   string               `json:"ticket_number" validate:"required,max=100"`
	ClientID       string               `json:"client_id" validate:"required,uuid"`
	SubAgreementID *string              `json:"sub_agreement_id" validate:"omitempty,uuid,excluded_with=CallOutJobID"`
	CallOutJobID   *string              `json:"call_out_job_id" validate:"omitempty,uuid"`
	Date           string               `json:"date" validate:"required"`
	Status         billing.TicketStatus `json:"status"`
	Amount         *decimal.Decimal     `json:"amount" validate:"required,gte=0"`
	Documents      []string             `json:"documents" validate:"omitempty,dive,uuid"`
}

// UpdateTicketRequest is the body of PUT /service-tickets/{id}. Absent
// fields keep their value; a link field set to null removes that link.
type UpdateTicketRequest struct {
	TicketNumber   *string               `json:"ticket_number" validate:"omitempty,max=100"`
	ClientID       *string               `json:"client_id" validate:"omitempty,uuid"`
	SubAgreementID OptionalID            `json:"sub_agreement_id"`
	CallOutJobID   OptionalID            `json:"call_out_job_id"`
	Date           *string               `json:"date"`
	Status         *billing.TicketStatus `json:"status"`
	Amount         *decimal.Decimal      `json:"amount" validate:"omitempty,gte=0"`
	Documents      *[]string             `json:"documents" validate:"omitempty,dive,uuid"`
}

// StatusRequest is the body of PATCH /service-tickets/{id}/status.
type StatusRequest struct {
	Status billing.TicketStatus `json:"status" validate:"required"`
}

// GenerateRequest is the body of POST /service-tickets/generate and
// /generate/preview. An explicit link overrides the logs' common linked job.
type GenerateRequest struct {
	ClientID       string               `json:"client_id" validate:"required,uuid"`
	LogIDs         []string             `json:"log_ids" validate:"required,min=1,max=100,dive,uuid"`
	TicketNumber   string               `json:"ticket_number" validate:"omitempty,max=100"`
	Status         billing.TicketStatus `json:"status"`
	Date           string               `json:"date"`
	SubAgreementID *string              `json:"sub_agreement_id" validate:"omitempty,uuid,excluded_with=CallOutJobID"`
	CallOutJobID   *string              `json:"call_out_job_id" validate:"omitempty,uuid"`
}

// ListTicketsRequest filters ticket listings.
type ListTicketsRequest struct {
	shared.ListParams
	ClientID       string
	SubAgreementID string
	CallOutJobID   string
	Status         billing.TicketStatus
}

// Preview is the result of a dry-run generation.
type Preview struct {
	billing.Generation
	LinkedJob   *billing.LinkedJob `json:"linked_job"`
	LogIDs      []string           `json:"log_ids"`
	Unavailable map[string]string  `json:"unavailable,omitempty"`
	Rates       RatesView          `json:"rates"`
}

// RatesView exposes the day rates used by a generation.
type RatesView struct {
	PersonnelDay decimal.Decimal `json:"personnel_day"`
	EquipmentDay decimal.Decimal `json:"equipment_day"`
}

package dailylogs

import (
	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/shared"
)

// PersonnelInput is one personnel line. The attendance is given either as a
// daily_status array or as present_days/travel_days range strings.
type PersonnelInput struct {
	ID          string            `json:"id" validate:"omitempty,uuid"`
	Name        string            `json:"name" validate:"required,max=120"`
	Position    string            `json:"position" validate:"omitempty,max=120"`
	DailyStatus []dayrange.Marker `json:"daily_status"`
	PresentDays string            `json:"present_days" validate:"omitempty,max=200"`
	TravelDays  string            `json:"travel_days" validate:"omitempty,max=200"`
}

// EquipmentInput is one equipment line. Equipment has no travel days.
type EquipmentInput struct {
	ID          string            `json:"id" validate:"omitempty,uuid"`
	Name        string            `json:"name" validate:"required,max=120"`
	Quantity    int               `json:"quantity" validate:"required,min=1,max=1000"`
	DailyStatus []dayrange.Marker `json:"daily_status"`
	PresentDays string            `json:"present_days" validate:"omitempty,max=200"`
}

// LogRequest is the body of POST /daily-logs and PUT /daily-logs/{id}. A log
// without personnel and equipment is the simple upload-only variant and must
// carry an excel or pdf file.
type LogRequest struct {
	LogNumber     string               `json:"log_number" validate:"required,max=100"`
	ClientID      string               `json:"client_id" validate:"required,uuid"`
	Field         string               `json:"field" validate:"omitempty,max=200"`
	Well          string               `json:"well" validate:"omitempty,max=200"`
	Contract      string               `json:"contract" validate:"omitempty,max=200"`
	JobNo         string               `json:"job_no" validate:"omitempty,max=100"`
	Date          string               `json:"date" validate:"required"`
	LinkedJobID   *string              `json:"linked_job_id" validate:"omitempty,uuid"`
	Personnel     []PersonnelInput     `json:"personnel" validate:"omitempty,max=200,dive"`
	EquipmentUsed []EquipmentInput     `json:"equipment_used" validate:"omitempty,max=200,dive"`
	Approval      *billing.LogApproval `json:"approval"`
	ExcelFileID   *string              `json:"excel_file_id" validate:"omitempty,uuid"`
	PDFFileID     *string              `json:"pdf_file_id" validate:"omitempty,uuid"`
}

// ListLogsRequest filters log listings.
type ListLogsRequest struct {
	shared.ListParams
	ClientID string
}

// LineSummary renders one attendance line as day-range strings.
type LineSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PresentDays string `json:"present_days"`
	TravelDays  string `json:"travel_days,omitempty"`
	Days        int    `json:"days"`
}

// LogView is a log together with its day-range summary and consumption state.
type LogView struct {
	billing.DailyServiceLog
	DaysInMonth      int           `json:"days_in_month"`
	PersonnelSummary []LineSummary `json:"personnel_summary"`
	EquipmentSummary []LineSummary `json:"equipment_summary"`
	PersonnelDays    int           `json:"personnel_days"`
	EquipmentUnits   int           `json:"equipment_units"`
	ConsumedBy       *string       `json:"consumed_by_ticket_id"`
}

// Package billing holds the field-services billing model together with the
// pure rules that keep sub-agreement balances reconciled with service tickets
// and turn daily service logs into billable ticket amounts.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrofield/fieldops/internal/dayrange"
)

// TicketStatus enumerates the lifecycle states of a service ticket.
type TicketStatus string

const (
	TicketInFieldToSign TicketStatus = "In Field to Sign"
	TicketIssue         TicketStatus = "Issue"
	TicketDelivered     TicketStatus = "Delivered"
	TicketInvoiced      TicketStatus = "Invoiced"
)

// Valid reports whether the status is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketInFieldToSign, TicketIssue, TicketDelivered, TicketInvoiced:
		return true
	}
	return false
}

// SubAgreement is a client contract with a fixed ceiling and a remaining balance.
type SubAgreement struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"client_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	FileID    *string         `json:"file_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Billed returns the amount consumed so far.
func (a SubAgreement) Billed() decimal.Decimal {
	return a.Amount.Sub(a.Balance)
}

// CallOutJob is an ad-hoc job billed without a standing agreement.
type CallOutJob struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	JobName         string    `json:"job_name"`
	WorkOrderNumber string    `json:"work_order_number"`
	Description     *string   `json:"description,omitempty"`
	Priority        *string   `json:"priority,omitempty"`
	Status          *string   `json:"status,omitempty"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	Documents       []string  `json:"documents"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LinkKind discriminates the target of a ticket or log linkage.
type LinkKind string

const (
	LinkAgreement LinkKind = "agreement"
	LinkCallOut   LinkKind = "call_out"
)

// LinkedJob is either a sub-agreement or a call-out job.
type LinkedJob struct {
	Kind      LinkKind      `json:"kind"`
	Agreement *SubAgreement `json:"agreement,omitempty"`
	CallOut   *CallOutJob   `json:"call_out,omitempty"`
}

// AgreementLink wraps a sub-agreement as a LinkedJob.
func AgreementLink(a SubAgreement) LinkedJob {
	return LinkedJob{Kind: LinkAgreement, Agreement: &a}
}

// CallOutLink wraps a call-out job as a LinkedJob.
func CallOutLink(c CallOutJob) LinkedJob {
	return LinkedJob{Kind: LinkCallOut, CallOut: &c}
}

// ID returns the id of the wrapped job.
func (l LinkedJob) ID() string {
	switch l.Kind {
	case LinkAgreement:
		if l.Agreement != nil {
			return l.Agreement.ID
		}
	case LinkCallOut:
		if l.CallOut != nil {
			return l.CallOut.ID
		}
	}
	return ""
}

// Name returns a display name for the wrapped job.
func (l LinkedJob) Name() string {
	switch l.Kind {
	case LinkAgreement:
		if l.Agreement != nil {
			return l.Agreement.Name
		}
	case LinkCallOut:
		if l.CallOut != nil {
			return l.CallOut.JobName
		}
	}
	return ""
}

// ServiceTicket is the billable unit.
type ServiceTicket struct {
	ID             string          `json:"id"`
	TicketNumber   string          `json:"ticket_number"`
	ClientID       string          `json:"client_id"`
	SubAgreementID *string         `json:"sub_agreement_id,omitempty"`
	CallOutJobID   *string         `json:"call_out_job_id,omitempty"`
	Date           time.Time       `json:"date"`
	Status         TicketStatus    `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	RelatedLogIDs  []string        `json:"related_log_ids"`
	Documents      []string        `json:"documents"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AgreementID returns the linked sub-agreement id, if any.
func (t ServiceTicket) AgreementID() (string, bool) {
	if t.SubAgreementID == nil || *t.SubAgreementID == "" {
		return "", false
	}
	return *t.SubAgreementID, true
}

// Validate checks the invariants the ledger relies on.
func (t ServiceTicket) Validate() error {
	if t.SubAgreementID != nil && *t.SubAgreementID != "" && t.CallOutJobID != nil && *t.CallOutJobID != "" {
		return ErrConflictingLink
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !t.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// TicketLink replaces both link fields of a ticket at once.
type TicketLink struct {
	SubAgreementID *string
	CallOutJobID   *string
}

// TicketPatch holds the fields changed by a ticket edit. Nil means unchanged.
type TicketPatch struct {
	TicketNumber *string
	ClientID     *string
	Date         *time.Time
	Status       *TicketStatus
	Amount       *decimal.Decimal
	Link         *TicketLink
	Documents    *[]string
}

// Apply returns a copy of t with the patch merged in.
func (t ServiceTicket) Apply(p TicketPatch) ServiceTicket {
	out := t
	if p.TicketNumber != nil {
		out.TicketNumber = *p.TicketNumber
	}
	if p.ClientID != nil {
		out.ClientID = *p.ClientID
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Amount != nil {
		out.Amount = *p.Amount
	}
	if p.Link != nil {
		out.SubAgreementID = p.Link.SubAgreementID
		out.CallOutJobID = p.Link.CallOutJobID
	}
	if p.Documents != nil {
		out.Documents = append([]string(nil), (*p.Documents)...)
	}
	out.RelatedLogIDs = append([]string(nil), t.RelatedLogIDs...)
	return out
}

// TouchesLedger reports whether applying p can change any agreement balance.
func (p TicketPatch) TouchesLedger() bool {
	return p.Amount != nil || p.Link != nil
}

// PersonnelLogItem is one person's attendance over the log month.
type PersonnelLogItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Position    string            `json:"position"`
	DailyStatus []dayrange.Marker `json:"daily_status"`
}

// EquipmentLogItem is one equipment line's usage over the log month.
type EquipmentLogItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Quantity    int               `json:"quantity"`
	DailyStatus []dayrange.Marker `json:"daily_status"`
}

// LogApproval records who signed off a daily service log.
type LogApproval struct {
	Name     string     `json:"name"`
	Title    string     `json:"title,omitempty"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

// DailyServiceLog records personnel and equipment presence at a field site.
type DailyServiceLog struct {
	ID            string             `json:"id"`
	LogNumber     string             `json:"log_number"`
	ClientID      string             `json:"client_id"`
	Field         string             `json:"field"`
	Well          string             `json:"well"`
	Contract      string             `json:"contract"`
	JobNo         string             `json:"job_no"`
	Date          time.Time          `json:"date"`
	LinkedJobID   *string            `json:"linked_job_id,omitempty"`
	Personnel     []PersonnelLogItem `json:"personnel"`
	EquipmentUsed []EquipmentLogItem `json:"equipment_used"`
	Approval      *LogApproval       `json:"approval,omitempty"`
	ExcelFileID   *string            `json:"excel_file_id,omitempty"`
	PDFFileID     *string            `json:"pdf_file_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Billable reports whether the log carries personnel or equipment lines.
// Upload-only logs are never billable through generation.
func (l DailyServiceLog) Billable() bool {
	return len(l.Personnel) > 0 || len(l.EquipmentUsed) > 0
}

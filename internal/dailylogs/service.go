package dailylogs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Service implements daily service log rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// List returns a page of logs.
func (s *Service) List(ctx context.Context, req ListLogsRequest) (shared.Page[billing.DailyServiceLog], error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return shared.Page[billing.DailyServiceLog]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// Get returns a log with its day-range summary.
func (s *Service) Get(ctx context.Context, id string) (*LogView, error) {
	log, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	consumedBy, err := s.repo.ConsumedBy(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewLogView(*log, consumedBy)
	return &view, nil
}

// Available lists the billable logs of a client that no ticket consumed yet.
func (s *Service) Available(ctx context.Context, clientID string) ([]billing.DailyServiceLog, error) {
	if clientID == "" {
		return nil, httpx.NewValidationError("client_id", "The client id field is required.")
	}
	logs, err := s.repo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.repo.ConsumingTickets(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return billing.AvailableLogs(logs, tickets, clientID), nil
}

// Create stores a new log.
func (s *Service) Create(ctx context.Context, req LogRequest) (*LogView, error) {
	log, err := BuildLog(req)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, log)
	if err != nil {
		return nil, err
	}
	s.logger.Info("daily service log created",
		slog.String("log_id", id),
		slog.String("client_id", log.ClientID),
		slog.Bool("billable", log.Billable()))
	return s.Get(ctx, id)
}

// Update replaces a log that no ticket consumed yet.
func (s *Service) Update(ctx context.Context, id string, req LogRequest) (*LogView, error) {
	log, err := BuildLog(req)
	if err != nil {
		return nil, err
	}
	log.ID = id
	if err := s.repo.Update(ctx, log); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a log that no ticket consumed yet.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("daily service log deleted", slog.String("log_id", id), slog.String("actor_id", shared.ActorID(ctx)))
	return nil
}

// BuildLog validates req and converts it into a log. Every daily_status
// array must cover exactly the days of the log's month.
func BuildLog(req LogRequest) (billing.DailyServiceLog, error) {
	verr := &httpx.ValidationError{}

	date, err := dayrange.ParseDate(req.Date)
	if err != nil {
		verr.Add("date", "The date is not a valid date.")
		return billing.DailyServiceLog{}, verr
	}
	days, _ := dayrange.DaysInMonth(req.Date)

	log := billing.DailyServiceLog{
		LogNumber:     strings.TrimSpace(req.LogNumber),
		ClientID:      req.ClientID,
		Field:         strings.TrimSpace(req.Field),
		Well:          strings.TrimSpace(req.Well),
		Contract:      strings.TrimSpace(req.Contract),
		JobNo:         strings.TrimSpace(req.JobNo),
		Date:          date,
		LinkedJobID:   req.LinkedJobID,
		Personnel:     make([]billing.PersonnelLogItem, 0, len(req.Personnel)),
		EquipmentUsed: make([]billing.EquipmentLogItem, 0, len(req.EquipmentUsed)),
		Approval:      req.Approval,
		ExcelFileID:   req.ExcelFileID,
		PDFFileID:     req.PDFFileID,
	}

	for i, p := range req.Personnel {
		field := fmt.Sprintf("personnel[%d].daily_status", i)
		status := statusFor(p.DailyStatus, days, p.PresentDays, p.TravelDays)
		checkStatus(verr, field, status, days)
		log.Personnel = append(log.Personnel, billing.PersonnelLogItem{
			ID:          lineID(p.ID),
			Name:        normalizeName(p.Name),
			Position:    normalizeName(p.Position),
			DailyStatus: status,
		})
	}
	for i, e := range req.EquipmentUsed {
		field := fmt.Sprintf("equipment_used[%d].daily_status", i)
		status := statusFor(e.DailyStatus, days, e.PresentDays, "")
		checkStatus(verr, field, status, days)
		log.EquipmentUsed = append(log.EquipmentUsed, billing.EquipmentLogItem{
			ID:          lineID(e.ID),
			Name:        strings.TrimSpace(e.Name),
			Quantity:    e.Quantity,
			DailyStatus: status,
		})
	}

	if !log.Billable() && log.ExcelFileID == nil && log.PDFFileID == nil {
		verr.Add("excel_file_id", "A log without personnel or equipment requires an excel or pdf file.")
	}
	if err := verr.Err(); err != nil {
		return billing.DailyServiceLog{}, err
	}
	return log, nil
}

// NewLogView derives the day-range summary of a log.
func NewLogView(log billing.DailyServiceLog, consumedBy *string) LogView {
	days := dayrange.DaysInMonthOf(log.Date)
	view := LogView{
		DailyServiceLog:  log,
		DaysInMonth:      days,
		PersonnelSummary: make([]LineSummary, 0, len(log.Personnel)),
		EquipmentSummary: make([]LineSummary, 0, len(log.EquipmentUsed)),
		PersonnelDays:    billing.PersonnelDays(log),
		EquipmentUnits:   billing.EquipmentUnits(log),
		ConsumedBy:       consumedBy,
	}
	for _, p := range log.Personnel {
		view.PersonnelSummary = append(view.PersonnelSummary, LineSummary{
			ID:          p.ID,
			Name:        p.Name,
			PresentDays: dayrange.StatusArrayToRangeString(p.DailyStatus, dayrange.MarkerPresent),
			TravelDays:  dayrange.StatusArrayToRangeString(p.DailyStatus, dayrange.MarkerTravel),
			Days:        dayrange.Count(p.DailyStatus, dayrange.MarkerPresent, dayrange.MarkerTravel),
		})
	}
	for _, e := range log.EquipmentUsed {
		view.EquipmentSummary = append(view.EquipmentSummary, LineSummary{
			ID:          e.ID,
			Name:        e.Name,
			PresentDays: dayrange.StatusArrayToRangeString(e.DailyStatus, dayrange.MarkerPresent),
			Days:        dayrange.Count(e.DailyStatus, dayrange.MarkerPresent),
		})
	}
	return view
}

func statusFor(given []dayrange.Marker, days int, present, travel string) []dayrange.Marker {
	if len(given) > 0 {
		return append([]dayrange.Marker(nil), given...)
	}
	return dayrange.BuildStatus(days, present, travel)
}

func checkStatus(verr *httpx.ValidationError, field string, status []dayrange.Marker, days int) {
	if len(status) != days {
		verr.Add(field, fmt.Sprintf("The daily status must contain exactly %d days.", days))
		return
	}
	for _, m := range status {
		if !m.Valid() {
			verr.Add(field, fmt.Sprintf("The daily status contains an invalid marker %q.", string(m)))
			return
		}
	}
}

func lineID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// normalizeName title-cases free-text names typed in upper or lower case.
func normalizeName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	return cases.Title(language.English).String(s)
}

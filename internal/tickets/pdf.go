package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/petrofield/fieldops/internal/billing"
)

// ticketSheet is everything printed on a ticket PDF.
type ticketSheet struct {
	Ticket     billing.ServiceTicket
	ClientName string
	LinkedJob  *billing.LinkedJob
	Logs       []billing.DailyServiceLog
	Rates      billing.Rates
}

// PDF renders a printable service ticket. Concurrent requests for the same
// ticket share one rendering.
func (s *Service) PDF(ctx context.Context, id string) ([]byte, string, error) {
	out, err, _ := s.pdfGroup.Do(id, func() (any, error) {
		sheet, err := s.loadSheet(ctx, id)
		if err != nil {
			return nil, err
		}
		data, err := renderTicket(sheet)
		if err != nil {
			return nil, err
		}
		return renderedPDF{data: data, number: sheet.Ticket.TicketNumber}, nil
	})
	if err != nil {
		return nil, "", err
	}
	pdf := out.(renderedPDF)
	return pdf.data, fmt.Sprintf("service-ticket-%s.pdf", pdf.number), nil
}

type renderedPDF struct {
	data   []byte
	number string
}

func (s *Service) loadSheet(ctx context.Context, id string) (ticketSheet, error) {
	ticket, err := s.repo.Get(ctx, id)
	if err != nil {
		return ticketSheet{}, err
	}
	name, err := s.repo.ClientName(ctx, ticket.ClientID)
	if err != nil {
		return ticketSheet{}, err
	}
	logs, err := s.repo.LoadLogs(ctx, ticket.RelatedLogIDs, false)
	if err != nil {
		return ticketSheet{}, err
	}
	sheet := ticketSheet{Ticket: *ticket, ClientName: name, Logs: logs, Rates: s.opts.Rates}
	linkID := ticket.SubAgreementID
	if linkID == nil {
		linkID = ticket.CallOutJobID
	}
	if linkID != nil {
		job, err := s.links.ResolveLink(ctx, *linkID)
		if err != nil {
			return ticketSheet{}, err
		}
		sheet.LinkedJob = &job
	}
	return sheet, nil
}

func renderTicket(sheet ticketSheet) ([]byte, error) {
	m := maroto.New(config.NewBuilder().Build())
	t := sheet.Ticket

	m.AddRow(12,
		col.New(8).Add(text.New("SERVICE TICKET", props.Text{Size: 16, Style: fontstyle.Bold})),
		col.New(4).Add(text.New(t.TicketNumber, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right})),
	)
	m.AddRow(6,
		col.New(8).Add(text.New("Client: "+sheet.ClientName, props.Text{Size: 10})),
		col.New(4).Add(text.New("Date: "+t.Date.Format("January 2, 2006"), props.Text{Size: 10, Align: align.Right})),
	)
	m.AddRow(6,
		col.New(8).Add(text.New(linkLabel(sheet.LinkedJob), props.Text{Size: 10})),
		col.New(4).Add(text.New("Status: "+string(t.Status), props.Text{Size: 10, Align: align.Right})),
	)
	m.AddRow(8)

	if len(sheet.Logs) > 0 {
		m.AddRow(7,
			col.New(3).Add(text.New("Log", props.Text{Size: 9, Style: fontstyle.Bold})),
			col.New(3).Add(text.New("Date", props.Text{Size: 9, Style: fontstyle.Bold})),
			col.New(2).Add(text.New("Well", props.Text{Size: 9, Style: fontstyle.Bold})),
			col.New(2).Add(text.New("Personnel days", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right})),
			col.New(2).Add(text.New("Equipment units", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right})),
		)
		for _, l := range sheet.Logs {
			m.AddRow(6,
				col.New(3).Add(text.New(l.LogNumber, props.Text{Size: 9})),
				col.New(3).Add(text.New(l.Date.Format(time.DateOnly), props.Text{Size: 9})),
				col.New(2).Add(text.New(l.Well, props.Text{Size: 9})),
				col.New(2).Add(text.New(fmt.Sprintf("%d", billing.PersonnelDays(l)), props.Text{Size: 9, Align: align.Right})),
				col.New(2).Add(text.New(fmt.Sprintf("%d", billing.EquipmentUnits(l)), props.Text{Size: 9, Align: align.Right})),
			)
		}
		m.AddRow(6,
			col.New(12).Add(text.New(fmt.Sprintf("Rates: personnel %s / day, equipment %s / unit day",
				sheet.Rates.PersonnelDay.StringFixed(2), sheet.Rates.EquipmentDay.StringFixed(2)), props.Text{Size: 8, Style: fontstyle.Italic})),
		)
		m.AddRow(6)
	}

	m.AddRow(10,
		col.New(8),
		col.New(4).Add(text.New("Total: "+t.Amount.StringFixed(2), props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right})),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render service ticket pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func linkLabel(job *billing.LinkedJob) string {
	if job == nil {
		return "Unlinked"
	}
	switch job.Kind {
	case billing.LinkAgreement:
		return "Sub-agreement: " + job.Name()
	case billing.LinkCallOut:
		return "Call-out job: " + job.Name()
	}
	return "Unlinked"
}

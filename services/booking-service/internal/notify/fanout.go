package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

// FailureRecorder counts notification failures.
type FailureRecorder interface {
	ObserveNotificationFailure(kind string)
}

const (
	KindBooked    = "booked"
	KindCancelled = "cancelled"
)

var htmlTemplates = template.Must(template.New("notify").Parse(`
{{define "booked"}}<p>Hello {{.Name}},</p>
<p>Your {{.Type}} consultation on <strong>{{.Date}}</strong> at <strong>{{.Slot}}</strong> is confirmed.</p>
{{if .CallLink}}<p>Join the call: <a href="{{.CallLink}}">{{.CallLink}}</a></p>{{end}}
<p>Brilliant Consulting</p>{{end}}

{{define "cancelled"}}<p>Hello {{.Name}},</p>
<p>Your {{.Type}} consultation on <strong>{{.Date}}</strong> at <strong>{{.Slot}}</strong> has been cancelled.</p>
<p>Brilliant Consulting</p>{{end}}

{{define "operator"}}<p>{{.Headline}}</p>
<ul>
<li>Client: {{.Name}} &lt;{{.Email}}&gt;</li>
<li>Date: {{.Date}}</li>
<li>Slot: {{.Slot}}</li>
<li>Type: {{.Type}}</li>
{{if .Notes}}<li>Notes: {{.Notes}}</li>{{end}}
<li>Appointment: {{.ID}}</li>
</ul>{{end}}
`))

type templateData struct {
	ID       string
	Name     string
	Email    string
	Date     string
	Slot     string
	Type     string
	Notes    string
	CallLink string
	Headline string
}

// Fanout notifies the client and the operator about appointment changes.
// Failures are logged and counted, never returned.
type Fanout struct {
	sender   Sender
	operator string
	logger   *slog.Logger
	failures FailureRecorder
}

func NewFanout(sender Sender, operatorEmail string, logger *slog.Logger, failures FailureRecorder) *Fanout {
	return &Fanout{
		sender:   sender,
		operator: strings.TrimSpace(operatorEmail),
		logger:   logger,
		failures: failures,
	}
}

func (f *Fanout) NotifyBooked(ctx context.Context, appt model.Appointment) {
	data := dataFor(appt)
	f.deliver(ctx, KindBooked, appt, appt.ContactEmail,
		fmt.Sprintf("Consultation confirmed: %s %s", appt.Date, appt.TimeSlot), "booked",
		fmt.Sprintf("Your %s consultation on %s at %s is confirmed.%s", data.Type, appt.Date, appt.TimeSlot, callLine(appt.CallLink)), data)

	data.Headline = "New consultation booked"
	f.deliver(ctx, KindBooked, appt, f.operator,
		fmt.Sprintf("New booking: %s %s (%s)", appt.Date, appt.TimeSlot, appt.ContactName), "operator",
		operatorText(data), data)
}

func (f *Fanout) NotifyCancelled(ctx context.Context, appt model.Appointment) {
	data := dataFor(appt)
	f.deliver(ctx, KindCancelled, appt, appt.ContactEmail,
		fmt.Sprintf("Consultation cancelled: %s %s", appt.Date, appt.TimeSlot), "cancelled",
		fmt.Sprintf("Your %s consultation on %s at %s has been cancelled.", data.Type, appt.Date, appt.TimeSlot), data)

	data.Headline = "Consultation cancelled"
	f.deliver(ctx, KindCancelled, appt, f.operator,
		fmt.Sprintf("Cancelled: %s %s (%s)", appt.Date, appt.TimeSlot, appt.ContactName), "operator",
		operatorText(data), data)
}

func (f *Fanout) deliver(ctx context.Context, kind string, appt model.Appointment, to, subject, tmpl, text string, data templateData) {
	if to == "" {
		return
	}
	var html bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, tmpl, data); err != nil {
		f.fail(kind, appt, to, err)
		return
	}
	msg := Message{To: []string{to}, Subject: subject, Text: text, HTML: html.String()}
	if err := f.sender.Send(ctx, msg); err != nil {
		f.fail(kind, appt, to, err)
	}
}

func (f *Fanout) fail(kind string, appt model.Appointment, to string, err error) {
	f.logger.Warn("notification send failed",
		"kind", kind,
		"appointment_id", appt.ID,
		"to", to,
		"err", err,
	)
	if f.failures != nil {
		f.failures.ObserveNotificationFailure(kind)
	}
}

func dataFor(appt model.Appointment) templateData {
	name := appt.ContactName
	if name == "" {
		name = appt.ContactEmail
	}
	typ := appt.ConsultationType
	if typ == "" {
		typ = model.DefaultConsultationType
	}
	return templateData{
		ID:       appt.ID,
		Name:     name,
		Email:    appt.ContactEmail,
		Date:     appt.Date,
		Slot:     appt.TimeSlot,
		Type:     typ,
		Notes:    appt.Notes,
		CallLink: appt.CallLink,
	}
}

func callLine(link string) string {
	if link == "" {
		return ""
	}
	return "\nJoin the call: " + link
}

func operatorText(d templateData) string {
	return fmt.Sprintf("%s\nClient: %s <%s>\nDate: %s\nSlot: %s\nType: %s\nAppointment: %s",
		d.Headline, d.Name, d.Email, d.Date, d.Slot, d.Type, d.ID)
}

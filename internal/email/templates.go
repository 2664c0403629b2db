package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"

	"github.com/dukerupert/handover"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
)

// MaxAttachmentSize is the largest report PDF sent as an attachment.
// Larger reports are delivered by link only.
const MaxAttachmentSize = 15 * 1024 * 1024

// InternalPrefix marks the subject of copies sent to staff.
const InternalPrefix = "[Internal] "

// Message tags used for provider analytics.
const (
	TagReport = "inspection-report"
	TagPhase  = "phase-completed"
)

// messages holds the translated strings for one language.
type messages struct {
	Subject       string // format: order number
	PhaseSubject  string // format: phase, order number
	Greeting      string
	DefaultName   string
	Intro         string
	ReportLink    string
	VehicleInfo   string
	OrderNumber   string
	Model         string
	Color         string
	TotalItems    string
	FailedItems   string
	PassedItems   string
	OnDelivery    string
	TestDrive     string
	Kilometers    string
	RepInfo       string
	Questions     string
	Closing       string
	Team          string
	InternalNote  string
	PhaseSigned   string
	PhaseTitles   map[handover.Phase]string
	StatusPending string
	StatusDone    string
}

var supportedLanguages = []language.Tag{
	language.English, // first tag is the fallback
	language.Chinese,
	language.German,
	language.French,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

var translations = []messages{
	{
		Subject:       "Delivery Inspection Report - Order %s",
		PhaseSubject:  "%s phase completed - Order %s",
		Greeting:      "Dear",
		DefaultName:   "Valued Customer",
		Intro:         "Your delivery inspection has been completed.",
		ReportLink:    "View Inspection Report",
		VehicleInfo:   "Vehicle Information",
		OrderNumber:   "Order Number",
		Model:         "Model",
		Color:         "Color",
		TotalItems:    "Total Items Inspected",
		FailedItems:   "Items Failed",
		PassedItems:   "Items Passed",
		OnDelivery:    "On Delivery Phase",
		TestDrive:     "Test Drive Phase",
		Kilometers:    "Test Drive Distance (km)",
		RepInfo:       "Your delivery representative",
		Questions:     "If you have any questions about this report, please contact your delivery representative.",
		Closing:       "Best regards,",
		Team:          "Delivery Team",
		InternalNote:  "This is an internal copy of the customer report.",
		PhaseSigned:   "Phase signed off",
		PhaseTitles:   map[handover.Phase]string{handover.PhaseOnDelivery: "On Delivery", handover.PhaseTestDrive: "Test Drive"},
		StatusPending: "pending",
		StatusDone:    "completed",
	},
	{
		Subject:       "交付检查报告 - 订单 %s",
		PhaseSubject:  "%s阶段已完成 - 订单 %s",
		Greeting:      "尊敬的",
		DefaultName:   "客户",
		Intro:         "您的车辆交付检查已完成。",
		ReportLink:    "查看检查报告",
		VehicleInfo:   "车辆信息",
		OrderNumber:   "订单号",
		Model:         "车型",
		Color:         "颜色",
		TotalItems:    "检查项目总数",
		FailedItems:   "失败项目",
		PassedItems:   "通过项目",
		OnDelivery:    "交付阶段",
		TestDrive:     "试驾阶段",
		Kilometers:    "试驾里程 (公里)",
		RepInfo:       "您的交付代表",
		Questions:     "如有任何疑问，请联系您的交付代表。",
		Closing:       "此致",
		Team:          "交付团队",
		InternalNote:  "这是客户报告的内部副本。",
		PhaseSigned:   "阶段已签署",
		PhaseTitles:   map[handover.Phase]string{handover.PhaseOnDelivery: "交付", handover.PhaseTestDrive: "试驾"},
		StatusPending: "待处理",
		StatusDone:    "已完成",
	},
	{
		Subject:       "Auslieferungsprüfbericht - Bestellung %s",
		PhaseSubject:  "Phase %s abgeschlossen - Bestellung %s",
		Greeting:      "Liebe/r",
		DefaultName:   "Kunde/Kundin",
		Intro:         "Ihre Auslieferungsprüfung wurde abgeschlossen.",
		ReportLink:    "Prüfbericht anzeigen",
		VehicleInfo:   "Fahrzeuginformationen",
		OrderNumber:   "Bestellnummer",
		Model:         "Modell",
		Color:         "Farbe",
		TotalItems:    "Geprüfte Punkte gesamt",
		FailedItems:   "Nicht bestandene Punkte",
		PassedItems:   "Bestandene Punkte",
		OnDelivery:    "Auslieferungsphase",
		TestDrive:     "Probefahrtphase",
		Kilometers:    "Probefahrt (km)",
		RepInfo:       "Ihr Auslieferungsberater",
		Questions:     "Bei Fragen zu diesem Bericht wenden Sie sich bitte an Ihren Auslieferungsberater.",
		Closing:       "Mit freundlichen Grüßen,",
		Team:          "Ihr Auslieferungsteam",
		InternalNote:  "Dies ist eine interne Kopie des Kundenberichts.",
		PhaseSigned:   "Phase unterschrieben",
		PhaseTitles:   map[handover.Phase]string{handover.PhaseOnDelivery: "Auslieferung", handover.PhaseTestDrive: "Probefahrt"},
		StatusPending: "ausstehend",
		StatusDone:    "abgeschlossen",
	},
	{
		Subject:       "Rapport d'inspection de livraison - Commande %s",
		PhaseSubject:  "Phase %s terminée - Commande %s",
		Greeting:      "Cher/Chère",
		DefaultName:   "Client(e)",
		Intro:         "Votre inspection de livraison est terminée.",
		ReportLink:    "Voir le rapport d'inspection",
		VehicleInfo:   "Informations sur le véhicule",
		OrderNumber:   "Numéro de commande",
		Model:         "Modèle",
		Color:         "Couleur",
		TotalItems:    "Points inspectés au total",
		FailedItems:   "Points en échec",
		PassedItems:   "Points validés",
		OnDelivery:    "Phase de livraison",
		TestDrive:     "Phase d'essai routier",
		Kilometers:    "Distance d'essai (km)",
		RepInfo:       "Votre conseiller livraison",
		Questions:     "Si vous avez des questions sur ce rapport, veuillez contacter votre conseiller livraison.",
		Closing:       "Cordialement,",
		Team:          "L'équipe de livraison",
		InternalNote:  "Ceci est une copie interne du rapport client.",
		PhaseSigned:   "Phase signée",
		PhaseTitles:   map[handover.Phase]string{handover.PhaseOnDelivery: "Livraison", handover.PhaseTestDrive: "Essai routier"},
		StatusPending: "en attente",
		StatusDone:    "terminée",
	},
}

// messagesFor picks the closest supported language, falling back to English.
func messagesFor(lang string) messages {
	_, idx := language.MatchStrings(languageMatcher, lang)
	if idx < 0 || idx >= len(translations) {
		idx = 0
	}
	return translations[idx]
}

type row struct {
	Label string
	Value string
}

type templateData struct {
	T              messages
	Heading        string
	CustomerName   string
	Link           string
	Representative string
	Phase          string
	Rows           []row
	Internal       bool
}

func (m messages) phaseStatus(rec handover.PhaseRecord) string {
	if rec.Status == handover.PhaseStatusPending || rec.Status == "" {
		return m.StatusPending
	}
	return m.StatusDone
}

func render(name string, data templateData) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&hb, name+".html.tmpl", data); err != nil {
		return "", "", fmt.Errorf("rendering %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&tb, name+".txt.tmpl", data); err != nil {
		return "", "", fmt.Errorf("rendering %s text: %w", name, err)
	}
	return hb.String(), tb.String(), nil
}

// ReportData is the input for a report email.
type ReportData struct {
	Inspection *handover.Inspection
	Link       string
	FileName   string
	PDF        []byte

	// Internal marks a staff copy: the subject is prefixed and a note is
	// appended.
	Internal bool
}

// ReportEmail composes the report message for one recipient in the
// inspection's language. The PDF is attached only when it fits under
// MaxAttachmentSize; the link is always included.
func ReportEmail(to string, d ReportData) (*handover.Email, error) {
	in := d.Inspection
	t := messagesFor(in.Language)

	name := in.CustomerName
	if name == "" {
		name = t.DefaultName
	}

	subject := fmt.Sprintf(t.Subject, in.OrderNumber)
	data := templateData{
		T:              t,
		Heading:        subject,
		CustomerName:   name,
		Link:           d.Link,
		Representative: in.RepresentativeName,
		Internal:       d.Internal,
		Rows: []row{
			{t.OrderNumber, in.OrderNumber},
			{"VIN", in.VIN},
			{t.Model, in.VehicleModel},
			{t.Color, in.VehicleColor},
			{t.TotalItems, strconv.Itoa(in.TotalItems)},
			{t.FailedItems, strconv.Itoa(in.FailedItems)},
			{t.PassedItems, strconv.Itoa(in.CompletedItems - in.FailedItems)},
			{t.OnDelivery, t.phaseStatus(in.OnDelivery)},
			{t.TestDrive, t.phaseStatus(in.TestDrive)},
			{t.Kilometers, strconv.Itoa(in.TestDriveKilometers)},
		},
	}

	html, text, err := render("report", data)
	if err != nil {
		return nil, err
	}

	if d.Internal {
		subject = InternalPrefix + subject
	}
	email := &handover.Email{
		To:       []string{to},
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
		Tag:      TagReport,
	}
	if len(d.PDF) > 0 && len(d.PDF) <= MaxAttachmentSize {
		email.Attachments = []handover.Attachment{{
			Name:        d.FileName,
			ContentType: "application/pdf",
			Data:        d.PDF,
		}}
	}
	return email, nil
}

// PhaseEmail composes the notification sent to staff when a phase is
// signed.
func PhaseEmail(to []string, in *handover.Inspection, phase handover.Phase) (*handover.Email, error) {
	t := messagesFor(in.Language)

	title := t.PhaseTitles[phase]
	if title == "" {
		title = phase.Title()
	}
	totals := in.PhaseTotals(phase)

	subject := fmt.Sprintf(t.PhaseSubject, title, in.OrderNumber)
	data := templateData{
		T:       t,
		Heading: subject,
		Phase:   title,
		Rows: []row{
			{t.OrderNumber, in.OrderNumber},
			{"VIN", in.VIN},
			{t.Model, in.VehicleModel},
			{t.TotalItems, strconv.Itoa(totals.Total)},
			{t.FailedItems, strconv.Itoa(totals.Failed)},
		},
	}
	if rec := in.PhaseRecord(phase); rec != nil && rec.CompletedAt != nil {
		data.Rows = append(data.Rows, row{"Signed", rec.CompletedAt.UTC().Format("2006-01-02 15:04 MST")})
	}

	html, text, err := render("phase", data)
	if err != nil {
		return nil, err
	}

	return &handover.Email{
		To:       to,
		Subject:  InternalPrefix + subject,
		HTMLBody: html,
		TextBody: text,
		Tag:      TagPhase,
	}, nil
}

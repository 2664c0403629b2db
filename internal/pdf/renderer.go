// Package pdf renders inspection reports with fpdf.
package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/handover"
	"github.com/go-pdf/fpdf"
	"golang.org/x/crypto/blake2b"
)

// Compile-time interface check
var _ handover.DocumentRenderer = (*Renderer)(nil)

// Renderer lays out an inspection as an A4 report.
type Renderer struct {
	// Title is printed at the top of the first page.
	Title string

	// Footer is printed at the bottom of every page.
	Footer string

	// Now stamps the generation time. Defaults to time.Now.
	Now func() time.Time
}

// NewRenderer returns a renderer with the default title and footer.
func NewRenderer() *Renderer {
	return &Renderer{
		Title:  "Pre-Delivery Inspection Report",
		Footer: "Generated by Handover",
		Now:    time.Now,
	}
}

// Render produces the PDF bytes.
func (r *Renderer) Render(ctx context.Context, in *handover.Inspection, media []*handover.MediaAttachment) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	doc := fpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetTitle(r.Title+" "+in.OrderNumber, true)
	doc.SetCreator("handover", true)
	doc.SetCreationDate(now())
	doc.SetAutoPageBreak(true, 20)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-15)
		doc.SetFont("Helvetica", "I", 8)
		doc.SetTextColor(128, 128, 128)
		doc.CellFormat(0, 10, tr(fmt.Sprintf("%s - Page %d/{nb}", r.Footer, doc.PageNo())), "", 0, "C", false, 0, "")
	})
	doc.AddPage()

	w := &writer{doc: doc, tr: tr}
	w.header(r.Title, in, now())
	w.summary(in)

	for _, sec := range in.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.section(sec)
	}

	w.mediaAppendix(media)
	w.signatures(in)

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("laying out report: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}
	return buf.Bytes(), nil
}

// SignatureFingerprint is a short stable digest of a signature payload,
// printed on the report so a signature can be matched to stored data.
func SignatureFingerprint(signature string) string {
	sum := blake2b.Sum256([]byte(signature))
	return hex.EncodeToString(sum[:8])
}

type writer struct {
	doc *fpdf.Fpdf
	tr  func(string) string
}

func (w *writer) heading(text string, size float64) {
	w.doc.SetFont("Helvetica", "B", size)
	w.doc.SetTextColor(0, 0, 0)
	w.doc.CellFormat(0, size/2+2, w.tr(text), "", 1, "L", false, 0, "")
}

func (w *writer) line(label, value string) {
	w.doc.SetFont("Helvetica", "B", 11)
	w.doc.CellFormat(50, 6, w.tr(label+":"), "", 0, "L", false, 0, "")
	w.doc.SetFont("Helvetica", "", 11)
	w.doc.CellFormat(0, 6, w.tr(value), "", 1, "L", false, 0, "")
}

func (w *writer) header(title string, in *handover.Inspection, generated time.Time) {
	w.heading(title, 20)
	w.doc.Ln(4)

	customer := in.CustomerName
	if customer == "" {
		customer = "N/A"
	}
	w.line("Order Number", in.OrderNumber)
	w.line("VIN", in.VIN)
	w.line("Vehicle", in.VehicleModel)
	w.line("Color", in.VehicleColor)
	w.line("Customer", customer)
	if in.RepresentativeName != "" {
		w.line("Representative", in.RepresentativeName)
	}
	if !in.DeliveryDate.IsZero() {
		w.line("Delivery Date", in.DeliveryDate.Format("2006-01-02"))
	}
	w.line("Report Date", generated.Format("2006-01-02"))
	w.doc.Ln(6)
}

func (w *writer) summary(in *handover.Inspection) {
	w.heading("Inspection Summary", 16)
	w.line("Total Items", fmt.Sprint(in.TotalItems))
	w.line("Completed Items", fmt.Sprint(in.CompletedItems))
	if in.FailedItems > 0 {
		w.doc.SetTextColor(204, 26, 26)
	}
	w.line("Failed Items", fmt.Sprint(in.FailedItems))
	w.doc.SetTextColor(0, 0, 0)
	if in.TestDriveKilometers > 0 {
		w.line("Test Drive", fmt.Sprintf("%d km", in.TestDriveKilometers))
	}
	w.doc.Ln(6)
	w.heading("Inspection Details", 16)
}

func statusMarker(s handover.ItemStatus) (string, [3]int) {
	switch s {
	case handover.ItemPassed:
		return "PASS", [3]int{0, 153, 0}
	case handover.ItemFailed:
		return "FAIL", [3]int{204, 26, 26}
	case handover.ItemPending:
		return "----", [3]int{128, 128, 128}
	default:
		return string(s), [3]int{128, 128, 128}
	}
}

func (w *writer) section(sec handover.Section) {
	w.doc.Ln(2)
	w.heading(fmt.Sprintf("%s (%s)", sec.Name, sec.Stage.Title()), 13)

	for _, it := range sec.Items {
		marker, rgb := statusMarker(it.Status)
		w.doc.SetFont("Helvetica", "B", 9)
		w.doc.SetTextColor(rgb[0], rgb[1], rgb[2])
		w.doc.CellFormat(14, 5, marker, "", 0, "L", false, 0, "")
		w.doc.SetFont("Helvetica", "", 10)
		w.doc.SetTextColor(0, 0, 0)
		w.doc.MultiCell(0, 5, w.tr(it.Name), "", "L", false)

		if it.Notes != "" {
			w.doc.SetFont("Helvetica", "I", 9)
			w.doc.SetTextColor(102, 102, 102)
			w.doc.SetX(w.doc.GetX() + 14)
			w.doc.MultiCell(0, 4.5, w.tr("Notes: "+it.Notes), "", "L", false)
		}
		if n := len(it.Media); n > 0 {
			w.doc.SetFont("Helvetica", "", 8)
			w.doc.SetTextColor(102, 102, 102)
			w.doc.SetX(w.doc.GetX() + 14)
			c := handover.CountMedia(it.Media)
			w.doc.CellFormat(0, 4.5, fmt.Sprintf("Evidence: %d photo(s), %d video(s)", c.Photos, c.Videos), "", 1, "L", false, 0, "")
		}
	}
	w.doc.SetTextColor(0, 0, 0)
}

func (w *writer) mediaAppendix(media []*handover.MediaAttachment) {
	var uploaded []*handover.MediaAttachment
	for _, m := range media {
		if m.UploadStatus == handover.UploadUploaded && m.Link != "" {
			uploaded = append(uploaded, m)
		}
	}
	if len(uploaded) == 0 {
		return
	}

	w.doc.Ln(6)
	w.heading("Media Links", 16)
	w.doc.SetFont("Helvetica", "", 9)
	w.doc.SetTextColor(0, 0, 204)
	for _, m := range uploaded {
		label := fmt.Sprintf("[%s] %s - %s", m.ItemID, m.Kind, m.FileName)
		w.doc.CellFormat(0, 5, w.tr(label), "", 1, "L", false, 0, m.Link)
	}
	w.doc.SetTextColor(0, 0, 0)
}

func (w *writer) signatures(in *handover.Inspection) {
	w.doc.Ln(6)
	w.heading("Signatures", 14)

	for _, phase := range handover.Phases {
		rec := in.PhaseRecord(phase)
		w.doc.SetFont("Helvetica", "B", 10)
		w.doc.CellFormat(0, 6, w.tr(phase.Title()), "", 1, "L", false, 0, "")
		w.doc.SetFont("Helvetica", "", 10)

		if rec.Signature == "" {
			w.doc.CellFormat(0, 5, "Not signed", "", 1, "L", false, 0, "")
			continue
		}

		signed := "Signed digitally"
		if rec.CompletedAt != nil {
			signed += " on " + rec.CompletedAt.UTC().Format("2006-01-02 15:04 MST")
		}
		w.doc.CellFormat(0, 5, signed, "", 1, "L", false, 0, "")
		w.doc.CellFormat(0, 5, "Fingerprint: "+SignatureFingerprint(rec.Signature), "", 1, "L", false, 0, "")
		w.signatureImage(string(phase), rec.Signature)
	}
}

// signatureImage draws a PNG data URL signature. Other payloads are only
// fingerprinted.
func (w *writer) signatureImage(name, signature string) {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(signature, prefix) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(signature[len(prefix):])
	if err != nil {
		return
	}

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	w.doc.RegisterImageOptionsReader("sig-"+name, opts, bytes.NewReader(data))
	if !w.doc.Ok() {
		w.doc.ClearError()
		return
	}
	w.doc.ImageOptions("sig-"+name, w.doc.GetX(), w.doc.GetY(), 60, 0, true, opts, 0, "")
}

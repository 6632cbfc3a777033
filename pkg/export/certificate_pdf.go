package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// CertificateDocument carries everything printed on a certificate.
type CertificateDocument struct {
	Number      string
	HolderName  string
	Role        string
	CourseTitle string
	ClassName   string
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   *time.Time
	VerifyURL   string
}

// CertificateRenderer draws a single-page landscape certificate with a verification QR code.
type CertificateRenderer struct {
	qrSize int
}

// NewCertificateRenderer builds a renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{qrSize: 256}
}

// Render produces the PDF bytes for doc.
func (r *CertificateRenderer) Render(doc CertificateDocument) ([]byte, error) {
	if doc.Number == "" || doc.HolderName == "" {
		return nil, fmt.Errorf("certificate number and holder name required")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	width, height := pdf.GetPageSize()
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(14, 14, width-28, height-28, "D")

	pdf.SetY(32)
	pdf.SetFont("Times", "B", 30)
	pdf.CellFormat(0, 14, "CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 13)
	pdf.CellFormat(0, 8, tr("of "+certificateRoleLabel(doc.Role)), "", 1, "C", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "BI", 26)
	pdf.CellFormat(0, 16, tr(doc.HolderName), "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	line := "has completed the training"
	if doc.Role == "instructor" {
		line = "has delivered the training"
	}
	pdf.CellFormat(0, 8, line, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(doc.CourseTitle), "", 1, "C", false, 0, "")
	if doc.ClassName != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, tr(doc.ClassName), "", 1, "C", false, 0, "")
	}

	pdf.SetXY(24, height-52)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(120, 6, "Certificate No. "+doc.Number, "", 2, "L", false, 0, "")
	pdf.CellFormat(120, 6, "Issued "+doc.IssuedAt.Format("02 January 2006"), "", 2, "L", false, 0, "")
	if doc.ExpiresAt != nil {
		pdf.CellFormat(120, 6, "Valid until "+doc.ExpiresAt.Format("02 January 2006"), "", 2, "L", false, 0, "")
	}
	if doc.Issuer != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(120, 6, tr(doc.Issuer), "", 2, "L", false, 0, "")
	}

	if doc.VerifyURL != "" {
		png, err := qrcode.Encode(doc.VerifyURL, qrcode.Medium, r.qrSize)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}
		name := "qr-" + doc.Number
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
		side := 38.0
		pdf.ImageOptions(name, width-24-side, height-24-side, side, side, false, opts, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func certificateRoleLabel(role string) string {
	if role == "instructor" {
		return "Appreciation"
	}
	return "Completion"
}

// Package export renders bills as spreadsheet and PDF documents.
package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/crossbridge/crossbridge/internal/billing"
)

const (
	summarySheet = "bill"
	linesSheet   = "lines"
	dateLayout   = "2006-01-02"
)

// BuildBillXLSX renders the bill header and its sub-entity lines.
func BuildBillXLSX(bill billing.Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	rows := [][]any{
		{"Bill", bill.ID},
		{"Counterparty", fmt.Sprintf("%s (%s)", bill.CounterpartyName, bill.CounterpartyID)},
		{"Kind", string(bill.Kind)},
		{"Period", bill.Period},
		{"Status", string(bill.Status)},
		{"Currency", bill.Currency},
		{"Gross", bill.Gross.InexactFloat64()},
		{"Rebate", bill.Rebate.InexactFloat64()},
		{"Net", bill.Net.InexactFloat64()},
		{"Paid", bill.Paid.InexactFloat64()},
		{"Outstanding", bill.Outstanding().InexactFloat64()},
		{"Payment due", formatDate(bill)},
		{"Rebate due", formatRebateDate(bill)},
		{"Notes", bill.Notes},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	header := []any{"Sub-entity", "Currency", "Gross", "Rebate", "Net", "Paid", "Records"}
	if err := f.SetSheetRow(linesSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, line := range bill.Lines {
		row := []any{
			line.SubEntityID,
			line.Currency,
			line.Gross.InexactFloat64(),
			line.Rebate.InexactFloat64(),
			line.Net.InexactFloat64(),
			line.Paid.InexactFloat64(),
			len(line.RecordIDs),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(linesSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillPDF renders a one-page bill. Core fonts only cover Latin-1, so
// names outside it are transliterated by the translator.
func BuildBillPDF(bill billing.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Payable bill %s", bill.Period)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Bill: %s", bill.ID),
		fmt.Sprintf("Counterparty: %s (%s)", bill.CounterpartyName, bill.CounterpartyID),
		fmt.Sprintf("Kind: %s", bill.Kind),
		fmt.Sprintf("Status: %s", bill.Status),
		fmt.Sprintf("Payment due: %s", formatDate(bill)),
		fmt.Sprintf("Rebate due: %s", formatRebateDate(bill)),
	} {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(3)
	pdf.Cell(0, 6, fmt.Sprintf("Gross (%s): %s", bill.Currency, bill.Gross.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Rebate (%s): %s", bill.Currency, bill.Rebate.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net (%s): %s", bill.Currency, bill.Net.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Outstanding (%s): %s", bill.Currency, bill.Outstanding().StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	for _, h := range []struct {
		w     float64
		label string
	}{{50, "Sub-entity"}, {35, "Gross"}, {35, "Rebate"}, {35, "Net"}, {25, "Records"}} {
		pdf.CellFormat(h.w, 6, h.label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range bill.Lines {
		pdf.CellFormat(50, 6, tr(line.SubEntityID), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, line.Gross.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, line.Rebate.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, line.Net.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", len(line.RecordIDs)), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	if bill.Notes != "" {
		pdf.Ln(4)
		pdf.MultiCell(0, 5, tr("Notes: "+bill.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDate(bill billing.Bill) string {
	if bill.PaymentDueDate == nil {
		return "unknown"
	}
	return bill.PaymentDueDate.Format(dateLayout)
}

func formatRebateDate(bill billing.Bill) string {
	if bill.RebateDueDate == nil {
		return "n/a"
	}
	return bill.RebateDueDate.Format(dateLayout)
}

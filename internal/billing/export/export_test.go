package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/crossbridge/crossbridge/internal/billing"
)

func sampleBill() billing.Bill {
	due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	d := decimal.RequireFromString
	return billing.Bill{
		ID:               "bill-1",
		Period:           "2024-01",
		Kind:             billing.KindPayableAgency,
		CounterpartyID:   "A",
		CounterpartyName: "Blue Media",
		Currency:         "USD",
		Gross:            d("3500"),
		Rebate:           d("105"),
		Net:              d("3395"),
		Paid:             d("395"),
		Status:           billing.StatusDraft,
		PaymentDueDate:   &due,
		Notes:            "rebate due date unknown",
		Lines: []billing.BillLine{
			{SubEntityID: "ad-1", Currency: "USD", Gross: d("2000"), Rebate: d("60"), Net: d("1940"), RecordIDs: []string{"r1"}},
			{SubEntityID: "ad-2", Currency: "USD", Gross: d("1500"), Rebate: d("45"), Net: d("1455"), Paid: d("395"), RecordIDs: []string{"r2"}},
		},
	}
}

func TestBuildBillXLSX(t *testing.T) {
	data, err := BuildBillXLSX(sampleBill())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	require.Equal(t, "bill-1", v)

	v, err = f.GetCellValue(summarySheet, "B9")
	require.NoError(t, err)
	require.Equal(t, "3395", v)

	v, err = f.GetCellValue(summarySheet, "B12")
	require.NoError(t, err)
	require.Equal(t, "2024-02-15", v)

	rows, err := f.GetRows(linesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "ad-2", rows[2][0])
}

func TestBuildBillPDF(t *testing.T) {
	data, err := BuildBillPDF(sampleBill())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestBuildBillPDFWithoutLines(t *testing.T) {
	bill := sampleBill()
	bill.Lines = nil
	bill.PaymentDueDate = nil
	bill.CounterpartyName = "蓝色传媒"
	data, err := BuildBillPDF(bill)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

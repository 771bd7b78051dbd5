package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	settlement "github.com/Thedongraphix/Minisend-sub001/internal/settlement/domain"
)

// BuildSettlementsXLSX renders the settlement records of one period.
func BuildSettlementsXLSX(from, to time.Time, records []settlement.Record) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	recordsSheet := "settlements"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(recordsSheet)

	total := decimalSum(records)
	_ = f.SetCellValue(summarySheet, "A1", "Settlement Export")
	_ = f.SetCellValue(summarySheet, "A3", "From")
	_ = f.SetCellValue(summarySheet, "B3", from.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "To")
	_ = f.SetCellValue(summarySheet, "B4", to.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Records")
	_ = f.SetCellValue(summarySheet, "B5", len(records))
	_ = f.SetCellValue(summarySheet, "A6", "Total Settled")
	_ = f.SetCellValue(summarySheet, "B6", total)

	_ = f.SetCellValue(recordsSheet, "A1", "Order")
	_ = f.SetCellValue(recordsSheet, "B1", "Currency")
	_ = f.SetCellValue(recordsSheet, "C1", "Amount")
	_ = f.SetCellValue(recordsSheet, "D1", "Tx Hash")
	_ = f.SetCellValue(recordsSheet, "E1", "Provider")
	_ = f.SetCellValue(recordsSheet, "F1", "Settled At")
	for i, record := range records {
		row := i + 2
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("A%d", row), record.ExternalOrderID)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("B%d", row), record.LocalCurrency)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("C%d", row), record.SettlementAmount.InexactFloat64())
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("D%d", row), record.TransactionHash)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("E%d", row), record.ProviderID)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("F%d", row), record.SettledAt.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReceiptPDF renders a delivery receipt for one settled order.
func BuildReceiptPDF(order *orders.Order, record *settlement.Record) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Payout Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Order: %s", order.ExternalOrderID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Recipient: %s (%s)", order.Recipient.AccountName, order.Recipient.Institution))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Account: %s", order.Recipient.AccountNumber))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Amount Sent: %s", order.AmountRequested.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Delivered: %s %s", record.SettlementAmount.String(), record.LocalCurrency))
	pdf.Ln(5)
	if record.TransactionHash != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Tx Hash: %s", record.TransactionHash))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Settled: %s", record.SettledAt.Format(time.RFC3339)))
	pdf.Ln(5)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decimalSum(records []settlement.Record) float64 {
	var total float64
	for _, record := range records {
		total += record.SettlementAmount.InexactFloat64()
	}
	return total
}

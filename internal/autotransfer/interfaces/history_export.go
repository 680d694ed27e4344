package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/reconcile"
)

const dayLayout = "2006-01-02"

// BuildHistoryPDF renders a contract's reconciled execution history.
func BuildHistoryPDF(contract *autotransfer.Contract, history reconcile.Result, generatedAt time.Time) ([]byte, error) {
	if contract == nil {
		return nil, autotransfer.ErrNilContract
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Auto-Transfer Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Contract: %s", contract.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Beneficiary: %s (%s)", contract.BeneficiaryName, contract.ToAccount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Amount: %s", contract.Amount.StringFixed(0)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Billing day: %d", contract.BillingDay))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", contract.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Next transfer: %s", autotransfer.DateKey(contract.NextTransferDate)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	stats := history.Stats
	pdf.Cell(0, 6, fmt.Sprintf("Executions: %d  Success: %d  Failed: %d  Pending: %d", stats.Total, stats.Success, stats.Failed, stats.Pending))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Success rate: %.1f%%", stats.SuccessRate*100))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Scheduled", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Executed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Outcome", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "Retry", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Reference", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, record := range history.Normalized {
		pdf.CellFormat(30, 6, scheduledText(record), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, executedText(record), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, string(record.Outcome), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, record.Amount.StringFixed(0), "1", 0, "R", false, 0, "")
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", record.RetryCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, reference(record), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryXLSX renders a contract's reconciled execution history with a
// summary sheet, an items sheet and a per-day sheet.
func BuildHistoryXLSX(contract *autotransfer.Contract, history reconcile.Result, generatedAt time.Time) ([]byte, error) {
	if contract == nil {
		return nil, autotransfer.ErrNilContract
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "items"
	daysSheet := "days"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Contract", contract.ID},
		{"Owner", contract.OwnerID},
		{"Beneficiary", contract.BeneficiaryName},
		{"To account", contract.ToAccount},
		{"Amount", contract.Amount.InexactFloat64()},
		{"Billing day", contract.BillingDay},
		{"Status", string(contract.Status)},
		{"Next transfer", autotransfer.DateKey(contract.NextTransferDate)},
		{"Executions", history.Stats.Total},
		{"Success", history.Stats.Success},
		{"Failed", history.Stats.Failed},
		{"Pending", history.Stats.Pending},
		{"Success rate", history.Stats.SuccessRate},
		{"Generated", generatedAt.Format(time.RFC3339)},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Auto-Transfer Statement")
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	headers := []string{"Scheduled", "Executed", "Outcome", "Amount", "Retry", "Transaction", "Failure"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, header)
	}
	for i, record := range history.Normalized {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), scheduledText(record))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), executedText(record))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), string(record.Outcome))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), record.Amount.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), record.RetryCount)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), record.TransactionID)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("G%d", row), record.FailureReason)
	}

	_ = f.SetCellValue(daysSheet, "A1", "Day")
	_ = f.SetCellValue(daysSheet, "B1", "Records")
	for i, bucket := range history.GroupedByDay {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), bucket.Day)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), len(bucket.Records))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scheduledText(record autotransfer.ExecutionRecord) string {
	if record.ScheduledDate.IsZero() {
		return "-"
	}
	return record.ScheduledDate.Format(dayLayout)
}

func executedText(record autotransfer.ExecutionRecord) string {
	if record.ExecutionDate == nil {
		return "-"
	}
	return record.ExecutionDate.Format("2006-01-02 15:04")
}

func reference(record autotransfer.ExecutionRecord) string {
	switch record.Outcome {
	case autotransfer.OutcomeSuccess:
		return record.TransactionID
	case autotransfer.OutcomeFailed:
		return record.FailureReason
	default:
		return ""
	}
}

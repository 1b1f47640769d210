package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"hostelpay/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	paymentsSheet = "Payments"
	summarySheet  = "Summary"
)

var headers = []string{
	"Reference", "Booking ID", "Hostel", "Room", "Customer", "Email", "Phone",
	"Method", "Network", "Amount", "Attempt Status", "Payment Type", "Total",
	"Amount Paid", "Booking Status", "Created At", "Resolved At",
}

// FileName is the download name of a ledger export taken at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("payments_%s.xlsx", t.UTC().Format("20060102_150405"))
}

// WriteLedger renders entries as an xlsx workbook with a payments sheet and
// a per-status summary.
func WriteLedger(w io.Writer, entries []*models.LedgerEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(paymentsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 4})

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(paymentsSheet, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(paymentsSheet, "A1", lastHeader, headerStyle)

	for i, e := range entries {
		row := i + 2
		resolved := ""
		if e.ResolvedAt != nil {
			resolved = e.ResolvedAt.UTC().Format(time.DateTime)
		}
		values := []interface{}{
			e.Reference, e.BookingID, e.HostelID, e.RoomID,
			e.Customer.FullName, e.Customer.Email, e.Customer.Phone,
			e.Method, e.Network, e.Amount, string(e.Status), e.PaymentType,
			e.TotalAmount, e.AmountPaid, string(e.PaymentStatus),
			e.CreatedAt.UTC().Format(time.DateTime), resolved,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(paymentsSheet, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
	}
	if len(entries) > 0 {
		last := len(entries) + 1
		_ = f.SetCellStyle(paymentsSheet, "J2", fmt.Sprintf("J%d", last), moneyStyle)
		_ = f.SetCellStyle(paymentsSheet, "M2", fmt.Sprintf("N%d", last), moneyStyle)
	}

	_ = f.SetColWidth(paymentsSheet, "A", "B", 40)
	_ = f.SetColWidth(paymentsSheet, "C", "Q", 16)
	_ = f.SetPanes(paymentsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := writeSummary(f, entries, headerStyle, moneyStyle); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, entries []*models.LedgerEntry, headerStyle, moneyStyle int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	type bucket struct {
		count  int
		amount float64
	}
	byStatus := map[string]*bucket{}
	for _, e := range entries {
		b, ok := byStatus[string(e.Status)]
		if !ok {
			b = &bucket{}
			byStatus[string(e.Status)] = b
		}
		b.count++
		b.amount += e.Amount
	}
	statuses := make([]string, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	_ = f.SetSheetRow(summarySheet, "A1", &[]interface{}{"Attempt Status", "Count", "Amount"})
	_ = f.SetCellStyle(summarySheet, "A1", "C1", headerStyle)
	for i, s := range statuses {
		cell := fmt.Sprintf("A%d", i+2)
		_ = f.SetSheetRow(summarySheet, cell, &[]interface{}{s, byStatus[s].count, byStatus[s].amount})
	}
	if len(statuses) > 0 {
		_ = f.SetCellStyle(summarySheet, "C2", fmt.Sprintf("C%d", len(statuses)+1), moneyStyle)
	}
	_ = f.SetColWidth(summarySheet, "A", "C", 18)
	return nil
}

// Package export renders client and transaction lists as xlsx workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dtc/client-desk/internal/model"
)

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	ClientsSheet      = "Clients"
	TransactionsSheet = "Transactions"
)

const timestampLayout = "2006-01-02 15:04:05"

var clientHeader = []any{
	"ID", "Name", "Email", "Phone", "Status", "Risk Level", "Account Type",
	"Total Equity", "Daily Commission", "Total Commission", "Current Nots",
	"Date Added", "Last Activity",
}

var transactionHeader = []any{
	"ID", "Client ID", "Client", "Type", "Status", "Amount",
	"Reference", "Description", "Transaction Date",
}

// Clients writes a one-sheet workbook with a row per client.
func Clients(w io.Writer, clients []model.Client) error {
	rows := make([][]any, 0, len(clients))
	for _, c := range clients {
		rows = append(rows, []any{
			c.ID, c.Name, c.Email, deref(c.Phone),
			string(c.Status), string(c.RiskLevel), string(c.AccountType),
			number(c.TotalEquity), number(c.DailyCommission), number(c.TotalCommission), c.CurrentNots,
			c.DateAdded.UTC().Format(timestampLayout), c.LastActivity.UTC().Format(timestampLayout),
		})
	}
	return write(w, ClientsSheet, clientHeader, rows)
}

// Transactions writes a one-sheet workbook with a row per transaction.
// names maps client ids to display names; unknown ids leave the cell empty.
func Transactions(w io.Writer, txs []model.Transaction, names map[string]string) error {
	rows := make([][]any, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []any{
			tx.ID, tx.ClientID, names[tx.ClientID],
			string(tx.Type), string(tx.Status), number(tx.Amount),
			deref(tx.ReferenceNumber), deref(tx.Description),
			tx.TransactionDate.UTC().Format(timestampLayout),
		})
	}
	return write(w, TransactionsSheet, transactionHeader, rows)
}

func write(w io.Writer, sheet string, header []any, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("export: style: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// number converts money for a numeric spreadsheet cell.
func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

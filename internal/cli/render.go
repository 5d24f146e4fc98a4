package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/tally/internal/csvbatch"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
)

// maxRejectionsShown caps the rejection list in terminal output.
const maxRejectionsShown = 20

// RenderReport renders the three report figures in a box.
func RenderReport(report model.Report) string {
	amounts := []string{
		report.GrossRevenue.String(),
		report.Expenses.String(),
		report.NetRevenue.String(),
	}
	width := 0
	for _, a := range amounts {
		width = max(width, lipgloss.Width(a))
	}
	amount := AmountStyle.Width(width)

	net := amount.Render(amounts[2])
	if report.NetRevenue.IsNegative() {
		net = ErrorStyle.Inherit(amount).Render(amounts[2])
	}

	rows := lipgloss.JoinVertical(lipgloss.Left,
		LabelStyle.Render("Gross revenue")+amount.Render(amounts[0]),
		LabelStyle.Render("Expenses")+amount.Render(amounts[1]),
		LabelStyle.Render("Net revenue")+net,
	)
	return RenderBox(LedgerIcon+" Report", rows)
}

// RenderIngestResult summarizes one upload.
func RenderIngestResult(result ledger.IngestResult) string {
	var sb strings.Builder

	switch result.Outcome {
	case ledger.OutcomeEmpty:
		sb.WriteString(FormatWarning("No rows found"))
	case ledger.OutcomeNothingValid:
		sb.WriteString(FormatError(fmt.Sprintf("None of %d rows were valid; nothing committed", result.Rows)))
	case ledger.OutcomePartial:
		sb.WriteString(FormatWarning(fmt.Sprintf("Committed %d of %d rows", result.Committed, result.Rows)))
	default:
		sb.WriteString(FormatSuccess(fmt.Sprintf("Committed %d rows", result.Committed)))
	}
	sb.WriteString("\n")

	if len(result.Rejected) > 0 {
		sb.WriteString("\n")
		sb.WriteString(RenderRejections(result.Rejected))
	}
	if result.Report != nil {
		sb.WriteString("\n")
		sb.WriteString(RenderReport(*result.Report))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderRejections lists rejected rows as a table.
func RenderRejections(rejections []csvbatch.Rejection) string {
	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(
		TableCellStyle.Width(8).Render("Line") +
			TableCellStyle.Width(16).Render("Reason") +
			TableCellStyle.Width(12).Render("Field") +
			"Detail"))
	sb.WriteString("\n")

	for i, r := range rejections {
		if i == maxRejectionsShown {
			sb.WriteString(SubtleStyle.Render(fmt.Sprintf("... and %d more", len(rejections)-maxRejectionsShown)))
			sb.WriteString("\n")
			break
		}
		sb.WriteString(TableCellStyle.Width(8).Render(fmt.Sprint(r.Line)))
		sb.WriteString(WarningStyle.Inherit(TableCellStyle).Width(16).Render(string(r.Reason)))
		sb.WriteString(TableCellStyle.Width(12).Render(r.Field))
		sb.WriteString(SubtleStyle.Render(r.Detail))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderVerifyResult shows whether the persisted report matches the ledger.
func RenderVerifyResult(result ledger.VerifyResult) string {
	if result.OK {
		return FormatSuccess(fmt.Sprintf("Report matches %d transactions", result.Count)) + "\n" +
			RenderReport(result.Persisted) + "\n"
	}

	return FormatError(fmt.Sprintf("Report does not match %d transactions", result.Count)) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top,
			RenderBox("Persisted", RenderReport(result.Persisted)),
			" ",
			RenderBox("Recomputed", RenderReport(result.Recomputed)),
		) + "\n"
}

// RenderTransactions renders a transaction listing.
func RenderTransactions(transactions []model.Transaction, total int) string {
	if len(transactions) == 0 {
		return SubtleStyle.Render("No transactions") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(
		TableCellStyle.Width(12).Render("Date") +
			TableCellStyle.Width(10).Render("Direction") +
			TableCellStyle.Width(16).Align(lipgloss.Right).Render("Amount") +
			"Memo"))
	sb.WriteString("\n")

	for _, txn := range transactions {
		dir := SuccessStyle.Inherit(TableCellStyle).Width(10)
		if txn.Direction == model.DirectionExpense {
			dir = ErrorStyle.Inherit(TableCellStyle).Width(10)
		}
		sb.WriteString(TableCellStyle.Width(12).Render(txn.DateString()))
		sb.WriteString(dir.Render(string(txn.Direction)))
		sb.WriteString(TableCellStyle.Width(16).Align(lipgloss.Right).Render(txn.Amount.String()))
		sb.WriteString(txn.Memo)
		sb.WriteString("\n")
	}

	sb.WriteString(SubtleStyle.Render(fmt.Sprintf("%d of %d transactions", len(transactions), total)))
	sb.WriteString("\n")
	return sb.String()
}

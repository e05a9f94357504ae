// Package export renders an approval's audit trail as an XLSX workbook.
package export

import (
	"fmt"

	domainApproval "approval-engine/internal/domain/approval"
	historyDomain "approval-engine/internal/domain/history"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName  = "History"
	timeLayout = "2006-01-02 15:04:05"
	MIMEType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var columns = []string{
	"Sequence", "Action", "Action By", "Action At (UTC)", "From Status",
	"To Status", "Level", "Comments", "Rejection Reason", "IP Address",
}

// Names maps user ids to display names; nil leaves ids as they are.
type Names interface {
	DisplayName(id string) string
}

// History writes one row per history entry under a short summary block and
// returns the workbook with its file name.
func History(a *domainApproval.Approval, rows []historyDomain.ApprovalHistory, names Names) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, "", err
	}
	display := func(id string) string {
		if names == nil {
			return id
		}
		return names.DisplayName(id)
	}

	summary := [][2]any{
		{"Approval", a.ApprovalID},
		{"Approvable", a.ApprovableType + "/" + a.ApprovableID},
		{"Module", a.ModuleName},
		{"Status", string(a.Status)},
		{"Requested By", display(a.RequestedBy)},
	}
	for i, kv := range summary {
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", i+1), &[]any{kv[0], kv[1]}); err != nil {
			return nil, "", err
		}
	}

	headerRow := len(summary) + 2
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, "", err
	}
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, headerRow)
		if err := f.SetCellValue(sheetName, cell, col); err != nil {
			return nil, "", err
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(columns), headerRow)
	if err := f.SetCellStyle(sheetName, first, last, headerStyle); err != nil {
		return nil, "", err
	}

	for i, h := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, headerRow+1+i)
		row := []any{
			h.Sequence,
			string(h.Action),
			display(h.ActionBy),
			h.ActionAt.UTC().Format(timeLayout),
			h.FromStatus,
			h.ToStatus,
			h.ApprovalLevel,
			deref(h.Comments),
			deref(h.RejectionReason),
			h.IPAddress,
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, "", err
		}
	}

	for i := range columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetName, col, col, 18)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), fmt.Sprintf("approval-%s-history.xlsx", a.ApprovalID), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

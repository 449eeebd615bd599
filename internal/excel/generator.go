package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nurpe/marketplace-ledger/internal/model"
)

const clientsSheet = "Best clients"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Generate(report model.ClientReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", clientsSheet); err != nil {
		return nil, err
	}
	g.writeClients(file, clientsSheet, report)

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeClients(file *excelize.File, sheet string, report model.ClientReport) {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Period start")
	set("B1", formatBound(report.Range.From))
	set("A2", "Period end")
	set("B2", formatEnd(report.Range.To))
	set("A3", "Limit")
	set("B3", report.Limit)

	tableRow := 5
	headers := []string{"Rank", "Client ID", "Client", "Paid"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, client := range report.Clients {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), i+1)
		set(fmt.Sprintf("B%d", row), client.UserID)
		set(fmt.Sprintf("C%d", row), client.FullName())
		set(fmt.Sprintf("D%d", row), client.TotalPaid.StringFixed(2))
	}

	_ = file.SetColWidth(sheet, "A", "B", 12)
	_ = file.SetColWidth(sheet, "C", "C", 40)
	_ = file.SetColWidth(sheet, "D", "D", 16)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// formatEnd prints the last day covered by an exclusive upper bound.
func formatEnd(t *time.Time) string {
	if t == nil {
		return ""
	}
	last := t.Add(-time.Nanosecond)
	return formatBound(&last)
}

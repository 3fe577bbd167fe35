package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{
	"Order Number",
	"Customer Name",
	"Address",
	"SKU Code",
	"MRP",
	"Requested Quantity",
	"Allocated Quantity",
	"Status",
	"Created At",
	"Updated At",
}

// ExportOrders renders the orders matching the filter as an xlsx workbook.
func (s *OrderService) ExportOrders(ctx context.Context, filter string, from, to *time.Time) ([]byte, error) {
	rangeFrom, rangeTo, err := exportRange(filter, from, to, time.Now())
	if err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrdersInRange(ctx, rangeFrom, rangeTo)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Orders"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
	}

	const timeLayout = "2006-01-02 15:04:05"
	for i, o := range orders {
		mrp, _ := o.MRP.Float64()
		row := []any{
			o.OrderNumber,
			o.CustomerName,
			o.Address,
			o.SKUCode,
			mrp,
			o.RequestedQty,
			o.AllocatedQty,
			o.Status,
			o.CreatedAt.Format(timeLayout),
			o.UpdatedAt.Format(timeLayout),
		}
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

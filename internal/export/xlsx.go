// Package export renders admin reports as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/tealeg/xlsx"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var productHeader = []string{"ID", "Name", "Category", "Price", "Compare At", "Featured", "In Stock", "Images", "Created"}

var orderHeader = []string{"ID", "User", "Customer", "Status", "Items", "Total", "Payment Ref", "Created"}

// WriteProducts writes one row per product to w as an .xlsx workbook.
func WriteProducts(w io.Writer, products []domain.Product) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	addHeader(sheet, productHeader)

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Category)
		addMoney(row, p.Price.InexactFloat64())
		if p.CompareAtPrice != nil {
			addMoney(row, p.CompareAtPrice.InexactFloat64())
		} else {
			row.AddCell()
		}
		row.AddCell().SetBool(p.Featured)
		row.AddCell().SetBool(p.InStock)
		row.AddCell().SetInt(len(p.Images))
		row.AddCell().SetString(p.CreatedAt.UTC().Format(time.RFC3339))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteOrders writes one row per order to w as an .xlsx workbook.
func WriteOrders(w io.Writer, orders []domain.Order) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Orders")
	if err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	addHeader(sheet, orderHeader)

	for _, o := range orders {
		row := sheet.AddRow()
		row.AddCell().SetString(o.ID)
		row.AddCell().SetString(o.UserID)
		row.AddCell().SetString(o.ShippingAddress.Name)
		row.AddCell().SetString(string(o.Status))
		row.AddCell().SetString(describeItems(o.Items))
		addMoney(row, o.Total.InexactFloat64())
		row.AddCell().SetString(o.PaymentIntentID)
		row.AddCell().SetString(o.CreatedAt.UTC().Format(time.RFC3339))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, names []string) {
	row := sheet.AddRow()
	for _, name := range names {
		cell := row.AddCell()
		cell.SetString(name)
		style := xlsx.NewStyle()
		style.Font.Bold = true
		cell.SetStyle(style)
	}
}

func addMoney(row *xlsx.Row, v float64) {
	row.AddCell().SetFloatWithFormat(v, "#,##0.00")
}

func describeItems(lines []domain.CartLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%dx %s", l.Quantity, l.Name))
	}
	return strings.Join(parts, ", ")
}

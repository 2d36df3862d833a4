package mirror

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/authcore/internal/models"
)

var header = []string{"firstName", "lastName", "email", "password", "role", "status", "createdAt", "updatedAt"}

var ErrNoEmailColumn = errors.New("mirror: workbook has no email column")

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

// ReadWorkbook reads records from the first sheet of an xlsx workbook. The
// first row is a header; column names match case-insensitively and ignore
// spaces and underscores, so "First Name" and "first_name" both map to
// firstName.
func ReadWorkbook(r io.Reader) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("mirror: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("mirror: read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[columnKey(name)] = i
	}
	if _, ok := cols["email"]; !ok {
		return nil, ErrNoEmailColumn
	}
	if _, ok := cols["password"]; !ok {
		if i, ok := cols["passwordhash"]; ok {
			cols["password"] = i
		}
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		rowNum := n + 2
		rec := Record{
			Row:       rowNum,
			FirstName: cell(row, "firstname"),
			LastName:  cell(row, "lastname"),
			Email:     cell(row, "email"),
			Password:  cell(row, "password"),
			Role:      cell(row, "role"),
			Status:    cell(row, "status"),
		}
		if rec.Email == "" && rec.Password == "" && rec.FirstName == "" && rec.LastName == "" {
			continue
		}
		if rec.CreatedAt, err = parseTime(cell(row, "createdat")); err != nil {
			return nil, fmt.Errorf("mirror: row %d: createdAt: %w", rowNum, err)
		}
		if rec.UpdatedAt, err = parseTime(cell(row, "updatedat")); err != nil {
			return nil, fmt.Errorf("mirror: row %d: updatedAt: %w", rowNum, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteWorkbook writes users to w in the layout ReadWorkbook accepts. The
// password column carries the stored hash.
func WriteWorkbook(w io.Writer, users []models.User) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("mirror: write header: %w", err)
	}

	for i, u := range users {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			u.FirstName,
			u.LastName,
			u.Email,
			u.PasswordHash,
			string(u.Role),
			string(u.Status),
			u.CreatedAt.UTC().Format(time.RFC3339Nano),
			u.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("mirror: write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("mirror: write workbook: %w", err)
	}
	return nil
}

func columnKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(name)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", s)
}

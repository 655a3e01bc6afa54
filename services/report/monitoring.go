// Package report renders portal read models as spreadsheets.
package report

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/siat-edu/siat/core/portal"
)

const (
	monitoringSheet = "Sheet1" // default sheet of a new workbook
	dateLayout      = "2006-01-02 15:04"

	// ContentTypeXLSX is the media type of the generated workbooks.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var monitoringHeader = []interface{}{
	"Student number", "Student", "Course", "Subject code", "Subject", "Progress (%)", "Grade", "Final score", "Updated at",
}

// WriteMonitoring writes the monitoring rows as an xlsx workbook, one row per subject enrollment.
func WriteMonitoring(w io.Writer, semester string, rows []portal.MonitoringRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetCellValue(monitoringSheet, "A1", "Semester: "+semester); err != nil {
		return errors.Wrap(err, "writing title")
	}
	if err := f.SetSheetRow(monitoringSheet, "A2", &monitoringHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	if err = f.SetCellStyle(monitoringSheet, "A1", "I2", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}

	for i, r := range rows {
		var finalScore interface{}
		if r.FinalScore.Valid {
			finalScore = r.FinalScore.Int
		}
		values := []interface{}{
			r.StudentNumber, r.StudentName, r.CourseTitle, r.SubjectCode, r.SubjectTitle,
			r.Progress, r.Grade, finalScore, r.UpdatedAt.UTC().Format(dateLayout),
		}
		if err = f.SetSheetRow(monitoringSheet, "A"+strconv.Itoa(i+3), &values); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
	}

	if err = f.SetColWidth(monitoringSheet, "A", "I", 18); err != nil {
		return errors.Wrap(err, "sizing columns")
	}
	_, err = f.WriteTo(w)
	return errors.Wrap(err, "writing workbook")
}

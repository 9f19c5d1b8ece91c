// Package report renders stocktake results to XLSX workbooks and reads
// master catalog lists from XLSX files.
package report

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/kandelab/stocktake/internal/catalog"
	"github.com/kandelab/stocktake/internal/model"
	"github.com/kandelab/stocktake/internal/reconcile"
)

// Line is one tag in the rendered report.
type Line struct {
	Tag        string
	ItemID     string
	MasterID   string
	MasterName string
	Status     string
}

// Report is a stocktake result ready to be rendered.
type Report struct {
	Scope       model.TargetScope
	GeneratedAt time.Time

	Confirmed  []Line
	Pending    []Line
	Missing    []Line
	Unexpected []Line
}

// Build assembles a report from a classification result, resolving item and
// master metadata from the catalog view.
func Build(res reconcile.Result, view *catalog.View) *Report {
	r := &Report{
		Scope:       res.Scope,
		GeneratedAt: time.Now(),
	}
	r.Confirmed = lines(res.MatchedConfirmed, "confirmed", view)
	r.Pending = lines(res.MatchedPending, "pending", view)
	r.Missing = lines(res.Missing, "missing", view)
	r.Unexpected = lines(res.Unexpected, "unexpected", view)
	return r
}

func lines(tags []string, status string, view *catalog.View) []Line {
	out := make([]Line, 0, len(tags))
	for _, tag := range tags {
		ln := Line{Tag: tag, Status: status}
		if item, ok := view.Item(tag); ok {
			ln.ItemID = item.ID
			ln.MasterID = item.MasterID
		}
		if m, ok := view.MasterForTag(tag); ok {
			ln.MasterName = m.Name
		}
		out = append(out, ln)
	}
	return out
}

// Total returns the number of classified tags in the report.
func (r *Report) Total() int {
	return len(r.Confirmed) + len(r.Pending) + len(r.Missing) + len(r.Unexpected)
}

// Save writes the report as an XLSX workbook: a summary sheet followed by
// one sheet per classification.
func (r *Report) Save(path string) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addRow(summary, "Scope", string(r.Scope))
	addRow(summary, "Generated", r.GeneratedAt.Format(time.RFC3339))
	addRow(summary, "Confirmed", strconv.Itoa(len(r.Confirmed)))
	addRow(summary, "Pending", strconv.Itoa(len(r.Pending)))
	addRow(summary, "Missing", strconv.Itoa(len(r.Missing)))
	addRow(summary, "Unexpected", strconv.Itoa(len(r.Unexpected)))

	sheets := []struct {
		name  string
		lines []Line
	}{
		{"Confirmed", r.Confirmed},
		{"Pending", r.Pending},
		{"Missing", r.Missing},
		{"Unexpected", r.Unexpected},
	}
	for _, sp := range sheets {
		sheet, err := f.AddSheet(sp.name)
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", sp.name)
		}
		addRow(sheet, "Tag", "Item ID", "Master ID", "Master Name", "Status")
		for _, ln := range sp.lines {
			addRow(sheet, ln.Tag, ln.ItemID, ln.MasterID, ln.MasterName, ln.Status)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

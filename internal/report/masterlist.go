package report

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/kandelab/stocktake/internal/model"
)

// Master list column order: Name | Notes | Extra | Product Code.
const masterListColumns = 4

// ReadMasterList reads catalog entries to register from the first sheet of
// an XLSX file. Rows that fail validation are skipped and reported as
// warnings; the file fails as a whole only when it cannot be opened or has
// no sheets. A leading header row (first cell "name") is ignored.
func ReadMasterList(path string, scope model.TargetScope) ([]model.MasterParams, []model.RowWarning, error) {
	if !scope.Valid() {
		return nil, nil, eris.Errorf("report: invalid scope %q", string(scope))
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "report: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.Errorf("report: %s has no sheets", path)
	}
	sheet := f.Sheets[0]

	var (
		params   []model.MasterParams
		warnings []model.RowWarning
	)
	for i, row := range sheet.Rows {
		cells := make([]string, masterListColumns)
		for j := 0; j < masterListColumns && j < len(row.Cells); j++ {
			cells[j] = strings.TrimSpace(row.Cells[j].String())
		}

		if i == 0 && strings.EqualFold(cells[0], "name") {
			continue
		}
		if cells[0] == "" && cells[1] == "" && cells[2] == "" && cells[3] == "" {
			continue // blank row
		}

		p := model.MasterParams{
			Name:        cells[0],
			Notes:       cells[1],
			Extra:       cells[2],
			ProductCode: cells[3],
			Scope:       scope,
		}
		if err := p.Validate(); err != nil {
			warnings = append(warnings, model.RowWarning{Index: i, Reason: err.Error()})
			continue
		}
		params = append(params, p)
	}

	zap.L().Info("master list read",
		zap.String("path", path),
		zap.Int("entries", len(params)),
		zap.Int("skipped", len(warnings)),
	)
	return params, warnings, nil
}

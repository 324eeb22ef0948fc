package tariff

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/numeric"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/xuri/excelize/v2"
)

// Extract reads the tariff parameters for the targeted months out of an ARERA
// workbook. Only sheets whose name resolves to a targeted month are read; a
// targeted month without a sheet is absent from the result.
//
// A missing label, header or column only leaves keys out of that month's
// set. The only error is a workbook that cannot be opened.
func Extract(ctx context.Context, workbook []byte, targets []types.PeriodKey, profile types.ConsumerProfile) (map[types.PeriodKey]types.TariffParameterSet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(workbook))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	label, ok := houseTypeLabels[profile.HouseType]
	if !ok {
		return nil, fmt.Errorf("no workbook label for house type %q", profile.HouseType)
	}

	out := make(map[types.PeriodKey]types.TariffParameterSet)
	for _, sheet := range f.GetSheetList() {
		period, ok := sheetPeriod(sheet)
		if !ok || !slices.Contains(targets, period) {
			continue
		}
		if _, ok := out[period]; ok {
			log.Ctx(ctx).DebugContext(ctx, "ignoring duplicate sheet for period", slog.String("sheet", sheet), slog.String("period", period.String()))
			continue
		}

		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to read sheet", slog.String("sheet", sheet), slog.Any("error", err))
			out[period] = types.TariffParameterSet{}
			continue
		}

		params := extractSheet(ctx, rows, label)
		log.Ctx(ctx).DebugContext(ctx, "extracted sheet", slog.String("sheet", sheet), slog.String("period", period.String()), slog.Any("params", params))
		out[period] = params
	}
	return out, nil
}

func cell(rows [][]string, r, c int) string {
	if r < 0 || r >= len(rows) || c < 0 || c >= len(rows[r]) {
		return ""
	}
	return rows[r][c]
}

// findLabelRow returns the first row whose label column contains label,
// ignoring case and whitespace runs.
func findLabelRow(rows [][]string, label string) (int, bool) {
	label = normalizeText(label)
	for r := range rows {
		if text := normalizeText(cell(rows, r, labelColumn)); strings.Contains(text, label) {
			return r, true
		}
	}
	return 0, false
}

// findColumns maps each role to the first header column matching it.
func findColumns(header []string) map[columnRole]int {
	cols := make(map[columnRole]int)
	for c, text := range header {
		for _, role := range matchHeader(text) {
			if _, ok := cols[role]; !ok {
				cols[role] = c
			}
		}
	}
	return cols
}

func extractSheet(ctx context.Context, rows [][]string, label string) types.TariffParameterSet {
	params := types.TariffParameterSet{}

	labelRow, ok := findLabelRow(rows, label)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "house type label not found in sheet", slog.String("label", label))
		return params
	}

	headerRow := labelRow + 1
	var header []string
	if headerRow < len(rows) {
		header = rows[headerRow]
	}
	cols := findColumns(header)
	if _, ok := cols[roleNetworkServices]; !ok {
		log.Ctx(ctx).WarnContext(ctx, "network services column not found", slog.Int("row", headerRow+1))
	}

	for _, rule := range valueRules {
		c, ok := cols[rule.role]
		if !ok {
			continue
		}
		raw := cell(rows, headerRow+rule.offset, c)
		v, ok := numeric.CoerceString(raw)
		if !ok {
			log.Ctx(ctx).DebugContext(
				ctx,
				"non numeric tariff cell",
				slog.String("key", string(rule.key)),
				slog.String("role", rule.role.String()),
				slog.Int("row", headerRow+rule.offset+1),
				slog.Int("column", c+1),
				slog.String("raw", raw),
			)
			continue
		}
		params.Set(rule.key, v/rule.divisor)
	}
	return params
}

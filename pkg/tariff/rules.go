package tariff

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bolletta/bolletta/pkg/types"
)

// The ARERA workbook layout drifts between releases. Everything the extractor
// knows about it lives in the tables below so a layout change is a table
// edit.

type monthToken struct {
	token string
	month time.Month
}

// monthTokens are matched in order as substrings of the lowercased sheet
// name; the first hit wins.
var monthTokens = []monthToken{
	{"gen", time.January}, {"gennaio", time.January},
	{"feb", time.February}, {"febbraio", time.February},
	{"mar", time.March}, {"marzo", time.March},
	{"apr", time.April}, {"aprile", time.April},
	{"mag", time.May}, {"maggio", time.May},
	{"giu", time.June}, {"giugno", time.June},
	{"lug", time.July}, {"luglio", time.July},
	{"ago", time.August}, {"agosto", time.August},
	{"set", time.September}, {"settembre", time.September},
	{"ott", time.October}, {"ottobre", time.October},
	{"nov", time.November}, {"novembre", time.November},
	{"dic", time.December}, {"dicembre", time.December},
}

// houseTypeLabels are searched for, case-insensitively, in the second column.
var houseTypeLabels = map[types.HouseType]string{
	types.HouseTypeResidential:    "abitazioni di residenza anagrafica",
	types.HouseTypeNotResidential: "abitazioni diverse dalla residenza anagrafica",
}

// labelColumn is the zero-based index of the column holding the house type
// labels.
const labelColumn = 1

type columnRole int

const (
	roleASOS columnRole = iota
	roleARIM
	roleNetworkServices
)

func (r columnRole) String() string {
	switch r {
	case roleASOS:
		return "asos"
	case roleARIM:
		return "arim"
	case roleNetworkServices:
		return "servizi di rete"
	default:
		return "unknown"
	}
}

// headerRule assigns role to a header cell containing every substring in all.
type headerRule struct {
	role columnRole
	all  []string
}

var headerRules = []headerRule{
	{role: roleASOS, all: []string{"asos"}},
	{role: roleARIM, all: []string{"arim"}},
	{role: roleNetworkServices, all: []string{"servizi", "rete"}},
}

// valueRule reads key from the column with role, offset rows below the
// header row. Annual amounts are turned into monthly ones with divisor.
type valueRule struct {
	role    columnRole
	offset  int
	key     types.ParamKey
	divisor float64
}

var valueRules = []valueRule{
	{role: roleASOS, offset: 3, key: types.ParamSystemChargeASOS, divisor: 1},
	{role: roleARIM, offset: 3, key: types.ParamSystemChargeARIM, divisor: 1},
	{role: roleNetworkServices, offset: 3, key: types.ParamEnergyQuota, divisor: 1},
	{role: roleNetworkServices, offset: 4, key: types.ParamFixedTransportQuota, divisor: 12},
	{role: roleNetworkServices, offset: 5, key: types.ParamPowerQuota, divisor: 12},
}

// normalizeText collapses whitespace, including the newlines found in
// wrapped header cells, and lowercases.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// matchHeader returns the roles whose rule matches the header text.
func matchHeader(text string) []columnRole {
	text = normalizeText(text)
	if text == "" {
		return nil
	}
	var roles []columnRole
	for _, rule := range headerRules {
		matched := true
		for _, sub := range rule.all {
			if !strings.Contains(text, sub) {
				matched = false
				break
			}
		}
		if matched {
			roles = append(roles, rule.role)
		}
	}
	return roles
}

// sheetPeriod derives the month covered by a sheet from its name, e.g.
// "Gennaio 2024" or "feb-2024".
func sheetPeriod(name string) (types.PeriodKey, bool) {
	lower := strings.ToLower(name)

	year := 0
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) != 4 {
			continue
		}
		if y, err := strconv.Atoi(tok); err == nil && y > 0 {
			year = y
			break
		}
	}
	if year == 0 {
		return types.PeriodKey{}, false
	}

	for _, m := range monthTokens {
		if strings.Contains(lower, m.token) {
			return types.MonthPeriod(year, m.month), true
		}
	}
	return types.PeriodKey{}, false
}

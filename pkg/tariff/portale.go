package tariff

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bolletta/bolletta/pkg/common"
	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/metrics"
	"github.com/bolletta/bolletta/pkg/numeric"
	"github.com/bolletta/bolletta/pkg/types"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when a source answers with anything but 200.
	ErrNotFound = errors.New("tariff file not found")

	errMalformed = errors.New("malformed parameters file")
)

const maxCSVSize = 4 << 20

// fieldMapping maps a parameter to the Portale Offerte field it is read from.
type fieldMapping struct {
	key   types.ParamKey
	field string
}

var (
	residentialLowPowerFields = []fieldMapping{
		{types.ParamSystemChargeASOS, "asos_dr"},
		{types.ParamSystemChargeARIM, "arim_dr"},
		{types.ParamExciseTax, "acc_c_r_l"},
		{types.ParamVATRate, "iva_c"},
		{types.ParamNetworkLossPercentage, "lambda"},
	}
	residentialHighPowerFields = []fieldMapping{
		{types.ParamSystemChargeASOS, "asos_dr"},
		{types.ParamSystemChargeARIM, "arim_dr"},
		{types.ParamExciseTax, "acc_c_r_h"},
		{types.ParamVATRate, "iva_c"},
		{types.ParamNetworkLossPercentage, "lambda"},
	}
	notResidentialFields = []fieldMapping{
		{types.ParamSystemChargeASOS, "asos_dnr_v"},
		{types.ParamSystemChargeARIM, "arim_dnr_v"},
		{types.ParamExciseTax, "acc_c_nr"},
		{types.ParamVATRate, "iva_c"},
		{types.ParamNetworkLossPercentage, "lambda"},
	}
)

func fieldsFor(profile types.ConsumerProfile) []fieldMapping {
	switch {
	case profile.HouseType == types.HouseTypeResidential && profile.HighPower():
		return residentialHighPowerFields
	case profile.HouseType == types.HouseTypeResidential:
		return residentialLowPowerFields
	default:
		return notResidentialFields
	}
}

// alternateFields lists the names tried when field is missing: the "_f"
// suffixed variant, then "_v" replaced by "_f".
func alternateFields(field string) []string {
	alts := []string{field + "_f"}
	if strings.Contains(field, "_v") {
		alts = append(alts, strings.ReplaceAll(field, "_v", "_f"))
	}
	return alts
}

// PortaleClient fetches the daily parameter files published by Portale
// Offerte, walking back one day at a time until a file exists.
type PortaleClient struct {
	baseURL     string
	maxLookback int
	client      *http.Client
	cache       *Cache
	now         func() time.Time

	// group serializes probes per date.
	group singleflight.Group
}

// CSVResult holds the sets found for the current and previous target
// dates. A zero date means the search ran out of attempts.
type CSVResult struct {
	Current      types.TariffParameterSet
	Previous     types.TariffParameterSet
	CurrentDate  time.Time
	PreviousDate time.Time
}

// NewPortaleClient returns a client probing at most maxLookback days per
// target date.
func NewPortaleClient(baseURL string, maxLookback int, cache *Cache) *PortaleClient {
	return &PortaleClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		maxLookback: maxLookback,
		client:      common.HTTPClient(30 * time.Second),
		cache:       cache,
		now:         time.Now,
	}
}

// fileURL builds .../{year}_{month}/PO_Parametri_E_{yyyymmdd}.csv. The month
// directory has no leading zero.
func (c *PortaleClient) fileURL(d time.Time) string {
	return fmt.Sprintf("%s/%d_%d/PO_Parametri_E_%s.csv", c.baseURL, d.Year(), int(d.Month()), d.Format("20060102"))
}

// FetchCurrentAndPrevious searches back from today and from the last day of
// the previous month. A search that finds nothing yields an empty set, not an
// error; only a cancelled context is returned as an error.
func (c *PortaleClient) FetchCurrentAndPrevious(ctx context.Context, profile types.ConsumerProfile) (CSVResult, error) {
	ctx = log.WithSource(ctx, string(SourcePortale))
	today := c.now().In(romeLocation)

	var res CSVResult
	var err error
	res.Current, res.CurrentDate, _, err = c.FetchLatest(ctx, today, profile)
	if err != nil {
		return CSVResult{}, err
	}
	res.Previous, res.PreviousDate, _, err = c.FetchLatest(ctx, LastDayOfPreviousMonth(today), profile)
	if err != nil {
		return CSVResult{}, err
	}
	return res, nil
}

// FetchLatest returns the parameters of the newest file published on or
// before start, the date it was found for and the number of downloads made.
func (c *PortaleClient) FetchLatest(ctx context.Context, start time.Time, profile types.ConsumerProfile) (types.TariffParameterSet, time.Time, int, error) {
	var attempts int
	for d := range BackwardDays(start, c.maxLookback) {
		if err := ctx.Err(); err != nil {
			return nil, time.Time{}, attempts, err
		}

		period := types.DatePeriod(d)
		if params, ok := c.cache.Get(ctx, SourcePortale, profile, period); ok {
			log.Ctx(ctx).DebugContext(ctx, "portale file cached", slog.String("date", period.String()))
			return params, d, attempts, nil
		}

		attempts++
		params, err := c.probe(ctx, d, profile)
		switch {
		case err == nil:
			log.Ctx(ctx).InfoContext(ctx, "found portale parameters file", slog.String("date", period.String()), slog.Int("attempts", attempts))
			c.cache.Put(ctx, SourcePortale, profile, period, params)
			return params, d, attempts, nil
		case errors.Is(err, errMalformed):
			log.Ctx(ctx).WarnContext(ctx, "unusable portale parameters file", slog.String("date", period.String()), slog.Any("error", err))
			return types.TariffParameterSet{}, d, attempts, nil
		default:
			log.Ctx(ctx).DebugContext(ctx, "portale file not available", slog.String("date", period.String()), slog.Any("error", err))
		}
	}

	log.Ctx(ctx).WarnContext(
		ctx,
		"no portale file found within lookback",
		slog.Int("days", c.maxLookback),
		slog.Time("start", start),
	)
	return types.TariffParameterSet{}, time.Time{}, attempts, nil
}

func (c *PortaleClient) probe(ctx context.Context, d time.Time, profile types.ConsumerProfile) (types.TariffParameterSet, error) {
	key := CacheKey(SourcePortale, profile, types.DatePeriod(d))
	v, err, _ := c.group.Do(key, func() (any, error) {
		b, err := c.download(ctx, d)
		if err != nil {
			return nil, err
		}
		entries, err := parseParametersCSV(b)
		if err != nil {
			return nil, err
		}
		return mapFields(ctx, entries, fieldsFor(profile)), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.TariffParameterSet).Clone(), nil
}

func (c *PortaleClient) download(ctx context.Context, d time.Time) ([]byte, error) {
	url := c.fileURL(d)
	log.Ctx(ctx).DebugContext(ctx, "trying portale url", slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(string(SourcePortale), metrics.ResultError)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveFetch(string(SourcePortale), metrics.ResultMiss)
		return nil, fmt.Errorf("portale status %d: %w", resp.StatusCode, ErrNotFound)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxCSVSize))
	if err != nil {
		metrics.ObserveFetch(string(SourcePortale), metrics.ResultError)
		return nil, err
	}
	metrics.ObserveFetch(string(SourcePortale), metrics.ResultSuccess)
	return b, nil
}

// parseParametersCSV reads the nome_parametro/valore pairs. Values that are
// not numeric are kept out of the result.
func parseParametersCSV(b []byte) (map[string]float64, error) {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(b))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	firstLine, _, _ := bytes.Cut(b, []byte("\n"))
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %v: %w", err, errMalformed)
	}
	nameCol, valueCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "nome_parametro":
			nameCol = i
		case "valore":
			valueCol = i
		}
	}
	if nameCol < 0 || valueCol < 0 {
		return nil, fmt.Errorf("missing nome_parametro or valore column in %q: %w", header, errMalformed)
	}

	entries := make(map[string]float64)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %v: %w", err, errMalformed)
		}
		if nameCol >= len(record) || valueCol >= len(record) {
			continue
		}
		name := strings.TrimSpace(record[nameCol])
		if name == "" {
			continue
		}
		if v, ok := numeric.CoerceString(record[valueCol]); ok {
			entries[name] = v
		}
	}
	return entries, nil
}

func mapFields(ctx context.Context, entries map[string]float64, fields []fieldMapping) types.TariffParameterSet {
	params := types.TariffParameterSet{}
	for _, m := range fields {
		v, ok := entries[m.field]
		if !ok {
			for _, alt := range alternateFields(m.field) {
				if v, ok = entries[alt]; ok {
					break
				}
			}
		}
		if !ok {
			log.Ctx(ctx).DebugContext(ctx, "portale field not found", slog.String("field", m.field), slog.String("key", string(m.key)))
			continue
		}
		params.Set(m.key, v)
	}
	return params
}

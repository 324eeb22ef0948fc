package tariff

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bolletta/bolletta/pkg/common"
	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/metrics"
	"github.com/bolletta/bolletta/pkg/types"
	"golang.org/x/sync/singleflight"
)

// maxWorkbookSize bounds the download; the yearly workbooks are well under it.
const maxWorkbookSize = 32 << 20

// AreraClient downloads the yearly ARERA workbook and extracts the monthly
// tariff parameters from it.
type AreraClient struct {
	baseURL string
	client  *http.Client
	cache   *Cache
	now     func() time.Time

	// group serializes downloads per workbook year.
	group singleflight.Group
}

// AreraResult holds the sets for mp and mpp. A set is empty when the
// workbook has no usable sheet for the period.
type AreraResult struct {
	Current        types.TariffParameterSet
	Previous       types.TariffParameterSet
	CurrentPeriod  types.PeriodKey
	PreviousPeriod types.PeriodKey
}

// NewAreraClient returns a client reading workbooks from baseURL.
func NewAreraClient(baseURL string, cache *Cache) *AreraClient {
	return &AreraClient{
		baseURL: baseURL,
		client:  common.HTTPClient(2 * time.Minute),
		cache:   cache,
		now:     time.Now,
	}
}

func (c *AreraClient) workbookURL(year int) string {
	return c.baseURL + "E" + strconv.Itoa(year) + "_stg_domesticiNonVulnerabili.xlsx"
}

// FetchCurrentAndPrevious resolves mp and mpp for profile relative to today.
// A workbook that cannot be downloaded leaves both sets empty; only a
// cancelled context is returned as an error.
func (c *AreraClient) FetchCurrentAndPrevious(ctx context.Context, profile types.ConsumerProfile) (AreraResult, error) {
	ctx = log.WithSource(ctx, string(SourceArera))
	mp, mpp := BillingPeriods(c.now().In(romeLocation))

	sets, err := c.FetchPeriods(ctx, profile, []types.PeriodKey{mp, mpp})
	if err != nil {
		if ctx.Err() != nil {
			return AreraResult{}, ctx.Err()
		}
		log.Ctx(ctx).WarnContext(ctx, "arera workbook unavailable", slog.String("period", mp.String()), slog.Any("error", err))
	}

	res := AreraResult{
		Current:        sets[mp],
		Previous:       sets[mpp],
		CurrentPeriod:  mp,
		PreviousPeriod: mpp,
	}
	if res.Current == nil {
		res.Current = types.TariffParameterSet{}
	}
	if res.Previous == nil {
		res.Previous = types.TariffParameterSet{}
	}
	if len(res.Current) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no arera parameters for mp", slog.String("period", mp.String()))
	}
	if len(res.Previous) == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no arera parameters for mpp", slog.String("period", mpp.String()))
	}
	return res, nil
}

// FetchPeriods returns the parameter sets for periods. Cached periods are not
// downloaded again; the others are grouped by year so each yearly workbook
// is fetched at most once. Periods the workbook does not cover are absent.
func (c *AreraClient) FetchPeriods(ctx context.Context, profile types.ConsumerProfile, periods []types.PeriodKey) (map[types.PeriodKey]types.TariffParameterSet, error) {
	out := make(map[types.PeriodKey]types.TariffParameterSet, len(periods))
	missing := make(map[int][]types.PeriodKey)
	var years []int
	for _, p := range periods {
		if params, ok := c.cache.Get(ctx, SourceArera, profile, p); ok {
			log.Ctx(ctx).DebugContext(ctx, "arera period cached", slog.String("period", p.String()))
			out[p] = params
			continue
		}
		if _, ok := missing[p.Year]; !ok {
			years = append(years, p.Year)
		}
		missing[p.Year] = append(missing[p.Year], p)
	}

	for _, year := range years {
		workbook, err := c.getWorkbook(ctx, year)
		if err != nil {
			return nil, err
		}
		sets, err := Extract(ctx, workbook, missing[year], profile)
		if err != nil {
			return nil, fmt.Errorf("failed to extract arera %d workbook: %w", year, err)
		}
		for p, params := range sets {
			out[p] = params
			// an empty sheet may be completed in a later release of the file
			if len(params) > 0 {
				c.cache.Put(ctx, SourceArera, profile, p, params)
			}
		}
	}
	return out, nil
}

func (c *AreraClient) getWorkbook(ctx context.Context, year int) ([]byte, error) {
	v, err, _ := c.group.Do(strconv.Itoa(year), func() (any, error) {
		return c.downloadWorkbook(ctx, year)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *AreraClient) downloadWorkbook(ctx context.Context, year int) ([]byte, error) {
	url := c.workbookURL(year)
	log.Ctx(ctx).DebugContext(ctx, "downloading arera workbook", slog.Int("year", year), slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(string(SourceArera), metrics.ResultError)
		return nil, fmt.Errorf("failed to download arera workbook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveFetch(string(SourceArera), metrics.ResultError)
		return nil, fmt.Errorf("arera workbook %d status: %d: %w", year, resp.StatusCode, ErrNotFound)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkbookSize))
	if err != nil {
		metrics.ObserveFetch(string(SourceArera), metrics.ResultError)
		return nil, fmt.Errorf("failed to read arera workbook: %w", err)
	}
	metrics.ObserveFetch(string(SourceArera), metrics.ResultSuccess)
	return b, nil
}

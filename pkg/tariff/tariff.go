// Package tariff downloads and parses the regulated tariff parameters: the
// yearly ARERA workbook and, as a fallback, the daily Portale Offerte CSV
// files.
package tariff

import (
	"fmt"
	"net/url"

	"github.com/bolletta/bolletta/pkg/storage"
	"github.com/levenlabs/go-lflag"
)

// Sources bundles the configured tariff clients sharing one cache.
type Sources struct {
	Arera   *AreraClient
	Portale *PortaleClient
}

// Configured sets up both sources from flags on top of db.
func Configured(db storage.Database) *Sources {
	areraURL := lflag.String("arera-base-url", "https://www.arera.it/fileadmin/area_operatori/prezzi_e_tariffe/", "Base URL of the ARERA yearly tariff workbooks")
	portaleURL := lflag.String("portale-base-url", "https://www.ilportaleofferte.it/portaleOfferte/resources/opendata/csv/parametri", "Base URL of the Portale Offerte parameter files")
	lookback := 60
	lflag.JSON(&lookback, "csv-max-lookback-days", lookback, "How many days to walk back looking for a Portale Offerte file")

	s := &Sources{}

	lflag.Do(func() {
		for name, u := range map[string]string{"arera-base-url": *areraURL, "portale-base-url": *portaleURL} {
			if _, err := url.ParseRequestURI(u); err != nil {
				panic(fmt.Sprintf("invalid %s: %v", name, err))
			}
		}
		if lookback < 1 {
			panic(fmt.Sprintf("csv-max-lookback-days must be positive: %d", lookback))
		}
		cache := NewCache(db)
		s.Arera = NewAreraClient(*areraURL, cache)
		s.Portale = NewPortaleClient(*portaleURL, lookback, cache)
	})

	return s
}

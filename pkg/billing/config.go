package billing

import (
	"fmt"
	"os"

	"github.com/bolletta/bolletta/pkg/types"
	"gopkg.in/yaml.v3"
)

// DefaultConfig is used when no configuration file is given: a residential
// 3 kW supply billed monthly at the live price, with 10% VAT and 10% network
// losses when the sources do not publish them.
func DefaultConfig() types.BillingConfig {
	vat := 10.0
	loss := 10.0
	return types.BillingConfig{
		Profile: types.ConsumerProfile{
			HouseType:         types.HouseTypeResidential,
			ContractedPowerKW: 3,
		},
		VATPercent:         &vat,
		NetworkLossPercent: &loss,
		BillingMode:        types.BillingModeMonthly,
		PricingMode:        types.PricingModeLive,
	}
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(b []byte) (types.BillingConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return types.BillingConfig{}, fmt.Errorf("failed to decode billing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.BillingConfig{}, fmt.Errorf("invalid billing config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (types.BillingConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return types.BillingConfig{}, fmt.Errorf("failed to read billing config: %w", err)
	}
	return ParseConfig(b)
}

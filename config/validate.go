package config

import (
	"fmt"
	"strings"

	"dogxsale/crypto"
)

const maxLevels = 7

// ValidateConfig checks the structural invariants of the loaded configuration.
// Sale parameters are only validated when AutoCreate is set; otherwise sales
// are created over RPC and validated by the engine.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if !cfg.Sale.AutoCreate {
		return nil
	}
	return validateSale(cfg.Sale)
}

func validateSale(sale Sale) error {
	if _, err := crypto.DecodeAddress(strings.TrimSpace(sale.Admin)); err != nil {
		return fmt.Errorf("sale: invalid admin address: %w", err)
	}
	if len(sale.Levels) == 0 || len(sale.Levels) > maxLevels {
		return fmt.Errorf("sale: levels must contain between 1 and %d entries", maxLevels)
	}
	var prev uint64
	for i, level := range sale.Levels {
		if level.UnitPrice == 0 {
			return fmt.Errorf("sale: level %d has zero unit price", i)
		}
		if level.UnitPrice < prev {
			return fmt.Errorf("sale: level %d price below previous tier", i)
		}
		prev = level.UnitPrice
	}
	if sale.PriceScale == 0 {
		return fmt.Errorf("sale: price scale must be non-zero")
	}
	if sale.SoftCapAmount > sale.HardCapAmount {
		return fmt.Errorf("sale: soft cap exceeds hard cap")
	}
	if sale.EndTime == 0 || sale.EndTime <= sale.StartTime {
		return fmt.Errorf("sale: end time must be after start time")
	}
	return nil
}

package scoring

import (
	"fmt"
)

// Config is the scorer's risk surface. It is replaced as a whole through
// Scorer.Reconfigure.
type Config struct {
	// Hard safety limits
	MinLiquidity           float64 // base-asset depth floor
	MaxHolderConcentration float64 // percent
	MaxTaxPct              float64

	// Soft flag thresholds
	HighTaxPct                float64
	HighConcentrationPct      float64
	ManipulationFlagThreshold float64

	// Sizing and economics
	SandwichImpactThreshold float64 // victim impact ratio that makes a buy sandwichable
	MaxTradeSize            float64
	MaxTradeFraction        float64 // of liquidity depth
	SnipeExpectedReturn     float64
	CaptureRatio            float64 // share of a victim's price move a one-sided entry keeps
	GasUnitsPerTx           uint64
	MinNetProfit            float64

	// Confidence
	MarginWeight       float64
	PredictionWeight   float64
	NoPredictionFactor float64

	// Urgency
	ArbCompetitionThreshold int
}

// Validate checks the risk surface.
func (c *Config) Validate() error {
	if c.MinLiquidity < 0 {
		return fmt.Errorf("min liquidity must be non-negative, got %f", c.MinLiquidity)
	}

	if c.MaxHolderConcentration <= 0 || c.MaxHolderConcentration > 100 {
		return fmt.Errorf("max holder concentration must be in (0, 100], got %f", c.MaxHolderConcentration)
	}

	if c.MaxTaxPct < 0 || c.MaxTaxPct > 100 {
		return fmt.Errorf("max tax must be in [0, 100], got %f", c.MaxTaxPct)
	}

	if c.HighTaxPct > c.MaxTaxPct {
		return fmt.Errorf("high tax flag %f above tax ceiling %f", c.HighTaxPct, c.MaxTaxPct)
	}

	if c.HighConcentrationPct > c.MaxHolderConcentration {
		return fmt.Errorf("high concentration flag %f above ceiling %f", c.HighConcentrationPct, c.MaxHolderConcentration)
	}

	if c.ManipulationFlagThreshold <= 0 || c.ManipulationFlagThreshold > 1 {
		return fmt.Errorf("manipulation flag threshold must be in (0, 1], got %f", c.ManipulationFlagThreshold)
	}

	if c.SandwichImpactThreshold <= 0 || c.SandwichImpactThreshold >= 1 {
		return fmt.Errorf("sandwich impact threshold must be in (0, 1), got %f", c.SandwichImpactThreshold)
	}

	if c.MaxTradeSize <= 0 {
		return fmt.Errorf("max trade size must be positive, got %f", c.MaxTradeSize)
	}

	if c.MaxTradeFraction <= 0 || c.MaxTradeFraction > 1 {
		return fmt.Errorf("max trade fraction must be in (0, 1], got %f", c.MaxTradeFraction)
	}

	if c.CaptureRatio <= 0 || c.CaptureRatio > 1 {
		return fmt.Errorf("capture ratio must be in (0, 1], got %f", c.CaptureRatio)
	}

	if c.SnipeExpectedReturn < 0 {
		return fmt.Errorf("snipe expected return must be non-negative, got %f", c.SnipeExpectedReturn)
	}

	if c.GasUnitsPerTx == 0 {
		return fmt.Errorf("gas units per tx must be positive")
	}

	if c.MarginWeight < 0 || c.PredictionWeight < 0 || c.MarginWeight+c.PredictionWeight == 0 {
		return fmt.Errorf("confidence weights must be non-negative with a positive sum")
	}

	if c.NoPredictionFactor < 0 || c.NoPredictionFactor > 1 {
		return fmt.Errorf("no-prediction factor must be in [0, 1], got %f", c.NoPredictionFactor)
	}

	return nil
}

package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ThresholdConfig parameterises count predicates: the rule fires when the
// counted value is strictly greater than Threshold.
type ThresholdConfig struct {
	Threshold float64 `json:"threshold"`
	// Days is the window the count covers. The fact builder owns the window,
	// so ValidateConfig rejects any value other than the configured one.
	Days int `json:"days"`
}

// RatioConfig parameterises ratio predicates.
type RatioConfig struct {
	Threshold float64 `json:"threshold"`
}

// ExpressionConfig lets any rule add a CEL condition over the facts.
type ExpressionConfig struct {
	Expression string `json:"expression"`
}

// Defaults for the parametric predicates.
var (
	DefaultHighRiskDocumentConfig = ThresholdConfig{Threshold: 3, Days: domain.DefaultLookbackDays}
	DefaultDuplicateInvoiceConfig = ThresholdConfig{Threshold: 0, Days: domain.DefaultLookbackDays}
	DefaultHighRiskRatioConfig    = RatioConfig{Threshold: 0.3}
)

// configFields splits a raw config into its top-level fields. Anything that
// is not a JSON object yields an empty map.
func configFields(raw json.RawMessage) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields
	}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return map[string]json.RawMessage{}
	}
	return fields
}

// numberField decodes a finite number, reporting whether it was usable.
func numberField(fields map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseThresholdConfig reads a ThresholdConfig, keeping the default for any
// field that is absent, of the wrong type or negative.
func ParseThresholdConfig(raw json.RawMessage, def ThresholdConfig) ThresholdConfig {
	cfg := def
	fields := configFields(raw)
	if v, ok := numberField(fields, "threshold"); ok && v >= 0 {
		cfg.Threshold = v
	}
	if v, ok := numberField(fields, "days"); ok && v >= 1 {
		cfg.Days = int(v)
	}
	return cfg
}

// ParseRatioConfig reads a RatioConfig, keeping the default for unusable values.
func ParseRatioConfig(raw json.RawMessage, def RatioConfig) RatioConfig {
	cfg := def
	if v, ok := numberField(configFields(raw), "threshold"); ok && v >= 0 && v <= 1 {
		cfg.Threshold = v
	}
	return cfg
}

// ParseExpressionConfig returns the expression, or "" when none is set.
func ParseExpressionConfig(raw json.RawMessage) ExpressionConfig {
	var cfg ExpressionConfig
	if s, ok := configFields(raw)["expression"]; ok {
		_ = json.Unmarshal(s, &cfg.Expression)
	}
	return cfg
}

// configShape names the typed shape a predicate reads.
type configShape int

const (
	shapeNone configShape = iota
	shapeThreshold
	shapeRatio
)

// validateShape is the strict counterpart of the Parse* functions.
func validateShape(shape configShape, raw json.RawMessage, lookbackDays int) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: config must be a JSON object: %v", domain.ErrValidation, err)
	}

	switch shape {
	case shapeThreshold:
		if _, present := fields["threshold"]; present {
			v, ok := numberField(fields, "threshold")
			if !ok || v < 0 {
				return fmt.Errorf("%w: threshold must be a non-negative number", domain.ErrValidation)
			}
		}
		if _, present := fields["days"]; present {
			v, ok := numberField(fields, "days")
			if !ok || v < 1 || v != math.Trunc(v) {
				return fmt.Errorf("%w: days must be a positive integer", domain.ErrValidation)
			}
			if int(v) != lookbackDays {
				return fmt.Errorf("%w: days must equal the company lookback of %d", domain.ErrValidation, lookbackDays)
			}
		}
	case shapeRatio:
		if _, present := fields["threshold"]; present {
			v, ok := numberField(fields, "threshold")
			if !ok || v < 0 || v > 1 {
				return fmt.Errorf("%w: threshold must be a ratio between 0 and 1", domain.ErrValidation)
			}
		}
	}

	if raw, present := fields["expression"]; present {
		var expr string
		if err := json.Unmarshal(raw, &expr); err != nil {
			return fmt.Errorf("%w: expression must be a string", domain.ErrValidation)
		}
	}
	return nil
}

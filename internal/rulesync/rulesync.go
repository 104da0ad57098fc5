// Package rulesync loads global rule defaults from a YAML file and keeps the
// rule store in step with it.
package rulesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// File is the on-disk layout:
//
//	rules:
//	  - code: DUP-001
//	    scope: document
//	    weight: 40
//	    severity: high
//	    config: {}
type File struct {
	Rules []RuleDef `yaml:"rules"`
}

// RuleDef is one rule entry. Active defaults to true and severity to medium.
type RuleDef struct {
	Code        string         `yaml:"code"`
	Scope       string         `yaml:"scope"`
	Description string         `yaml:"description"`
	Weight      *float64       `yaml:"weight"`
	Severity    string         `yaml:"severity"`
	Active      *bool          `yaml:"active"`
	Config      map[string]any `yaml:"config"`
}

// Syncer stores a global rule, creating or replacing it by scope and code.
type Syncer interface {
	SyncGlobal(ctx context.Context, rule *domain.RiskRule) (bool, error)
}

// Result counts what a sync changed.
type Result struct {
	Created int
	Updated int
}

// Load reads and decodes a rule file.
func Load(path string) ([]*domain.RiskRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return Parse(data)
}

// Parse decodes rule definitions. Entries are checked for shape only; weight
// bounds and config semantics are left to the registry.
func Parse(data []byte) ([]*domain.RiskRule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rule file: %v", domain.ErrValidation, err)
	}

	seen := make(map[string]bool, len(f.Rules))
	out := make([]*domain.RiskRule, 0, len(f.Rules))
	for i, def := range f.Rules {
		rule, err := def.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		key := string(rule.Scope) + "/" + rule.Code
		if seen[key] {
			return nil, fmt.Errorf("%w: rule %s listed twice", domain.ErrValidation, key)
		}
		seen[key] = true
		out = append(out, rule)
	}
	return out, nil
}

func (d RuleDef) rule() (*domain.RiskRule, error) {
	code := strings.TrimSpace(d.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", domain.ErrValidation)
	}
	scope, ok := domain.ParseScope(d.Scope)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown scope %q", domain.ErrValidation, code, d.Scope)
	}
	if d.Weight == nil {
		return nil, fmt.Errorf("%w: %s: weight is required", domain.ErrValidation, code)
	}

	active := true
	if d.Active != nil {
		active = *d.Active
	}
	severity := domain.Severity(strings.ToLower(d.Severity))
	if severity == "" {
		severity = domain.SeverityMedium
	}

	var config json.RawMessage
	if len(d.Config) > 0 {
		raw, err := json.Marshal(d.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: config: %v", domain.ErrValidation, code, err)
		}
		config = raw
	}

	return &domain.RiskRule{
		Scope:           scope,
		Code:            code,
		Description:     d.Description,
		Weight:          *d.Weight,
		IsActive:        active,
		DefaultSeverity: severity,
		Config:          config,
	}, nil
}

// Sync writes every rule as a global default. It stops at the first rule the
// store rejects; rules before it stay applied.
func Sync(ctx context.Context, s Syncer, rules []*domain.RiskRule) (Result, error) {
	var res Result
	for _, rule := range rules {
		created, err := s.SyncGlobal(ctx, rule)
		if err != nil {
			return res, fmt.Errorf("sync rule %s/%s: %w", rule.Scope, rule.Code, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// SyncFile loads path and syncs its rules.
func SyncFile(ctx context.Context, s Syncer, path string) (Result, error) {
	rules, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	res, err := Sync(ctx, s, rules)
	if err != nil {
		return res, err
	}
	slog.Info("rules synced", "path", path, "created", res.Created, "updated", res.Updated)
	return res, nil
}

// Package consolidate merges duplicate skip rules and duplicate bill
// definitions that accumulated from repeated rule derivation or manual
// entry. Preview reports what would merge; Apply performs the merges
// with soft deactivation, so history stays queryable and a re-run
// finds nothing left to do.
package consolidate

import (
	"context"
	"fmt"

	"expense-reconciliation-engine/internal/models"
	"expense-reconciliation-engine/internal/storage"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

// Action selects what Apply merges.
type Action string

const (
	ActionRules Action = "rules"
	ActionBills Action = "bills"
	ActionAll   Action = "all"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionRules, ActionBills, ActionAll:
		return Action(s), nil
	default:
		return "", errors.ValidationError(errors.CodeMissingField, "action", s, nil).
			WithSuggestion("use one of: rules, bills, all")
	}
}

// Service performs duplicate detection and merging.
type Service struct {
	store  storage.Store
	logger logger.Logger
}

// New creates a consolidation service.
func New(store storage.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		store:  store,
		logger: log.WithComponent("consolidate"),
	}
}

// RuleGroup is one set of skip rules sharing a normalized identity.
type RuleGroup struct {
	Key        string                        `json:"key"`
	Keep       *models.TransactionSkipRule   `json:"keep"`
	Duplicates []*models.TransactionSkipRule `json:"duplicates"`
}

// DefinitionGroup is one set of definitions sharing a vendor key and
// category.
type DefinitionGroup struct {
	Key        string                            `json:"key"`
	Keep       *models.RecurringBillDefinition   `json:"keep"`
	Duplicates []*models.RecurringBillDefinition `json:"duplicates"`
}

// Report lists the duplicate groups a consolidation would merge.
type Report struct {
	RuleGroups       []RuleGroup       `json:"ruleGroups"`
	DefinitionGroups []DefinitionGroup `json:"definitionGroups"`
}

// Empty reports whether there is nothing to merge.
func (r *Report) Empty() bool {
	return len(r.RuleGroups) == 0 && len(r.DefinitionGroups) == 0
}

// Preview computes the duplicate groups without mutating anything.
func (s *Service) Preview(ctx context.Context) (*Report, error) {
	ruleGroups, err := s.duplicateRuleGroups(ctx)
	if err != nil {
		return nil, err
	}

	definitionGroups, err := s.duplicateDefinitionGroups(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		RuleGroups:       ruleGroups,
		DefinitionGroups: definitionGroups,
	}, nil
}

// duplicateRuleGroups groups active rules by normalized identity. The
// store returns rules in creation order, so the first rule of each
// group is the oldest and becomes the keeper.
func (s *Service) duplicateRuleGroups(ctx context.Context) ([]RuleGroup, error) {
	ruleList, err := s.store.ListSkipRules(ctx, true)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]*models.TransactionSkipRule)
	var order []string
	for _, rule := range ruleList {
		key := rule.GroupKey()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], rule)
	}

	var groups []RuleGroup
	for _, key := range order {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}
		groups = append(groups, RuleGroup{
			Key:        key,
			Keep:       group[0],
			Duplicates: group[1:],
		})
	}

	return groups, nil
}

// duplicateDefinitionGroups groups active definitions by vendor key
// plus category. The keeper owns the most instances; ties go to the
// earliest created.
func (s *Service) duplicateDefinitionGroups(ctx context.Context) ([]DefinitionGroup, error) {
	defs, err := s.store.ListDefinitions(ctx, true)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string][]*models.RecurringBillDefinition)
	var order []string
	for _, def := range defs {
		key := def.VendorKey() + "|" + def.VendorCategory
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], def)
	}

	var groups []DefinitionGroup
	for _, key := range order {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}

		keep, err := s.pickKeeper(ctx, group)
		if err != nil {
			return nil, err
		}

		var duplicates []*models.RecurringBillDefinition
		for _, def := range group {
			if def.ID != keep.ID {
				duplicates = append(duplicates, def)
			}
		}

		groups = append(groups, DefinitionGroup{
			Key:        key,
			Keep:       keep,
			Duplicates: duplicates,
		})
	}

	return groups, nil
}

// pickKeeper selects the definition with the most instances; group
// order is creation order, so scanning with a strict greater-than
// leaves the earliest created on ties.
func (s *Service) pickKeeper(ctx context.Context, group []*models.RecurringBillDefinition) (*models.RecurringBillDefinition, error) {
	keep := group[0]
	keepCount, err := s.store.CountInstances(ctx, keep.ID)
	if err != nil {
		return nil, err
	}

	for _, def := range group[1:] {
		count, err := s.store.CountInstances(ctx, def.ID)
		if err != nil {
			return nil, err
		}
		if count > keepCount {
			keep = def
			keepCount = count
		}
	}

	return keep, nil
}

// ApplyResult summarizes what a consolidation run changed.
type ApplyResult struct {
	RulesMerged           int   `json:"rulesMerged"`
	DefinitionsMerged     int   `json:"definitionsMerged"`
	TransactionsRepointed int64 `json:"transactionsRepointed"`
	InstancesMigrated     int64 `json:"instancesMigrated"`
}

// Apply merges duplicates for the selected action. Safe to re-run: a
// second application finds no remaining duplicates.
func (s *Service) Apply(ctx context.Context, action Action) (*ApplyResult, error) {
	report, err := s.Preview(ctx)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}

	if action == ActionRules || action == ActionAll {
		for _, group := range report.RuleGroups {
			if err := s.mergeRuleGroup(ctx, group, result); err != nil {
				return nil, err
			}
		}
	}

	if action == ActionBills || action == ActionAll {
		for _, group := range report.DefinitionGroups {
			if err := s.mergeDefinitionGroup(ctx, group, result); err != nil {
				return nil, err
			}
		}
	}

	s.logger.WithFields(logger.Fields{
		"action":             action,
		"rules_merged":       result.RulesMerged,
		"definitions_merged": result.DefinitionsMerged,
	}).Info("consolidation applied")

	return result, nil
}

// mergeRuleGroup folds each duplicate into the keeper: hit counts sum,
// resolved-transaction references repoint, the duplicate deactivates
// with an audit reason.
func (s *Service) mergeRuleGroup(ctx context.Context, group RuleGroup, result *ApplyResult) error {
	for _, dup := range group.Duplicates {
		repointed, err := s.store.RepointRuleReferences(ctx, dup.ID, group.Keep.ID)
		if err != nil {
			return err
		}
		result.TransactionsRepointed += repointed

		if dup.HitCount > 0 {
			if err := s.store.AddRuleHits(ctx, group.Keep.ID, dup.HitCount); err != nil {
				return err
			}
		}

		reason := fmt.Sprintf("consolidated into rule %s", group.Keep.ID)
		if err := s.store.DeactivateSkipRule(ctx, dup.ID, reason); err != nil {
			return err
		}
		result.RulesMerged++
	}

	return nil
}

// mergeDefinitionGroup folds each duplicate definition into the
// keeper: instances and participant rows migrate, the duplicate
// deactivates with an audit reason. Instances on a conflicting period
// stay with the deactivated duplicate so the historical record holds.
func (s *Service) mergeDefinitionGroup(ctx context.Context, group DefinitionGroup, result *ApplyResult) error {
	for _, dup := range group.Duplicates {
		migrated, err := s.store.MigrateInstances(ctx, dup.ID, group.Keep.ID)
		if err != nil {
			return err
		}
		result.InstancesMigrated += migrated

		if _, err := s.store.MigrateDefinitionParticipants(ctx, dup.ID, group.Keep.ID); err != nil {
			return err
		}

		reason := fmt.Sprintf("consolidated into definition %s", group.Keep.ID)
		if err := s.store.DeactivateDefinition(ctx, dup.ID, reason); err != nil {
			return err
		}
		result.DefinitionsMerged++
	}

	return nil
}

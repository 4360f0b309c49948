package llm

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

const selectionFreeOnly = "free_only"

var (
	defaultTierOrder = []string{TierFinanceSafe, TierCostSaver, TierResearchHeavy, TierFreeTrial}
	freeOnlyTiers    = []string{TierFreeTrial}

	tierBonus = map[string]float64{
		TierFinanceSafe:   0.05,
		TierCostSaver:     0.03,
		TierResearchHeavy: 0.02,
	}
)

// BuildCandidates expands the requested models of role into a scored,
// de-duplicated fallback order.
//
// Requested entries may name a capability tier or a model alias. The role's
// preferred tier and then the default tiers are appended after them, so a
// role always has fallbacks even when one model is requested.
func BuildCandidates(role string, requested []string, pc *config.ProviderConfig, logger *slog.Logger) ([]Candidate, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ordered := collectAliases(role, requested, pc, logger)
	blocked := lowerSet(pc.BlockedModels)
	seen := make(map[string]bool, len(ordered))

	total := len(ordered)
	if total == 0 {
		total = 1
	}

	candidates := make([]Candidate, 0, len(ordered))
	for pos, a := range ordered {
		resolved := a.alias
		if mapped, ok := pc.ModelAliases[a.alias]; ok {
			resolved = mapped
			if resolved != a.alias {
				logger.Info("Model alias mapped", "alias", a.alias, "resolved", resolved)
			}
		}

		lower := strings.ToLower(resolved)
		if blocked[lower] {
			logger.Info("Model skipped because it is blocked", "model", resolved)
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true

		c := Candidate{
			Alias:    a.alias,
			Resolved: resolved,
			Tier:     a.tier,
			Score:    score(resolved, pos, total, a.tier, pc),
		}
		if cost, ok := pc.CostEstimates[resolved]; ok {
			c.Cost = &cost
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, &types.ConfigError{
			Field:  "llm.providers",
			Reason: "no models available for " + role + " after applying capability tiers and blocks",
			Err:    types.ErrNoCandidates,
		}
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return candidates, nil
}

type tieredAlias struct {
	alias string
	tier  string
}

func collectAliases(role string, requested []string, pc *config.ProviderConfig, logger *slog.Logger) []tieredAlias {
	freeOnly := strings.EqualFold(pc.SelectionMode, selectionFreeOnly)
	blocked := lowerSet(pc.BlockedModels)
	aliasTier := aliasTierMap(pc.CapabilityTiers)

	resolvedToAlias := make(map[string]string, len(pc.ModelAliases))
	for _, alias := range slices.Sorted(maps.Keys(pc.ModelAliases)) {
		resolvedToAlias[strings.ToLower(pc.ModelAliases[alias])] = alias
	}

	var out []tieredAlias
	seen := make(map[string]bool)

	add := func(alias string) {
		lower := strings.ToLower(alias)
		if _, tiered := aliasTier[lower]; !tiered {
			if canonical, ok := resolvedToAlias[lower]; ok {
				alias = canonical
				lower = strings.ToLower(canonical)
			}
		}
		if blocked[lower] {
			logger.Info("Model alias blocked by configuration", "alias", alias)
			return
		}

		tier := aliasTier[alias]
		if freeOnly && tier != TierFreeTrial {
			logger.Debug("Skipping alias outside free_trial tier", "alias", alias, "tier", tier)
			return
		}
		if tier == TierFreeTrial && !pc.EnableFreeModels {
			logger.Debug("Skipping free_trial alias, free models disabled", "alias", alias)
			return
		}
		if !seen[lower] {
			seen[lower] = true
			out = append(out, tieredAlias{alias: alias, tier: tier})
		}
	}

	addTier := func(tier string) {
		for _, alias := range pc.CapabilityTiers[tier] {
			add(alias)
		}
	}

	for _, entry := range requested {
		if _, ok := pc.CapabilityTiers[entry]; ok {
			addTier(entry)
		} else {
			add(entry)
		}
	}

	if preferred := pc.PreferredCapabilities[role]; preferred != "" {
		addTier(preferred)
	}

	order := defaultTierOrder
	if freeOnly {
		order = freeOnlyTiers
	}
	for _, tier := range order {
		addTier(tier)
	}
	return out
}

// aliasTierMap assigns each alias the last tier listing it, visiting the
// default tiers first and then the remaining tiers by name.
func aliasTierMap(tiers map[string][]string) map[string]string {
	order := make([]string, 0, len(tiers))
	for _, t := range defaultTierOrder {
		if _, ok := tiers[t]; ok {
			order = append(order, t)
		}
	}
	for _, t := range slices.Sorted(maps.Keys(tiers)) {
		if !slices.Contains(defaultTierOrder, t) {
			order = append(order, t)
		}
	}

	out := make(map[string]string)
	for _, tier := range order {
		for _, alias := range tiers[tier] {
			out[alias] = tier
		}
	}
	return out
}

func score(resolved string, pos, total int, tier string, pc *config.ProviderConfig) float64 {
	priority := float64(total-pos) / float64(total)
	profile := pc.ModelProfiles[resolved]
	return priority*0.4 +
		profile.ReliabilityOrDefault()*0.4 +
		profile.CostWeightOrDefault()*0.15 +
		tierBonus[tier]
}

func lowerSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[strings.ToLower(v)] = true
	}
	return out
}

package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/LavishGent/routewise/internal/config"
	"github.com/LavishGent/routewise/internal/types"
)

func openRouterConfig() config.ProviderConfig {
	return config.DefaultProviders()[ProviderOpenRouter].Clone()
}

func resolvedIDs(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Resolved
	}
	return out
}

func TestBuildCandidatesDefaultOrder(t *testing.T) {
	pc := openRouterConfig()

	got, err := BuildCandidates(RoleDeepThink, []string{"gpt-5-mini"}, &pc, nil)
	if err != nil {
		t.Fatalf("BuildCandidates() error = %v", err)
	}

	want := []string{
		"openai/gpt-4o-mini",
		"openai/gpt-5-mini",
		"mistralai/magistral-medium-2506:thinking",
		"z-ai/glm-4.5-air:free",
		"meta-llama/llama-3.3-70b-instruct",
		"minimax/minimax-m2:free",
		"x-ai/grok-4-fast",
		"deepseek/deepseek-chat-v3-0324:free",
		"mistralai/mistral-small-3.2-24b-instruct:free",
	}
	if strings.Join(resolvedIDs(got), ",") != strings.Join(want, ",") {
		t.Errorf("order = %v\nwant    %v", resolvedIDs(got), want)
	}

	second := got[1]
	if second.Alias != "gpt-5-mini" || second.Tier != TierFinanceSafe {
		t.Errorf("gpt-5-mini candidate = %+v", second)
	}
	if second.Cost == nil || second.Cost.Prompt != 0.25 || second.Cost.Completion != 2.00 {
		t.Errorf("gpt-5-mini cost = %+v", second.Cost)
	}
	if got[0].Tier != TierCostSaver {
		t.Errorf("gpt-4o-mini tier = %q, want cost_saver (later tier wins)", got[0].Tier)
	}
	if diff := second.Score - 0.90; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("gpt-5-mini score = %v, want 0.90", second.Score)
	}
}

func TestBuildCandidatesFiltering(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.ProviderConfig)
		requested []string
		check     func(t *testing.T, got []Candidate)
	}{
		{
			name:      "free_only keeps only free_trial",
			mutate:    func(pc *config.ProviderConfig) { pc.SelectionMode = "free_only" },
			requested: []string{"gpt-5-mini"},
			check: func(t *testing.T, got []Candidate) {
				if len(got) != 4 {
					t.Fatalf("got %d candidates, want 4", len(got))
				}
				for _, c := range got {
					if c.Tier != TierFreeTrial {
						t.Errorf("candidate %s tier = %q", c.Resolved, c.Tier)
					}
				}
			},
		},
		{
			name:      "free models disabled",
			mutate:    func(pc *config.ProviderConfig) { pc.EnableFreeModels = false },
			requested: []string{"gpt-5-mini"},
			check: func(t *testing.T, got []Candidate) {
				if len(got) != 5 {
					t.Fatalf("got %d candidates, want 5", len(got))
				}
				for _, c := range got {
					if c.Tier == TierFreeTrial {
						t.Errorf("free candidate %s kept", c.Resolved)
					}
				}
			},
		},
		{
			name: "blocked aliases and resolved ids are dropped case-insensitively",
			mutate: func(pc *config.ProviderConfig) {
				pc.BlockedModels = []string{"GROK-4-FAST", "OpenAI/GPT-4o-mini"}
			},
			requested: []string{"gpt-5-mini"},
			check: func(t *testing.T, got []Candidate) {
				for _, c := range got {
					if c.Resolved == "x-ai/grok-4-fast" || c.Resolved == "openai/gpt-4o-mini" {
						t.Errorf("blocked candidate %s kept", c.Resolved)
					}
				}
				if len(got) != 7 {
					t.Errorf("got %d candidates, want 7", len(got))
				}
			},
		},
		{
			name:      "resolved id maps back to its alias",
			requested: []string{"openai/gpt-5-mini"},
			check: func(t *testing.T, got []Candidate) {
				if len(got) != 9 {
					t.Fatalf("got %d candidates, want 9", len(got))
				}
				for _, c := range got {
					if c.Alias == "openai/gpt-5-mini" {
						t.Error("resolved id kept as alias")
					}
				}
			},
		},
		{
			name:      "unknown model passes through untiered",
			requested: []string{"acme/finance-7b"},
			check: func(t *testing.T, got []Candidate) {
				var found *Candidate
				for i := range got {
					if got[i].Resolved == "acme/finance-7b" {
						found = &got[i]
					}
				}
				if found == nil {
					t.Fatal("acme/finance-7b missing")
				}
				if found.Tier != "" || found.Cost != nil {
					t.Errorf("candidate = %+v, want no tier and no cost", *found)
				}
				if diff := found.Score - 0.675; diff > 1e-9 || diff < -1e-9 {
					t.Errorf("score = %v, want 0.675", found.Score)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := openRouterConfig()
			if tt.mutate != nil {
				tt.mutate(&pc)
			}
			got, err := BuildCandidates(RoleDeepThink, tt.requested, &pc, nil)
			if err != nil {
				t.Fatalf("BuildCandidates() error = %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestBuildCandidatesEmpty(t *testing.T) {
	pc := config.ProviderConfig{BlockedModels: []string{"ONLY-MODEL"}}

	_, err := BuildCandidates(RoleQuickThink, []string{"only-model"}, &pc, nil)
	if !errors.Is(err, types.ErrNoCandidates) {
		t.Errorf("error = %v, want ErrNoCandidates", err)
	}
	if !types.IsConfigurationError(err) {
		t.Errorf("error = %v, want a configuration error", err)
	}
}

func TestAliasTierMap(t *testing.T) {
	tests := []struct {
		name  string
		tiers map[string][]string
		alias string
		want  string
	}{
		{"later default tier wins", map[string][]string{"finance_safe": {"a"}, "cost_saver": {"a"}}, "a", TierCostSaver},
		{"custom tiers after defaults", map[string][]string{"zeta": {"a"}, "free_trial": {"a"}}, "a", "zeta"},
		{"custom tiers by name", map[string][]string{"beta": {"a"}, "alpha": {"a"}}, "a", "beta"},
		{"untiered", map[string][]string{"alpha": {"b"}}, "a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aliasTierMap(tt.tiers)[tt.alias]; got != tt.want {
				t.Errorf("tier of %q = %q, want %q", tt.alias, got, tt.want)
			}
		})
	}
}

func TestBuildCandidatesProperties(t *testing.T) {
	names := []string{"alpha", "Beta", "beta", "gamma", "delta", "eps"}
	tierNames := []string{TierFinanceSafe, TierCostSaver, TierResearchHeavy, TierFreeTrial, "custom"}

	rapid.Check(t, func(t *rapid.T) {
		pc := config.ProviderConfig{
			ModelAliases:          map[string]string{},
			CapabilityTiers:       map[string][]string{},
			ModelProfiles:         map[string]config.ModelProfile{},
			PreferredCapabilities: map[string]string{},
			EnableFreeModels:      rapid.Bool().Draw(t, "enableFree"),
		}
		if rapid.Bool().Draw(t, "freeOnly") {
			pc.SelectionMode = "free_only"
		}
		for _, n := range names {
			if rapid.Bool().Draw(t, "aliased-"+n) {
				pc.ModelAliases[n] = "vendor/" + strings.ToLower(n)
			}
			rel := rapid.Float64Range(0, 1).Draw(t, "rel-"+n)
			cw := rapid.Float64Range(0, 1).Draw(t, "cw-"+n)
			pc.ModelProfiles["vendor/"+strings.ToLower(n)] = config.ModelProfile{Reliability: &rel, CostWeight: &cw}
		}
		for _, tier := range tierNames {
			pc.CapabilityTiers[tier] = rapid.SliceOfDistinct(rapid.SampledFrom(names), func(s string) string { return s }).Draw(t, "tier-"+tier)
		}
		pc.PreferredCapabilities[RoleDeepThink] = rapid.SampledFrom(tierNames).Draw(t, "preferred")
		pc.BlockedModels = rapid.SliceOfN(rapid.SampledFrom(append(names, "vendor/alpha", "VENDOR/GAMMA")), 0, 3).Draw(t, "blocked")
		requested := rapid.SliceOfN(rapid.SampledFrom(append(names, tierNames...)), 1, 4).Draw(t, "requested")

		got, err := BuildCandidates(RoleDeepThink, requested, &pc, nil)
		if err != nil {
			if !errors.Is(err, types.ErrNoCandidates) {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		}

		blocked := lowerSet(pc.BlockedModels)
		seen := map[string]bool{}
		for i, c := range got {
			lower := strings.ToLower(c.Resolved)
			if seen[lower] {
				t.Fatalf("duplicate resolved id %s", c.Resolved)
			}
			seen[lower] = true
			if blocked[lower] || blocked[strings.ToLower(c.Alias)] {
				t.Fatalf("blocked candidate %+v", c)
			}
			if pc.SelectionMode == "free_only" && c.Tier != TierFreeTrial {
				t.Fatalf("free_only kept %+v", c)
			}
			if !pc.EnableFreeModels && c.Tier == TierFreeTrial {
				t.Fatalf("free models disabled but kept %+v", c)
			}
			if c.Score < 0 || c.Score > 1+1e-9 {
				t.Fatalf("score out of range: %+v", c)
			}
			if i > 0 && got[i-1].Score < c.Score {
				t.Fatalf("not sorted: %s", fmt.Sprint(resolvedIDs(got)))
			}
		}
	})
}

package main

import (
	"github.com/jackzampolin/headloc/internal/candidate"
	"github.com/jackzampolin/headloc/internal/config"
	"github.com/jackzampolin/headloc/internal/locator"
	"github.com/jackzampolin/headloc/internal/noise"
	"github.com/jackzampolin/headloc/internal/normalize"
)

// locatorOptions maps the locator config section onto locator.Options.
// Detector settings the config does not expose keep their defaults.
func locatorOptions(cfg *config.Config) locator.Options {
	lc := cfg.Locator

	nz := noise.DefaultOptions()
	nz.SuppressTOC = lc.SuppressTOC
	nz.SuppressRunning = lc.SuppressRunning
	nz.BandLines = lc.BandLines
	nz.TOCMinLeaders = lc.TOCMinLeaders
	nz.TOCMinSectionTokens = lc.TOCMinSectionTokens
	nz.RunnerMinPages = lc.RunnerMinPages
	nz.RunnerFraction = lc.RunnerFraction

	return locator.Options{
		Normalize: normalize.Options{
			Confusables:    lc.NormalizeConfusables,
			FoldDiacritics: lc.FoldDiacritics,
		},
		Noise: nz,
		Candidate: candidate.Options{
			FuzzyThreshold: lc.FuzzyThreshold,
			MinLexical:     lc.MinLexical,
			MinSemantic:    lc.MinSemantic,
			Weights: candidate.Weights{
				Lexical:    lc.Weights.Lexical,
				Position:   lc.Weights.Position,
				Typography: lc.Weights.Typography,
				Semantic:   lc.Weights.Semantic,
			},
			NumericBonus:       lc.NumericBonus,
			BandPenalty:        lc.BandPenalty,
			ChildHintBonus:     lc.ChildHintBonus,
			ChildHintLookahead: lc.ChildHintLookahead,
			Tiebreak:           candidate.Tiebreak(lc.Tiebreak),
			Semantic:           lc.Semantic.Enabled,
		},
		WindowPad:              lc.WindowPad,
		RequireNumericLevels:   append([]int(nil), lc.RequireNumericLevels...),
		LastOccurrenceFallback: lc.LastOccurrenceFallback,
		MaxPasses:              lc.MaxPasses,
		DedupePolicy:           locator.DedupePolicy(lc.DedupePolicy),
	}
}

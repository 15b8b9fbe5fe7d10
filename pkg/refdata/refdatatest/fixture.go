// Package refdatatest provides a small combine vocabulary for tests.
package refdatatest

import (
	"testing"

	"github.com/hazyhaar/combine-registry/pkg/canon"
	"github.com/hazyhaar/combine-registry/pkg/refdata"
)

// Tables returns a fresh copy of the test vocabulary.
func Tables() refdata.Tables {
	return refdata.Tables{
		Version: "test",
		Models: []refdata.Model{
			{Brand: "john_deere", Model: "s790", FirstYear: 2018, LastYear: 2025},
			{Brand: "john_deere", Model: "s780", FirstYear: 2018, LastYear: 2025},
			{Brand: "john_deere", Model: "x9_1100", FirstYear: 2021},
			{Brand: "john_deere", Model: "x9_1000", FirstYear: 2021},
			{Brand: "claas", Model: "lexion_8900", FirstYear: 2019},
			{Brand: "claas", Model: "lexion_8800", FirstYear: 2019},
			{Brand: "new_holland", Model: "cr10_90", FirstYear: 2020},
			{Brand: "case_ih", Model: "axial_flow_9250", FirstYear: 2019},
			{Brand: "fendt", Model: "ideal_10t", FirstYear: 2019},
		},
		Brands: []refdata.BrandAlias{
			{Alias: "john deere", Brand: "john_deere", Weight: 1, Active: true},
			{Alias: "jd", Brand: "john_deere", Weight: 0.95, Active: true},
			{Alias: "deere", Brand: "john_deere", Weight: 0.9, Active: true},
			{Alias: "claas", Brand: "claas", Weight: 1, Active: true},
			{Alias: "class", Brand: "claas", Weight: 0.75, Active: true},
			{Alias: "new holland", Brand: "new_holland", Weight: 1, Active: true},
			{Alias: "nh", Brand: "new_holland", Weight: 0.9, Active: true},
			{Alias: "case ih", Brand: "case_ih", Weight: 1, Active: true},
			{Alias: "case", Brand: "case_ih", Weight: 0.85, Active: true},
			{Alias: "fendt", Brand: "fendt", Weight: 1, Active: true},
			{Alias: "deer", Brand: "john_deere", Weight: 0.5, Active: false},
		},
		Variants: []refdata.ModelVariant{
			{Variant: "s790 jd", Brand: "john_deere", Model: "s790", Weight: 1},
			{Variant: "x9-1100", Brand: "john_deere", Model: "x9_1100", Weight: 1},
			{Variant: "lexion 8900", Brand: "claas", Model: "lexion_8900", Weight: 1},
			{Variant: "cr 10.90", Brand: "new_holland", Model: "cr10_90", Weight: 0.9},
			{Variant: "9250 axial", Brand: "case_ih", Model: "axial_flow_9250", Weight: 0.9},
			{Variant: "ideal10t", Brand: "fendt", Model: "ideal_10t", Weight: 1},
		},
		Typos: []canon.Rule{
			{Pattern: `\bnewholland\b`, Replacement: "new holland"},
			{Pattern: `\bjohn\s?deer\b`, Replacement: "john deere"},
		},
	}
}

// Snapshot builds the test vocabulary or fails the test.
func Snapshot(t testing.TB) *refdata.Snapshot {
	t.Helper()
	s, err := refdata.Build(Tables())
	if err != nil {
		t.Fatalf("refdata.Build: %v", err)
	}
	return s
}

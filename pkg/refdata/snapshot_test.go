package refdata_test

import (
	"errors"
	"testing"

	"github.com/hazyhaar/combine-registry/pkg/refdata"
	"github.com/hazyhaar/combine-registry/pkg/refdata/refdatatest"
)

func TestBuild_Universe(t *testing.T) {
	s := refdatatest.Snapshot(t)

	st := s.Stats()
	if st.Models != 9 {
		t.Errorf("Models = %d, want 9", st.Models)
	}
	if st.Aliases != 10 {
		t.Errorf("Aliases = %d, want 10 (inactive alias skipped)", st.Aliases)
	}
	if st.Variants != 6 {
		t.Errorf("Variants = %d, want 6", st.Variants)
	}
	if st.TypoRules != 2 {
		t.Errorf("TypoRules = %d, want 2", st.TypoRules)
	}

	e, ok := s.Exact("john deere x9 1100")
	if !ok {
		t.Fatal("expected canonical key john deere x9 1100")
	}
	if e.ID != "john_deere_x9_1100" || e.Brand != "john_deere" || e.Model != "x9_1100" {
		t.Errorf("entry = %+v", e)
	}
	if got, ok := s.ByID("claas_lexion_8900"); !ok || got.ModelKey != "lexion 8900" {
		t.Errorf("ByID(claas_lexion_8900) = %+v, %v", got, ok)
	}
	if n := len(s.BrandEntries("john_deere")); n != 4 {
		t.Errorf("BrandEntries(john_deere) = %d, want 4", n)
	}

	// Entries keep load order.
	for i, e := range s.Entries() {
		if e.Order() != i {
			t.Errorf("entry %s order = %d, want %d", e.ID, e.Order(), i)
		}
	}
}

func TestBuild_VariantOnlyModelJoinsUniverse(t *testing.T) {
	tables := refdatatest.Tables()
	tables.Variants = append(tables.Variants, refdata.ModelVariant{
		Variant: "t670i", Brand: "john deere", Model: "t670", Weight: 1,
	})
	s, err := refdata.Build(tables)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := s.ByID("john_deere_t670"); !ok {
		t.Error("variant-only model missing from universe")
	}
	v, ok := s.Variant("t670i")
	if !ok || v.Entry.ID != "john_deere_t670" {
		t.Errorf("Variant(t670i) = %+v, %v", v, ok)
	}
}

func TestBuild_IntegrityErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*refdata.Tables)
	}{
		{"alias to two brands", func(tb *refdata.Tables) {
			tb.Brands = append(tb.Brands, refdata.BrandAlias{Alias: "JD", Brand: "claas", Weight: 0.9, Active: true})
		}},
		{"variant to two models", func(tb *refdata.Tables) {
			tb.Variants = append(tb.Variants, refdata.ModelVariant{Variant: "X9-1100", Brand: "john_deere", Model: "x9_1000", Weight: 1})
		}},
		{"variant shadows canonical", func(tb *refdata.Tables) {
			tb.Variants = append(tb.Variants, refdata.ModelVariant{Variant: "claas lexion 8800", Brand: "claas", Model: "lexion_8900", Weight: 1})
		}},
		{"weight out of range", func(tb *refdata.Tables) {
			tb.Brands = append(tb.Brands, refdata.BrandAlias{Alias: "jon deer", Brand: "john_deere", Weight: 1.5, Active: true})
		}},
		{"empty model", func(tb *refdata.Tables) {
			tb.Models = append(tb.Models, refdata.Model{Brand: "claas", Model: "--"})
		}},
		{"years reversed", func(tb *refdata.Tables) {
			tb.Models = append(tb.Models, refdata.Model{Brand: "claas", Model: "trion 750", FirstYear: 2024, LastYear: 2020})
		}},
		{"bad typo rule", func(tb *refdata.Tables) {
			tb.Typos = append(tb.Typos, tb.Typos[0])
			tb.Typos[len(tb.Typos)-1].Pattern = "("
		}},
		{"empty universe", func(tb *refdata.Tables) {
			tb.Models = nil
			tb.Variants = nil
		}},
	}
	for _, tt := range tests {
		tables := refdatatest.Tables()
		tt.mutate(&tables)
		_, err := refdata.Build(tables)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !errors.Is(err, refdata.ErrIntegrity) {
			t.Errorf("%s: error %v does not wrap ErrIntegrity", tt.name, err)
		}
	}
}

func TestBuild_DuplicateAliasSameBrand(t *testing.T) {
	tables := refdatatest.Tables()
	tables.Brands = append(tables.Brands, refdata.BrandAlias{Alias: "J.D.", Brand: "john deere", Weight: 0.9, Active: true})
	if _, err := refdata.Build(tables); err != nil {
		t.Fatalf("duplicate alias to the same brand should load: %v", err)
	}
}

func TestMatchBrand(t *testing.T) {
	s := refdatatest.Snapshot(t)
	tests := []struct {
		key, brand, rest string
		found            bool
	}{
		{"jd s790", "john_deere", "s790", true},
		{"john deere x9 1100", "john_deere", "x9 1100", true},
		{"case ih axial flow 9250", "case_ih", "axial flow 9250", true},
		{"case 9250", "case_ih", "9250", true},
		{"class 8900 lexion", "claas", "8900 lexion", true},
		{"fendt", "fendt", "", true},
		{"deer s790", "", "", false},
		{"zzz99 unknown tractor", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		a, rest, ok := s.MatchBrand(tt.key)
		if ok != tt.found {
			t.Errorf("MatchBrand(%q) found = %v, want %v", tt.key, ok, tt.found)
			continue
		}
		if !ok {
			continue
		}
		if a.Brand != tt.brand || rest != tt.rest {
			t.Errorf("MatchBrand(%q) = %s, %q; want %s, %q", tt.key, a.Brand, rest, tt.brand, tt.rest)
		}
	}
}

func TestEntryYears(t *testing.T) {
	s := refdatatest.Snapshot(t)
	e, _ := s.ByID("john_deere_s790")
	tests := []struct {
		year             int
		plausible, known bool
	}{
		{2020, true, true},
		{2017, true, true},
		{2015, false, true},
		{2027, false, true},
	}
	for _, tt := range tests {
		p, k := e.Years(tt.year)
		if p != tt.plausible || k != tt.known {
			t.Errorf("Years(%d) = %v, %v; want %v, %v", tt.year, p, k, tt.plausible, tt.known)
		}
	}

	v, _ := s.Variant("cr 1090")
	if p, k := v.Entry.Years(1990); p || !k {
		t.Errorf("cr10_90 Years(1990) = %v, %v; want false, true", p, k)
	}
}

func TestVariantHits(t *testing.T) {
	s := refdatatest.Snapshot(t)
	v, ok := s.Variant("x91100")
	if !ok {
		t.Fatal("expected variant x91100")
	}
	v.Hit()
	v.Hit()
	if v.Uses() != 2 {
		t.Errorf("Uses = %d, want 2", v.Uses())
	}
}

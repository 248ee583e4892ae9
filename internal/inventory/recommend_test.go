package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/domain"
)

func TestParseRange(t *testing.T) {
	cases := map[string]struct {
		want Range
		ok   bool
	}{
		"-20.00 đến +20.00": {Range{-20, 20}, true},
		"-8.00 to +8.00":    {Range{-8, 8}, true},
		"-6 TO 4":           {Range{-6, 4}, true},
		"0.00 - 4.00":       {Range{0, 4}, true},
		"Plano":             {Range{}, false},
		"-3.00":             {Range{}, false},
		"":                  {Range{}, false},
	}
	for label, tc := range cases {
		got, ok := ParseRange(label)
		require.Equal(t, tc.ok, ok, label)
		require.Equal(t, tc.want, got, label)
	}
}

func TestMatchFiltersBothEyesAndSortsByWidth(t *testing.T) {
	products := []domain.Product{
		{Code: "WIDE", SphRange: "-20.00 đến +20.00", CylRange: "-6.00 đến 0"},
		{Code: "ANY", SphRange: "Plano"},
		{Code: "NARROW", SphRange: "-4.00 đến 0.00", CylRange: "-2.00 đến 0"},
		{Code: "MID", SphRange: "-10.00 to +10.00"},
		{Code: "MYOPIA-ONLY", SphRange: "-10.00 đến -1.00"},
		{Code: "LOW-CYL", SphRange: "-10.00 đến +10.00", CylRange: "-0.50 đến 0"},
	}
	rx := Prescription{OdSph: -2.5, OsSph: -0.75, OdCyl: -1.0, OsCyl: -0.5}

	got := Match(products, rx)
	codes := make([]string, 0, len(got))
	for _, p := range got {
		codes = append(codes, p.Code)
	}
	require.Equal(t, []string{"NARROW", "MID", "WIDE", "ANY"}, codes)
}

func TestMatchEmptyPrescriptionAcceptsPlano(t *testing.T) {
	got := Match([]domain.Product{{Code: "P", SphRange: "+1.00 đến +4.00"}, {Code: "Q"}}, Prescription{})
	require.Len(t, got, 1)
	require.Equal(t, "Q", got[0].Code)
}

package domain

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	t.Run("Should profile an English hydraulic sizing question", func(t *testing.T) {
		p := Detect("How do I size a pipe for 50 L/s?")
		assert.Equal(t, "en", p.Language)
		assert.Equal(t, Hydraulic, p.Domain)
		assert.Equal(t, PipeSizing, p.CalculationType)
		assert.Empty(t, p.Standards)
		assert.Equal(t, "", p.Region)
	})

	t.Run("Should profile a Spanish question", func(t *testing.T) {
		p := Detect("¿Cómo calculo el golpe de ariete en una tubería de acero en España?")
		assert.Equal(t, "es", p.Language)
		assert.Equal(t, Hydraulic, p.Domain)
		assert.Equal(t, WaterHammer, p.CalculationType)
		assert.Equal(t, "ES", p.Region)
	})

	t.Run("Should fall back to general without keywords", func(t *testing.T) {
		p := Detect("What is a good project schedule?")
		assert.Equal(t, General, p.Domain)
		assert.Equal(t, NoCalculation, p.CalculationType)
	})

	t.Run("Should let the first matching domain win", func(t *testing.T) {
		assert.Equal(t, Hydraulic, DetectDomain("pump foundation vibration"))
		assert.Equal(t, Geotechnical, DetectDomain("bearing capacity of clay under a footing"))
	})

	t.Run("Should respect word boundaries", func(t *testing.T) {
		assert.Equal(t, General, DetectDomain("workflow automation"))
		assert.True(t, ContainsTerm("Size the PIPE now", "pipe"))
		assert.False(t, ContainsTerm("pipeline", "pipe"))
	})
}

func TestDetectStandards(t *testing.T) {
	t.Run("Should extract and normalize distinct standards", func(t *testing.T) {
		got := DetectStandards("Compare AWWA C151 with awwa c151, ISO  4427-2 and ASCE 7-16 per Eurocode 2")
		assert.Equal(t, []string{"AWWA C151", "ISO 4427-2", "ASCE 7-16", "Eurocode 2"}, got)
	})

	t.Run("Should return nil when nothing is cited", func(t *testing.T) {
		assert.Nil(t, DetectStandards("size a pipe"))
	})

	t.Run("Should match mentions regardless of spacing", func(t *testing.T) {
		assert.True(t, MentionsStandard("Per AWWAC151 the lining...", "AWWA C151"))
		assert.False(t, MentionsStandard("Per AWWA C900", "AWWA C151"))
	})
}

func TestRegionFromURL(t *testing.T) {
	t.Run("Should prefer the top level domain", func(t *testing.T) {
		assert.Equal(t, "MX", RegionFromURL("https://www.gob.mx/conagua/doc", "United States"))
		assert.Equal(t, "US", RegionFromURL("https://www.epa.gov/water", ""))
	})

	t.Run("Should fall back to page text", func(t *testing.T) {
		assert.Equal(t, "EU", RegionFromURL("https://example.com", "European guidance on Eurocode"))
		assert.Equal(t, "", RegionFromURL("::bad", "nothing"))
	})
}

func TestVariants(t *testing.T) {
	t.Run("Should substitute the first synonym of the longest term", func(t *testing.T) {
		v, ok := SynonymVariant("Head loss in a steel pipe")
		assert.True(t, ok)
		assert.Equal(t, "friction loss in a steel pipe", v)
	})

	t.Run("Should be bidirectional", func(t *testing.T) {
		assert.Contains(t, Synonyms("conduit"), "pipe")
		assert.Contains(t, Synonyms("pipe"), "conduit")
	})

	t.Run("Should splice at the matched term when lowercasing changes byte length", func(t *testing.T) {
		tests := []struct {
			in   string
			want string
		}{
			{"İİİİİİ pipe", "İİİİİİ conduit"},
			{"KKKK pipe sizing", "KKKK conduit sizing"},
			{"PÉRDIDA DE CARGA en la línea", "pérdida de presión en la línea"},
		}
		for _, tt := range tests {
			v, ok := SynonymVariant(tt.in)
			require.True(t, ok, tt.in)
			assert.True(t, utf8.ValidString(v), v)
			assert.Equal(t, tt.want, v)
		}
	})

	t.Run("Should report no variant without mapped terms", func(t *testing.T) {
		_, ok := SynonymVariant("bolt torque values")
		assert.False(t, ok)
	})

	t.Run("Should expand unit patterns", func(t *testing.T) {
		v, ok := PatternVariant("pipe diameter for 50 L/s")
		assert.True(t, ok)
		assert.Equal(t, "pipe diameter for 50 liters per second", v)
	})
}

func TestKeywords(t *testing.T) {
	t.Run("Should return language specific search keywords", func(t *testing.T) {
		assert.Equal(t, []string{"pipe", "pipeline"}, SearchKeywords(Hydraulic, "en", 2))
		assert.Equal(t, []string{"tubería", "tuberia"}, SearchKeywords(Hydraulic, "es", 2))
		assert.Nil(t, SearchKeywords(General, "en", 2))
	})

	t.Run("Should expose bilingual packs", func(t *testing.T) {
		kw := Keywords(Hydraulic)
		assert.Contains(t, kw, "pipe")
		assert.Contains(t, kw, "caudal")
		assert.NotEmpty(t, CalculationKeywords(HeadLoss))
	})
}

func TestLabels(t *testing.T) {
	t.Run("Should render human labels", func(t *testing.T) {
		assert.Equal(t, "hydraulic engineering", Hydraulic.Label())
		assert.Equal(t, "engineering", Domain("unknown").Label())
		assert.Equal(t, "pipe sizing", PipeSizing.Label())
		assert.Equal(t, "", NoCalculation.Label())
	})
}

func TestNeedsRecency(t *testing.T) {
	t.Run("Should flag questions asking for current information", func(t *testing.T) {
		assert.True(t, NeedsRecency("What is the latest AWWA M11 edition?"))
		assert.True(t, NeedsRecency("¿Cuál es la norma vigente para tuberías?"))
		assert.True(t, NeedsRecency("ASCE 7 changes in 2022"))
		assert.False(t, NeedsRecency("How do I size a pipe for 50 L/s?"))
	})
}

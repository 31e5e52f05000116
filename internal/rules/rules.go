// Package rules holds the weight tables and prediction rules used by the
// priority scorer, the need predictor and the allocation optimizer.
//
// Tables are plain structs with one field per tag. Defaults returns the
// values field teams have been running with; Load overlays an optional CUE
// file on top of them after checking it against the embedded schema.
package rules

import "github.com/roach88/ataa/internal/model"

// Rules bundles every tunable table.
type Rules struct {
	Vulnerability VulnerabilityWeights `json:"vulnerability"`
	Family        FamilyWeights        `json:"family"`
	Urgency       UrgencyWeights       `json:"urgency"`
	Recency       RecencyBuckets       `json:"recency"`
	Displacement  DisplacementWeights  `json:"displacement"`
	Score         ScoreScale           `json:"score"`
	Predictor     PredictorRules       `json:"predictor"`
	Allocation    AllocationLimits     `json:"allocation"`
}

// VulnerabilityWeights are summed per flag. Flags without a field score
// Unknown.
type VulnerabilityWeights struct {
	Orphans        int `json:"orphans"`
	Disabled       int `json:"disabled"`
	ElderlyAlone   int `json:"elderly_alone"`
	Pregnant       int `json:"pregnant"`
	ChronicIllness int `json:"chronic_illness"`
	FemaleHeaded   int `json:"female_headed"`
	LargeFamily    int `json:"large_family"`
	Unknown        int `json:"unknown"`
	Cap            int `json:"cap"`
}

// Weight returns the weight for one flag.
func (w VulnerabilityWeights) Weight(flag string) int {
	switch flag {
	case model.FlagOrphans:
		return w.Orphans
	case model.FlagDisabled:
		return w.Disabled
	case model.FlagElderlyAlone:
		return w.ElderlyAlone
	case model.FlagPregnant:
		return w.Pregnant
	case model.FlagChronicIllness:
		return w.ChronicIllness
	case model.FlagFemaleHeaded:
		return w.FemaleHeaded
	case model.FlagLargeFamily:
		return w.LargeFamily
	}
	return w.Unknown
}

// FamilyWeights scores household size and member age bands.
type FamilyWeights struct {
	SizeOver6 int `json:"size_over_6"`
	SizeOver4 int `json:"size_over_4"`
	SizeOver2 int `json:"size_over_2"`

	Infant  int `json:"infant"`
	Child   int `json:"child"`
	Teen    int `json:"teen"`
	Adult   int `json:"adult"`
	Elderly int `json:"elderly"`
	AgeCap  int `json:"age_cap"`

	Cap int `json:"cap"`
}

// SizePoints returns the size-band points for a family of n.
func (w FamilyWeights) SizePoints(n int) int {
	switch {
	case n > 6:
		return w.SizeOver6
	case n > 4:
		return w.SizeOver4
	case n > 2:
		return w.SizeOver2
	}
	return 0
}

// AgePoints returns the weight of one member in band.
func (w FamilyWeights) AgePoints(band model.AgeBand) int {
	switch band {
	case model.AgeInfant:
		return w.Infant
	case model.AgeChild:
		return w.Child
	case model.AgeTeen:
		return w.Teen
	case model.AgeAdult:
		return w.Adult
	case model.AgeElderly:
		return w.Elderly
	}
	return 0
}

// UrgencyWeights scores open needs.
type UrgencyWeights struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Cap      int `json:"cap"`
}

// Weight returns the weight of one open need. Unknown urgencies weigh as
// low.
func (w UrgencyWeights) Weight(u model.Urgency) int {
	switch u {
	case model.UrgencyCritical:
		return w.Critical
	case model.UrgencyHigh:
		return w.High
	case model.UrgencyMedium:
		return w.Medium
	}
	return w.Low
}

// RecencyBuckets scores days since the last completed distribution.
type RecencyBuckets struct {
	Never  int `json:"never"`
	Over30 int `json:"over_30"`
	Over21 int `json:"over_21"`
	Over14 int `json:"over_14"`
	Over7  int `json:"over_7"`
	Recent int `json:"recent"`
}

// Points returns the bucket for days elapsed.
func (b RecencyBuckets) Points(days int) int {
	switch {
	case days > 30:
		return b.Over30
	case days > 21:
		return b.Over21
	case days > 14:
		return b.Over14
	case days > 7:
		return b.Over7
	}
	return b.Recent
}

type DisplacementWeights struct {
	Displaced int `json:"displaced"`
	Returnee  int `json:"returnee"`
	Host      int `json:"host"`
	Other     int `json:"other"`
}

func (w DisplacementWeights) Weight(s model.DisplacementStatus) int {
	switch s {
	case model.Displaced:
		return w.Displaced
	case model.Returnee:
		return w.Returnee
	case model.Host:
		return w.Host
	}
	return w.Other
}

// ScoreScale maps the raw sub-score sum onto [0, Max].
type ScoreScale struct {
	RawMax int `json:"raw_max"`
	Max    int `json:"max"`
}

// Prediction is one candidate need produced by a composition rule.
type Prediction struct {
	Category   model.Category `json:"category"`
	Confidence float64        `json:"confidence"`
	Urgency    model.Urgency  `json:"urgency"`
	Reason     string         `json:"reason"`
}

// PredictorRules lists predictions per household trait. Rules are evaluated
// in field order.
type PredictorRules struct {
	Infant         []Prediction `json:"infant"`
	Elderly        []Prediction `json:"elderly"`
	Disabled       []Prediction `json:"disabled"`
	Pregnant       []Prediction `json:"pregnant"`
	ChronicIllness []Prediction `json:"chronic_illness"`
	LargeFamily    []Prediction `json:"large_family"`
	NewlyDisplaced []Prediction `json:"newly_displaced"`
	Orphans        []Prediction `json:"orphans"`
	Fallback       []Prediction `json:"fallback"`

	// LargeFamilyOver is the family size above which LargeFamily applies.
	LargeFamilyOver int `json:"large_family_over"`
	// NewlyDisplacedDays is the registration age below which a displaced
	// household counts as newly displaced.
	NewlyDisplacedDays int `json:"newly_displaced_days"`
	// FamilyDivisor scales quantities: base * max(1, size/FamilyDivisor).
	FamilyDivisor int `json:"family_divisor"`

	BaseFood    int `json:"base_food"`
	BaseWater   int `json:"base_water"`
	BaseDefault int `json:"base_default"`
}

// BaseQuantity returns the per-household base quantity for c.
func (p PredictorRules) BaseQuantity(c model.Category) int {
	switch c {
	case model.CategoryFood:
		return p.BaseFood
	case model.CategoryWater:
		return p.BaseWater
	}
	return p.BaseDefault
}

type AllocationLimits struct {
	MaxHouseholds int `json:"max_households"`
}

// Validate rejects tables that would break scorer bounds.
func (r *Rules) Validate() error {
	if r.Score.RawMax <= 0 || r.Score.Max <= 0 {
		return model.Validationf("rules: score.raw_max and score.max must be positive")
	}
	if r.Predictor.FamilyDivisor <= 0 {
		return model.Validationf("rules: predictor.family_divisor must be positive")
	}
	if r.Allocation.MaxHouseholds <= 0 {
		return model.Validationf("rules: allocation.max_households must be positive")
	}
	for _, list := range r.Predictor.all() {
		for _, p := range list {
			if !p.Category.Valid() || !p.Urgency.Valid() {
				return model.Validationf("rules: prediction %q has unknown category or urgency", p.Reason)
			}
			if p.Confidence < 0 || p.Confidence > 1 {
				return model.Validationf("rules: prediction %q confidence %v out of [0,1]", p.Reason, p.Confidence)
			}
		}
	}
	return nil
}

func (p PredictorRules) all() [][]Prediction {
	return [][]Prediction{
		p.Infant, p.Elderly, p.Disabled, p.Pregnant, p.ChronicIllness,
		p.LargeFamily, p.NewlyDisplaced, p.Orphans, p.Fallback,
	}
}

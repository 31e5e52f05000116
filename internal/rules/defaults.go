package rules

import "github.com/roach88/ataa/internal/model"

func p(c model.Category, conf float64, u model.Urgency, reason string) Prediction {
	return Prediction{Category: c, Confidence: conf, Urgency: u, Reason: reason}
}

// Defaults returns the standard tables. Each call returns fresh slices.
func Defaults() Rules {
	const (
		food     = model.CategoryFood
		water    = model.CategoryWater
		hygiene  = model.CategoryHygiene
		medicine = model.CategoryMedicine
		shelter  = model.CategoryShelter
		clothing = model.CategoryClothing

		critical = model.UrgencyCritical
		high     = model.UrgencyHigh
		medium   = model.UrgencyMedium
	)

	return Rules{
		Vulnerability: VulnerabilityWeights{
			Orphans:        5,
			Disabled:       4,
			ElderlyAlone:   4,
			Pregnant:       3,
			ChronicIllness: 3,
			FemaleHeaded:   2,
			LargeFamily:    2,
			Unknown:        1,
			Cap:            20,
		},
		Family: FamilyWeights{
			SizeOver6: 3,
			SizeOver4: 2,
			SizeOver2: 1,
			Infant:    4,
			Child:     2,
			Teen:      1,
			Adult:     0,
			Elderly:   3,
			AgeCap:    7,
			Cap:       10,
		},
		Urgency: UrgencyWeights{Critical: 4, High: 3, Medium: 2, Low: 1, Cap: 10},
		Recency: RecencyBuckets{Never: 10, Over30: 10, Over21: 7, Over14: 5, Over7: 3, Recent: 1},
		Displacement: DisplacementWeights{
			Displaced: 3,
			Returnee:  2,
			Host:      1,
			Other:     1,
		},
		Score: ScoreScale{RawMax: 55, Max: 30},
		Predictor: PredictorRules{
			Infant: []Prediction{
				p(food, 0.95, high, "infants need formula milk"),
				p(hygiene, 0.90, high, "diapers and infant care supplies"),
				p(medicine, 0.70, medium, "preventive medicine for young children"),
			},
			Elderly: []Prediction{
				p(medicine, 0.90, high, "chronic medication for elderly members"),
				p(food, 0.80, medium, "food suitable for elderly members"),
			},
			Disabled: []Prediction{
				p(medicine, 0.85, high, "medical supplies for members with disabilities"),
				p(hygiene, 0.75, medium, "specialised hygiene supplies"),
			},
			Pregnant: []Prediction{
				p(medicine, 0.92, high, "prenatal care and supplements"),
				p(food, 0.88, high, "additional nutrition during pregnancy"),
			},
			ChronicIllness: []Prediction{
				p(medicine, 0.95, critical, "medication for chronic illness"),
			},
			LargeFamily: []Prediction{
				p(food, 0.95, high, "large family needs more food"),
				p(water, 0.85, high, "large family needs more water"),
				p(hygiene, 0.80, medium, "hygiene supplies for more people"),
			},
			NewlyDisplaced: []Prediction{
				p(shelter, 0.90, critical, "newly displaced household needs shelter"),
				p(clothing, 0.85, high, "newly displaced household needs clothing"),
				p(food, 0.95, critical, "urgent food for newly displaced household"),
				p(water, 0.90, high, "drinking water for newly displaced household"),
			},
			Orphans: []Prediction{
				p(food, 0.92, high, "special nutrition for orphans"),
				p(clothing, 0.80, medium, "clothing for orphans"),
			},
			Fallback: []Prediction{
				p(food, 0.70, medium, "basic food need"),
				p(water, 0.65, medium, "basic water need"),
			},
			LargeFamilyOver:    5,
			NewlyDisplacedDays: 14,
			FamilyDivisor:      3,
			BaseFood:           2,
			BaseWater:          3,
			BaseDefault:        1,
		},
		Allocation: AllocationLimits{MaxHouseholds: 50},
	}
}

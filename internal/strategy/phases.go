package strategy

import "badewanne/internal/model"

// ReasonPrefix is prepended to the target stage in every gateway line.
const ReasonPrefix = "EBay_Badewanne_Auto_Start_"

// Thresholds are the sales-attainment limits of phases 4 to 6.
type Thresholds struct {
	First  float64 `yaml:"first"`  // phase 6: sales7 above this moves to BW_STAGE2_20D
	Second float64 `yaml:"second"` // phase 5: sales7 above this moves to BW_STAGE3_10D
	Last   float64 `yaml:"last"`   // phase 4: sales14 above this moves to BW_STAGE4_0D
}

// DefaultThresholds returns the thresholds of the scheduled run.
func DefaultThresholds() Thresholds {
	return Thresholds{First: 90, Second: 100, Last: 90}
}

// Phase is one ordered rule of the discount progression.
type Phase struct {
	Number   int
	Sources  []model.Stage
	Target   model.Stage
	Discount float64 // negative values raise the price
	// Match is the extra condition on top of the source stages; nil selects all.
	Match func(it model.Item, th Thresholds) bool
}

// Reason is the gateway reason label for the phase.
func (p Phase) Reason() string {
	return ReasonPrefix + string(p.Target)
}

// Phases lists the progression rules in evaluation order. Each phase must be
// committed before the next one queries: later source sets rely on items not
// having moved yet.
var Phases = []Phase{
	{
		Number:   1,
		Sources:  []model.Stage{model.StageToBlock},
		Target:   model.StageBlocked,
		Discount: 0,
	},
	{
		Number:   2,
		Sources:  model.CampaignStagesExcept(model.Stage6_10I),
		Target:   model.Stage6_10I,
		Discount: -0.10,
		Match: func(it model.Item, _ Thresholds) bool {
			return it.Sales7 > 120
		},
	},
	{
		Number:   3,
		Sources:  model.CampaignStagesExcept(model.Stage6_10I, model.Stage5_5I),
		Target:   model.Stage5_5I,
		Discount: -0.05,
		Match: func(it model.Item, _ Thresholds) bool {
			return it.Sales7 > 110
		},
	},
	{
		Number:   4,
		Sources:  []model.Stage{model.Stage3_10D, model.Stage2_20D, model.Stage1_30D, model.Stage0},
		Target:   model.Stage4_0D,
		Discount: 0,
		Match: func(it model.Item, th Thresholds) bool {
			return it.Rank < 10 || it.Sales14 > th.Last || it.CogsRatio > 50
		},
	},
	{
		Number:   5,
		Sources:  []model.Stage{model.Stage2_20D, model.Stage1_30D, model.Stage0},
		Target:   model.Stage3_10D,
		Discount: 0.10,
		Match: func(it model.Item, th Thresholds) bool {
			return it.CogsRatio > 40 || it.Rank < 20 || it.Sales7 > th.Second
		},
	},
	{
		Number:   6,
		Sources:  []model.Stage{model.Stage1_30D, model.Stage0},
		Target:   model.Stage2_20D,
		Discount: 0.20,
		Match: func(it model.Item, th Thresholds) bool {
			return it.CogsRatio > 30 || it.Rank < 50 || it.Sales7 > th.First
		},
	},
	{
		Number:   7,
		Sources:  []model.Stage{model.Stage0},
		Target:   model.Stage1_30D,
		Discount: 0.30,
	},
}

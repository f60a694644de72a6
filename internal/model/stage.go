package model

import (
	"fmt"
	"strings"
)

// Stage is the lifecycle state of a listing within the Badewanne campaign.
type Stage string

const (
	StageNormal  Stage = "NORMAL"
	StageLRWList Stage = "LRW_LIST"
	StageReady   Stage = "BW_READY"
	Stage0       Stage = "BW_STAGE0"
	Stage1_30D   Stage = "BW_STAGE1_30D"
	Stage2_20D   Stage = "BW_STAGE2_20D"
	Stage3_10D   Stage = "BW_STAGE3_10D"
	Stage4_0D    Stage = "BW_STAGE4_0D"
	Stage5_5I    Stage = "BW_STAGE5_5I"
	Stage6_10I   Stage = "BW_STAGE6_10I"
	StageToBlock Stage = "BW_TOBLOCK"
	StageBlocked Stage = "BW_BLOCKED"
	StageTest    Stage = "TEST" // fixture placeholder, never produced by a rule
)

// campaignPrefix marks stages inside an active campaign run.
const campaignPrefix = "BW_STAGE"

// AllStages lists every stage in display order.
var AllStages = []Stage{
	StageNormal, StageLRWList, StageReady,
	Stage0, Stage1_30D, Stage2_20D, Stage3_10D, Stage4_0D, Stage5_5I, Stage6_10I,
	StageToBlock, StageBlocked, StageTest,
}

// CampaignStages lists the BW_STAGE* values.
var CampaignStages = []Stage{
	Stage0, Stage1_30D, Stage2_20D, Stage3_10D, Stage4_0D, Stage5_5I, Stage6_10I,
}

// IsCampaign reports whether s is one of the BW_STAGE* values.
func (s Stage) IsCampaign() bool {
	return strings.HasPrefix(string(s), campaignPrefix)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, v := range AllStages {
		if v == s {
			return true
		}
	}
	return false
}

func (s Stage) String() string { return string(s) }

// ParseStage converts a stored label into a Stage.
func ParseStage(v string) (Stage, error) {
	s := Stage(strings.TrimSpace(v))
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", v)
	}
	return s, nil
}

// CampaignStagesExcept returns the BW_STAGE* values not listed in exclude.
func CampaignStagesExcept(exclude ...Stage) []Stage {
	out := make([]Stage, 0, len(CampaignStages))
	for _, s := range CampaignStages {
		skip := false
		for _, e := range exclude {
			if s == e {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, s)
		}
	}
	return out
}

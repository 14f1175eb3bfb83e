package models

import (
	"fmt"
	"sort"
)

// StageID identifies one step of the planning pipeline. The zero value is the
// selection stage; StageEnd is the terminal sentinel.
type StageID int

const (
	StageSelection StageID = iota
	StageEnrichment
	StageScheduling
	StageEnd
)

// NumStages is the number of runnable stages (StageEnd excluded).
const NumStages = int(StageEnd)

var stageNames = [...]string{
	StageSelection:  "city-selector",
	StageEnrichment: "local-expert",
	StageScheduling: "travel-concierge",
	StageEnd:        "END",
}

func (s StageID) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Runnable reports whether s names a real stage rather than the sentinel.
func (s StageID) Runnable() bool {
	return s >= StageSelection && s < StageEnd
}

func (s StageID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StageID) UnmarshalText(b []byte) error {
	id, err := ParseStageID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// ParseStageID maps a stage name back to its identifier.
func ParseStageID(name string) (StageID, error) {
	for i, n := range stageNames {
		if n == name {
			return StageID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// StageOutput is implemented by the typed output of each stage.
type StageOutput interface {
	Stage() StageID
}

func (*CityAnalysis) Stage() StageID  { return StageSelection }
func (*LocalAnalysis) Stage() StageID { return StageEnrichment }
func (*Itinerary) Stage() StageID     { return StageScheduling }

// StageOutputs holds at most one output per stage.
type StageOutputs map[StageID]StageOutput

// Set stores out under its own stage, replacing any earlier output of that stage.
func (o StageOutputs) Set(out StageOutput) {
	o[out.Stage()] = out
}

func (o StageOutputs) Has(id StageID) bool {
	_, ok := o[id]
	return ok
}

// Keys returns the stages with stored output in pipeline order.
func (o StageOutputs) Keys() []StageID {
	keys := make([]StageID, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (o StageOutputs) Selection() *CityAnalysis {
	v, _ := o[StageSelection].(*CityAnalysis)
	return v
}

func (o StageOutputs) Enrichment() *LocalAnalysis {
	v, _ := o[StageEnrichment].(*LocalAnalysis)
	return v
}

func (o StageOutputs) Scheduling() *Itinerary {
	v, _ := o[StageScheduling].(*Itinerary)
	return v
}

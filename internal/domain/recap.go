package domain

// MiniRecapOutput is the per-pillar generated summary, produced once per
// pillar by the recap collaborator and cached on the project.
type MiniRecapOutput struct {
	Pillar       Pillar   `json:"pillar"`
	Score        *int     `json:"score,omitempty"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	NextAction   string   `json:"nextAction"`
}

// Normalize clamps the output to its contract bounds: score in [0,100],
// at most two strengths and two improvements.
func (m *MiniRecapOutput) Normalize() {
	if m.Score != nil {
		if *m.Score < 0 {
			*m.Score = 0
		}
		if *m.Score > 100 {
			*m.Score = 100
		}
	}
	if len(m.Strengths) > 2 {
		m.Strengths = m.Strengths[:2]
	}
	if len(m.Improvements) > 2 {
		m.Improvements = m.Improvements[:2]
	}
	if m.Strengths == nil {
		m.Strengths = []string{}
	}
	if m.Improvements == nil {
		m.Improvements = []string{}
	}
}

// PillarRecap is the per-pillar slice of a final recap.
type PillarRecap struct {
	Score        *int     `json:"score,omitempty"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	NextAction   string   `json:"nextAction"`
}

// FinalRecapOutput is the cross-pillar synthesis, producible only once all
// four mini-recaps are stored.
type FinalRecapOutput struct {
	Priorities []string               `json:"priorities"`
	PerPillar  map[Pillar]PillarRecap `json:"perPillar"`
}

// Normalize clamps priorities to the 1..3 contract window.
func (f *FinalRecapOutput) Normalize() {
	if len(f.Priorities) > 3 {
		f.Priorities = f.Priorities[:3]
	}
	if f.PerPillar == nil {
		f.PerPillar = map[Pillar]PillarRecap{}
	}
}

// MissingMiniRecaps lists pillars without a stored mini-recap, in order.
// A final recap is producible only when the result is empty.
func MissingMiniRecaps(stored map[Pillar]MiniRecapOutput) []Pillar {
	var missing []Pillar
	for _, p := range Pillars() {
		if _, ok := stored[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

package state

import (
	"testing"
)

func TestResolveSkillCheck_Scenario4(t *testing.T) {
	c := map[string]int{"Agility": 3, "Strength": 10}

	res := ResolveSkillCheck(SkillCheck{Attribute: "Agility", Difficulty: 17, RequiresRoll: true}, c, FixedRoller(15))
	if !res.Success || res.Total != 18 {
		t.Errorf("15+3 vs 17: got %+v, want success with total 18", res)
	}

	res = ResolveSkillCheck(SkillCheck{Attribute: "Strength", Difficulty: 5, RequiresRoll: true}, c, FixedRoller(1))
	if res.Success || !res.Critical {
		t.Errorf("natural 1 vs 5: got %+v, want critical failure", res)
	}
}

func TestResolveSkillCheck_CriticalOverrides(t *testing.T) {
	c := map[string]int{"Wits": 50}

	for difficulty := -5; difficulty <= 60; difficulty += 5 {
		if res := ResolveSkillCheck(SkillCheck{Attribute: "Wits", Difficulty: difficulty}, c, FixedRoller(1)); res.Success {
			t.Errorf("natural 1 succeeded against %d", difficulty)
		}
		if res := ResolveSkillCheck(SkillCheck{Attribute: "Missing", Difficulty: difficulty}, c, FixedRoller(20)); !res.Success {
			t.Errorf("natural 20 failed against %d", difficulty)
		}
	}
}

func TestResolveSkillCheck_ClampsRoll(t *testing.T) {
	res := ResolveSkillCheck(SkillCheck{Attribute: "Wits", Difficulty: 10}, nil, FixedRoller(99))
	if res.Roll != 20 || !res.Success {
		t.Errorf("Expected roll clamped to 20, got %+v", res)
	}
	res = ResolveSkillCheck(SkillCheck{Attribute: "Wits", Difficulty: 10}, nil, FixedRoller(-3))
	if res.Roll != 1 || res.Success {
		t.Errorf("Expected roll clamped to 1, got %+v", res)
	}
}

func TestResolveSkillCheck_AttributeNamesAreCaseSensitive(t *testing.T) {
	effective := map[string]int{"Strength": 7, "strength": 1}

	tests := []struct {
		attribute string
		modifier  int
	}{
		{"Strength", 7},
		{"strength", 1},
		{"STRENGTH", 0},
	}
	for _, tt := range tests {
		t.Run(tt.attribute, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				res := ResolveSkillCheck(SkillCheck{Attribute: tt.attribute, Difficulty: 10, RequiresRoll: true}, effective, FixedRoller(10))
				if res.Modifier != tt.modifier {
					t.Fatalf("Modifier = %d, want %d", res.Modifier, tt.modifier)
				}
			}
		})
	}
}

func TestRandomRoller_Range(t *testing.T) {
	r := NewRandomRoller()
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		v := r.Roll()
		if v < 1 || v > 20 {
			t.Fatalf("Roll out of range: %d", v)
		}
		seen[v] = true
	}
	if len(seen) < 15 {
		t.Errorf("Expected most faces to appear, saw %d", len(seen))
	}
}

func TestSkillCheckResult_String(t *testing.T) {
	tests := []struct {
		res  SkillCheckResult
		want string
	}{
		{
			SkillCheckResult{Attribute: "Agility", Difficulty: 15, Roll: 12, Modifier: 3, Total: 15, Success: true},
			"Skill check (Agility vs 15): rolled 12 +3 = 15, success.",
		},
		{
			SkillCheckResult{Attribute: "Wits", Difficulty: 8, Roll: 5, Modifier: -1, Total: 4},
			"Skill check (Wits vs 8): rolled 5 -1 = 4, failure.",
		},
		{
			SkillCheckResult{Attribute: "Agility", Difficulty: 30, Roll: 20, Modifier: 3, Total: 23, Success: true, Critical: true},
			"Skill check (Agility vs 30): natural 20, critical success.",
		},
	}
	for _, tt := range tests {
		if got := tt.res.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

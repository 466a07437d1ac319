package interview

import "testing"

func TestSelectQuestions(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		n        int
		wantLen  int
	}{
		{"general exact", CategoryGeneral, 3, 3},
		{"technical full set", CategoryTechnical, 6, 6},
		{"request beyond catalog clamps", CategoryLeadership, 50, len(questionBank[CategoryLeadership])},
		{"unknown category falls back to general", Category("astrology"), 2, 2},
		{"non-positive request yields one", CategoryGeneral, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectQuestions(tt.category, tt.n)
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
			for i, q := range got {
				if q == "" {
					t.Errorf("question %d is empty", i)
				}
			}
		})
	}
}

func TestSelectQuestionsUnknownUsesGeneralSet(t *testing.T) {
	got := SelectQuestions(Category("nope"), 2)
	want := questionBank[CategoryGeneral][:2]
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("question %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSelectQuestionsReturnsCopy(t *testing.T) {
	got := SelectQuestions(CategoryGeneral, 2)
	got[0] = "mutated"
	if questionBank[CategoryGeneral][0] == "mutated" {
		t.Error("catalog was mutated through the returned slice")
	}
}

func TestCategoryIsValid(t *testing.T) {
	for _, c := range Categories() {
		if !c.IsValid() {
			t.Errorf("Category(%q).IsValid() = false, want true", c)
		}
	}
	if Category("astrology").IsValid() {
		t.Error(`Category("astrology").IsValid() = true, want false`)
	}
}

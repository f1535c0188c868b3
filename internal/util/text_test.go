package util

import "testing"

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Счет №5. Электроэнергия 500 кВт·ч!\nИтого")
	if len(got) != 3 {
		t.Fatalf("len=%d %q", len(got), got)
	}
	if got[1] != "Электроэнергия 500 кВт·ч" {
		t.Fatalf("got %q", got[1])
	}
}

func TestDiceCoefficient(t *testing.T) {
	if v := DiceCoefficient("квтч", "квтч"); v != 1 {
		t.Fatalf("identical=%v", v)
	}
	if v := DiceCoefficient("гкал", "гкалл"); v < 0.8 {
		t.Fatalf("near=%v", v)
	}
	if v := DiceCoefficient("км", ""); v != 0 {
		t.Fatalf("empty=%v", v)
	}
}

func TestWords(t *testing.T) {
	got := Words("Расход: 500 кВт·ч (март)")
	want := []string{"расход", "500", "квт·ч", "март"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %q", got)
		}
	}
}

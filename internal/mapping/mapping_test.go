package mapping

import "testing"

// TestApply проверяет таблицу замен на характерных случаях.
func TestApply(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"alice", "alice"},
		{"Müller", "Mueller"},
		{"Größe", "Groesse"},
		{"Ängelholm", "Aengelholm"},
		{"Þórður", "Thordur"},
		{"Škoda Čech", "Skoda Cech"},
		{"José García", "Jose Garcia"},
		{"Sørensen Æbelø", "Soerensen Aebeloe"},
		{"Œuvre cœur", "Oeuvre coeur"},
		// Символы вне таблицы проходят без изменений
		{"кириллица", "кириллица"},
		{"user_123-x", "user_123-x"},
	}

	for _, tc := range cases {
		if got := Apply(tc.in); got != tc.want {
			t.Errorf("Apply(%q) = %q, ожидалось %q", tc.in, got, tc.want)
		}
	}
}

// TestApply_Idempotent проверяет, что повторная транслитерация ничего не меняет.
func TestApply_Idempotent(t *testing.T) {
	inputs := []string{
		"Müller", "Þórður", "Škoda", "José", "plain ascii", "ß ÿ œ å",
	}
	for _, in := range inputs {
		once := Apply(in)
		twice := Apply(once)
		if once != twice {
			t.Errorf("Apply не идемпотентна для %q: %q != %q", in, once, twice)
		}
	}
}

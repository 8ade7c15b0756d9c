package scoring

import "testing"

func TestSoundsClose(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		expected  string
		wantClose bool
	}{
		{"minor typo", "coffe please", "coffee please", true},
		{"same word", "coffee", "coffee", true},
		{"unrelated", "banana", "how much is that", false},
		{"empty response", "", "coffee please", false},
		{"empty expected", "coffee", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, close := SoundsClose(tt.response, tt.expected)
			if close != tt.wantClose {
				t.Errorf("SoundsClose(%q, %q) close = %v (similarity %.2f), want %v",
					tt.response, tt.expected, close, sim, tt.wantClose)
			}
		})
	}
}

func TestSoundsCloseSimilarityBounds(t *testing.T) {
	sim, _ := SoundsClose("thank you vary much", "thank you very much")
	if sim <= 0 || sim > 1 {
		t.Errorf("similarity = %.2f, want in (0,1]", sim)
	}
}

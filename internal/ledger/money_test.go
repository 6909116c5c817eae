package ledger

import (
	"encoding/json"
	"testing"
)

func TestJSONAmountUsesTwoDecimals(t *testing.T) {
	cases := map[string]string{
		"50":      `"50.00"`,
		"12.5":    `"12.50"`,
		"-99.90":  `"-99.90"`,
		"0":       `"0.00"`,
		"3.14159": `"3.14"`,
	}
	for in, want := range cases {
		got, err := json.Marshal(JSONAmount(amount(in)))
		if err != nil {
			t.Fatalf("marshal %s: %v", in, err)
		}
		if string(got) != want {
			t.Fatalf("%s: got %s want %s", in, got, want)
		}
	}
}

package tel

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in     string
		region string
		want   string
	}{
		{"+15551234567", "US", "+15551234567"},
		{"+12025550123", "US", "+12025550123"},
		{"(202) 555-0123", "US", "+12025550123"},
		{"202-555-0123", "US", "+12025550123"},
		{" +12025550123 ", "US", "+12025550123"},
		{"+442071838750", "US", "+442071838750"},
		{"020 7183 8750", "GB", "+442071838750"},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in, tc.region)
		if tc.want == "" {
			if err == nil {
				t.Errorf("Normalize(%q, %q): expected error, got %q", tc.in, tc.region, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q, %q): %v", tc.in, tc.region, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tc.in, tc.region, got, tc.want)
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "hello", "++1", "12"} {
		if _, err := Normalize(in, "US"); err == nil {
			t.Errorf("Normalize(%q): expected error", in)
		}
	}
}

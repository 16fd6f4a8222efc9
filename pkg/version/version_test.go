package version

import "testing"

func TestVersionStrings(t *testing.T) {
	defer func(t0, c0, d0 string) { tag, commit, date = t0, c0, d0 }(tag, commit, date)

	tests := []struct {
		name                 string
		tag, commit, date    string
		wantString, wantFull string
	}{
		{"dev build", "", "unknown", "unknown", "dev", "dev"},
		{"untagged", "", "abc1234", "2026-01-01", "abc1234", "abc1234 built 2026-01-01"},
		{"tagged", "v1.0.0", "abc1234", "2026-01-01", "v1.0.0", "v1.0.0 (abc1234) built 2026-01-01"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tag, commit, date = tt.tag, tt.commit, tt.date
			if got := String(); got != tt.wantString {
				t.Errorf("String() = %q, want %q", got, tt.wantString)
			}
			if got := Full(); got != tt.wantFull {
				t.Errorf("Full() = %q, want %q", got, tt.wantFull)
			}
		})
	}
}

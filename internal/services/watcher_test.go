package services

import "testing"

func TestIsDerivedArtifact(t *testing.T) {
	languages := []string{"French", "German", "Chinese"}
	tests := []struct {
		key  string
		want bool
	}{
		{"report.pdf", false},
		{"report_French.pdf", true},
		{"reports/2024/q1_German.pdf", true},
		{"report_French.md", true},
		{"report_Spanish.pdf", false},
		{"French.pdf", false},
		{"report_french.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsDerivedArtifact(tt.key, languages); got != tt.want {
				t.Errorf("IsDerivedArtifact(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
	if IsDerivedArtifact("report_French.pdf", nil) {
		t.Error("no languages configured should never match")
	}
}

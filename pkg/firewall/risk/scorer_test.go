package risk

import (
	"testing"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

func mode(t *testing.T, m policy.Mode) *policy.Config {
	t.Helper()
	cfg, ok := policy.BuiltinCatalog().Get(m)
	if !ok {
		t.Fatalf("mode %s missing", m)
	}
	return cfg
}

func TestScore(t *testing.T) {
	general := mode(t, policy.ModeGeneralAI)

	tests := []struct {
		name       string
		action     firewall.Action
		confidence float64
		evidence   float64
		want       float64
		level      firewall.RiskLevel
	}{
		{"ungrounded factual answer", firewall.ActionAnswer, 0.4, 0, 0.65, firewall.RiskHigh},
		{"grounded opinion answer", firewall.ActionAnswer, 0.3, 1, 0.125, firewall.RiskLow},
		{"grounded trade", firewall.ActionTrade, 0.95, 1, 0.4625, firewall.RiskMedium},
		{"ungrounded exec", firewall.ActionExecuteCode, 1, 0, 0.9875, firewall.RiskCritical},
		{"half covered email", firewall.ActionEmail, 0.5, 0.5, 0.5, firewall.RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.action, tt.confidence, firewall.EvidenceAssessment{Score: tt.evidence}, general)
			if got.Score != tt.want {
				t.Errorf("Score = %v, want %v (%+v)", got.Score, tt.want, got)
			}
			if got.Level != tt.level {
				t.Errorf("Level = %s, want %s", got.Level, tt.level)
			}
		})
	}
}

func TestScore_ModeImpactTables(t *testing.T) {
	ev := firewall.EvidenceAssessment{Score: 1}

	general := Score(firewall.ActionMedical, 0.5, ev, mode(t, policy.ModeGeneralAI))
	health := Score(firewall.ActionMedical, 0.5, ev, mode(t, policy.ModeHealthcare))

	if health.Score <= general.Score {
		t.Errorf("HEALTHCARE medical risk %v should exceed GENERAL_AI %v", health.Score, general.Score)
	}
	if health.ActionImpact != 1.0 {
		t.Errorf("ActionImpact = %v, want 1.0", health.ActionImpact)
	}
}

func TestScore_Clamped(t *testing.T) {
	cfg := mode(t, policy.ModeGeneralAI).Clone()
	cfg.Weights = policy.RiskWeights{Impact: 1, Confidence: 1, Evidence: 1}

	got := Score(firewall.ActionTrade, 1, firewall.EvidenceAssessment{}, cfg)
	if got.Score != 1 {
		t.Errorf("Score = %v, want clamped 1", got.Score)
	}
}

func TestScore_MonotonicInConfidence(t *testing.T) {
	cfg := mode(t, policy.ModeGeneralAI)
	ev := firewall.EvidenceAssessment{Score: 0.5}

	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.05 {
		got := Score(firewall.ActionAnswer, c, ev, cfg).Score
		if got < prev {
			t.Fatalf("risk decreased from %v to %v at confidence %v", prev, got, c)
		}
		prev = got
	}
}

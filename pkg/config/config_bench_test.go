package config

import (
	"testing"
)

// BenchmarkConfig_Validate benchmarks configuration validation
func BenchmarkConfig_Validate(b *testing.B) {
	cfg, err := LoadFromEnv()
	if err != nil {
		b.Fatalf("load: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}

// BenchmarkParseStages benchmarks take-profit table parsing
func BenchmarkParseStages(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ParseStages("1.5:25,3:50,6:25")
	}
}

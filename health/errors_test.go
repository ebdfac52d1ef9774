package health

import (
	"context"
	"errors"
	"testing"
)

func TestAggregator_EmptyCheckerReturnsErrNoCheckers(t *testing.T) {
	agg := NewAggregator()
	result := agg.Checker().Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Fatalf("Status = %v, want StatusUnhealthy for an empty aggregator", result.Status)
	}
	if !errors.Is(result.Error, ErrNoCheckers) {
		t.Fatalf("Error = %v, want ErrNoCheckers", result.Error)
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrCheckFailed", ErrCheckFailed},
		{"ErrCheckTimeout", ErrCheckTimeout},
		{"ErrCheckerNotFound", ErrCheckerNotFound},
		{"ErrNoCheckers", ErrNoCheckers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s is nil", tt.name)
			}

			if tt.err.Error() == "" {
				t.Errorf("%s has empty message", tt.name)
			}
		})
	}
}

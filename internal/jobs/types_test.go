package jobs

import (
	"errors"
	"fmt"
	"testing"
)

func TestPermanent(t *testing.T) {
	base := errors.New("mapping incomplete")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", base, false},
		{"marked", Permanent(base), true},
		{"wrapped after marking", fmt.Errorf("MapBatch: %w", Permanent(base)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("Permanent() hides the wrapped error from errors.Is")
	}
	if Permanent(base).Error() != base.Error() {
		t.Errorf("Error() = %q", Permanent(base).Error())
	}
}

func TestRemapBatchJob_Job(t *testing.T) {
	var j Job = &RemapBatchJob{JobID: "j1", Status: JobStatusPending}

	if j.GetID() != "j1" || j.GetType() != JobTypeRemapBatch || j.GetStatus() != JobStatusPending {
		t.Errorf("unexpected job accessors: %s %s %s", j.GetID(), j.GetType(), j.GetStatus())
	}
}

package shardtypes

import "testing"

// TestRunnerAddress tests value semantics and ordering
func TestRunnerAddress(t *testing.T) {
	tests := []struct {
		name string
		a, b RunnerAddress
		less bool
	}{
		{name: "host order", a: RunnerAddress{Host: "a", Port: 9}, b: RunnerAddress{Host: "b", Port: 1}, less: true},
		{name: "port breaks host tie", a: RunnerAddress{Host: "a", Port: 1}, b: RunnerAddress{Host: "a", Port: 2}, less: true},
		{name: "equal is not less", a: RunnerAddress{Host: "a", Port: 1}, b: RunnerAddress{Host: "a", Port: 1}, less: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.less {
				t.Errorf("Less(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.less)
			}
		})
	}

	if (RunnerAddress{}).IsZero() != true {
		t.Error("Zero address should report IsZero")
	}
	if (RunnerAddress{Host: "h", Port: 1}).IsZero() {
		t.Error("Populated address should not report IsZero")
	}
	if got := (RunnerAddress{Host: "h", Port: 80}).String(); got != "h:80" {
		t.Errorf("String() = %q, want h:80", got)
	}
}

// TestAssignmentMapClone tests deep-copy semantics
func TestAssignmentMapClone(t *testing.T) {
	r1 := RunnerAddress{Host: "r", Port: 9001}
	m := AssignmentMap{1: r1, 2: {}}

	clone := m.Clone()
	clone[2] = r1

	if !m[2].IsZero() {
		t.Error("Mutating the clone leaked into the original")
	}
	if clone[1] != r1 {
		t.Error("Clone lost an entry")
	}
}

// TestDeltaIsEmpty tests the empty-delta predicate
func TestDeltaIsEmpty(t *testing.T) {
	r1 := RunnerAddress{Host: "r", Port: 9001}
	if !(Delta{Runner: r1}).IsEmpty() {
		t.Error("Delta with no shards should be empty")
	}
	if (Delta{Runner: r1, Added: []ShardID{1}}).IsEmpty() {
		t.Error("Delta with additions should not be empty")
	}
	if (Delta{Runner: r1, Removed: []ShardID{1}}).IsEmpty() {
		t.Error("Delta with removals should not be empty")
	}
}

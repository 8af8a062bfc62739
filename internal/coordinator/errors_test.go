package coordinator

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
)

// TestErrorKinds tests construction and kind dispatch
func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "transient", err: Transient("Ping", pkgerrors.New("refused")), kind: KindTransient},
		{name: "persistence", err: Persistence("SaveState", pkgerrors.New("disk")), kind: KindPersistence},
		{name: "invariant", err: Invariant("Apply", "shard %d unknown", 7), kind: KindInvariant},
		{name: "client misuse", err: ClientMisuse("Heartbeat", "unknown runner %s", "r:1"), kind: KindClientMisuse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsKind(tt.err, tt.kind) {
				t.Errorf("IsKind(%v, %s) = false", tt.err, tt.kind)
			}
			for _, other := range []Kind{KindTransient, KindPersistence, KindInvariant, KindClientMisuse} {
				if other != tt.kind && IsKind(tt.err, other) {
					t.Errorf("IsKind(%v, %s) = true for the wrong kind", tt.err, other)
				}
			}
		})
	}
}

// TestIsKindNonCoordinatorError tests dispatch against foreign errors
func TestIsKindNonCoordinatorError(t *testing.T) {
	if IsKind(pkgerrors.New("plain"), KindTransient) {
		t.Error("Plain errors should not match any kind")
	}
	if IsKind(nil, KindTransient) {
		t.Error("nil should not match any kind")
	}
}

// TestErrorWrapping tests that kinds survive wrapping and the cause is
// reachable
func TestErrorWrapping(t *testing.T) {
	cause := pkgerrors.New("root cause")
	err := Persistence("SaveState", cause)

	wrapped := pkgerrors.Wrap(err, "outer context")
	if !IsKind(wrapped, KindPersistence) {
		t.Error("Kind lost through an outer wrap")
	}
	if got := pkgerrors.Cause(err.Err); got.Error() != "SaveState: root cause" && got.Error() != "root cause" {
		t.Errorf("Unexpected cause chain: %v", got)
	}
}

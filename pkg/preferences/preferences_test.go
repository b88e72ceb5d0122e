package preferences

import (
	"context"
	"testing"
)

func TestResolveFillsDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Preferences
		check func(t *testing.T, got Preferences)
	}{
		{
			name:  "zero value",
			input: Preferences{},
			check: func(t *testing.T, got Preferences) {
				if got.Thresholds.IntentHigh != DefaultIntentHighConfidence {
					t.Errorf("IntentHigh = %v", got.Thresholds.IntentHigh)
				}
				if got.Thresholds.IntentLow != DefaultIntentLowConfidence {
					t.Errorf("IntentLow = %v", got.Thresholds.IntentLow)
				}
				if got.Thresholds.ReflectionLow != DefaultReflectionLow {
					t.Errorf("ReflectionLow = %v", got.Thresholds.ReflectionLow)
				}
				if got.BatchThreshold != DefaultBatchThreshold {
					t.Errorf("BatchThreshold = %v", got.BatchThreshold)
				}
			},
		},
		{
			name: "low above high is clamped",
			input: Preferences{
				Thresholds: Thresholds{IntentHigh: 0.5, IntentLow: 0.9, ReflectionLow: 0.3},
			},
			check: func(t *testing.T, got Preferences) {
				if got.Thresholds.IntentLow != 0.5 {
					t.Errorf("IntentLow = %v, want clamped to 0.5", got.Thresholds.IntentLow)
				}
			},
		},
		{
			name: "explicit values kept",
			input: Preferences{
				Thresholds:     Thresholds{IntentHigh: 0.9, IntentLow: 0.2, ReflectionLow: 0.1},
				BatchThreshold: 10,
			},
			check: func(t *testing.T, got Preferences) {
				if got.Thresholds.IntentHigh != 0.9 || got.Thresholds.IntentLow != 0.2 {
					t.Errorf("thresholds changed: %+v", got.Thresholds)
				}
				if got.BatchThreshold != 10 {
					t.Errorf("BatchThreshold = %v", got.BatchThreshold)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Resolve(tt.input))
		})
	}
}

func TestAlwaysAllow(t *testing.T) {
	p := Defaults()
	if p.IsAlwaysAllowed("delete_transaction") {
		t.Error("fresh preferences should not allow anything")
	}

	p = p.WithAlwaysAllow("delete_transaction")
	if !p.IsAlwaysAllowed("delete_transaction") {
		t.Error("expected delete_transaction allowed after WithAlwaysAllow")
	}
	if p.IsAlwaysAllowed("bulk_delete_transactions") {
		t.Error("always-allow must match the exact tool name")
	}

	// Adding twice does not duplicate.
	p = p.WithAlwaysAllow("delete_transaction")
	if len(p.AlwaysAllow) != 1 {
		t.Errorf("AlwaysAllow length = %d, want 1", len(p.AlwaysAllow))
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	loaded, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Thresholds.IntentHigh != DefaultIntentHighConfidence {
		t.Error("missing user should get defaults")
	}

	loaded = loaded.WithAlwaysAllow("create_category")
	if err := store.Save(ctx, "u1", loaded); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !again.IsAlwaysAllowed("create_category") {
		t.Error("always-allow lost across load")
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	prefs := Defaults().WithAlwaysAllow("delete_transaction")
	prefs.ConfirmMediumRisk = true
	if err := store.Save(ctx, "u1", prefs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second store over the same directory sees the saved preferences.
	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	loaded, err := reopened.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsAlwaysAllowed("delete_transaction") {
		t.Error("always-allow not persisted")
	}
	if !loaded.ConfirmMediumRisk {
		t.Error("ConfirmMediumRisk not persisted")
	}
}

package model

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   LifecycleStatus
		reason EndReason
		to     LifecycleStatus
		want   bool
	}{
		{"库存记录到草稿", LifecycleInventoryOnly, EndReasonNone, LifecycleDraft, true},
		{"草稿到在售", LifecycleDraft, EndReasonNone, LifecycleActive, true},
		{"在售到下架", LifecycleActive, EndReasonNone, LifecycleEnded, true},
		{"缺货下架可重新上架", LifecycleEnded, EndReasonOutOfStock, LifecycleActive, true},
		{"手动下架不可重新上架", LifecycleEnded, EndReasonDelisted, LifecycleActive, false},
		{"删除下架不可重新上架", LifecycleEnded, EndReasonDeleted, LifecycleActive, false},
		{"在售不可回退草稿", LifecycleActive, EndReasonNone, LifecycleDraft, false},
		{"任意状态可进入错误", LifecycleActive, EndReasonNone, LifecycleError, true},
		{"错误可恢复", LifecycleError, EndReasonNone, LifecycleActive, true},
		{"同状态", LifecycleActive, EndReasonNone, LifecycleActive, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.reason, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %q, %s) = %v, want %v", tt.from, tt.reason, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsKnownSetting(t *testing.T) {
	if !IsKnownSetting(SettingAutoPublish) {
		t.Errorf("IsKnownSetting(%q) = false, want true", SettingAutoPublish)
	}
	if IsKnownSetting("unknown_key") {
		t.Error("IsKnownSetting(unknown_key) = true, want false")
	}
}

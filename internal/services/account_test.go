package services

import (
	"testing"
	"time"
)

func TestAccountSummarySnapshot(t *testing.T) {
	a := NewAccountCache()
	a.AccountSummary("NetLiquidation", "100000.00", "USD")
	a.AccountSummary("BuyingPower", "400000.00", "USD")

	s := a.Summary()
	if s["NetLiquidation"] != "100000.00" || s["BuyingPower"] != "400000.00" {
		t.Errorf("账户摘要快照错误: %v", s)
	}

	// 快照是副本，外部修改不影响缓存
	s["NetLiquidation"] = "0"
	if a.Summary()["NetLiquidation"] != "100000.00" {
		t.Error("Summary 应返回副本")
	}
}

func TestClockSkew(t *testing.T) {
	a := NewAccountCache()
	if _, ok := a.ClockSkew(); ok {
		t.Error("未校时前不应有偏差值")
	}

	a.CurrentTime(time.Now().Unix())
	skew, ok := a.ClockSkew()
	if !ok {
		t.Fatal("校时后应有偏差值")
	}
	if skew > 2*time.Second || skew < -2*time.Second {
		t.Errorf("对齐时钟的偏差应接近 0: %v", skew)
	}
}

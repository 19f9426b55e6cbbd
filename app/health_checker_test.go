package app

import "testing"

type fakeChecker struct {
	result *SubsystemHealth
}

func (f fakeChecker) Check() *SubsystemHealth { return f.result }

func TestHealthCheckerAllHealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})
	hc.RegisterSubsystem("heartbeats", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})

	report := hc.CheckAll()
	if report.OverallStatus != StatusHealthy {
		t.Fatalf("want %s, got %s", StatusHealthy, report.OverallStatus)
	}
	if len(report.Subsystems) != 2 {
		t.Fatalf("want 2 subsystem reports, got %d", len(report.Subsystems))
	}
	if !hc.IsHealthy() {
		t.Fatal("IsHealthy should be true when every subsystem is healthy")
	}
}

func TestHealthCheckerDegradedDoesNotMaskUnhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusUnhealthy, Message: "disk full"}})
	hc.RegisterSubsystem("heartbeats", fakeChecker{&SubsystemHealth{Status: StatusDegraded}})

	report := hc.CheckAll()
	if report.OverallStatus != StatusUnhealthy {
		t.Fatalf("want %s, got %s", StatusUnhealthy, report.OverallStatus)
	}
}

func TestHealthCheckerDegradedWithoutUnhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})
	hc.RegisterSubsystem("reorg", fakeChecker{&SubsystemHealth{Status: StatusDegraded}})

	report := hc.CheckAll()
	if report.OverallStatus != StatusDegraded {
		t.Fatalf("want %s, got %s", StatusDegraded, report.OverallStatus)
	}
	if hc.IsHealthy() {
		t.Fatal("IsHealthy should be false when a subsystem is degraded")
	}
}

func TestHealthCheckerNilResultIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("weird", fakeChecker{nil})

	report := hc.CheckAll()
	if report.OverallStatus != StatusUnhealthy {
		t.Fatalf("want %s, got %s", StatusUnhealthy, report.OverallStatus)
	}
	if report.Subsystems[0].Name != "weird" {
		t.Fatalf("want subsystem name %q, got %q", "weird", report.Subsystems[0].Name)
	}
}

func TestHealthCheckerCheckSubsystem(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})

	health, err := hc.CheckSubsystem("store")
	if err != nil {
		t.Fatalf("CheckSubsystem: %v", err)
	}
	if health.Status != StatusHealthy {
		t.Fatalf("want %s, got %s", StatusHealthy, health.Status)
	}

	if _, err := hc.CheckSubsystem("missing"); err == nil {
		t.Fatal("expected error for unregistered subsystem")
	}
}

func TestHealthCheckerRegisterReplaces(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusUnhealthy}})

	if len(hc.SortedSubsystems()) != 1 {
		t.Fatalf("re-registering the same name should not duplicate it, got %v", hc.SortedSubsystems())
	}
	report := hc.CheckAll()
	if report.OverallStatus != StatusUnhealthy {
		t.Fatal("expected the replaced checker's result to take effect")
	}
}

func TestHealthCheckerSortedSubsystems(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterSubsystem("reorg", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})
	hc.RegisterSubsystem("heartbeats", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})
	hc.RegisterSubsystem("store", fakeChecker{&SubsystemHealth{Status: StatusHealthy}})

	got := hc.SortedSubsystems()
	want := []string{"heartbeats", "reorg", "store"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}

func TestHealthCheckerNoSubsystemsIsHealthy(t *testing.T) {
	hc := NewHealthChecker()
	if !hc.IsHealthy() {
		t.Fatal("a checker with no registered subsystems should report healthy")
	}
}

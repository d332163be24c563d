package metrics

import (
	"testing"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector()

	if collector == nil {
		t.Fatal("NewCollector() returned nil")
	}

	metrics := collector.GetMetrics()
	if metrics.SessionsCreated != 0 {
		t.Errorf("Expected 0 sessions created initially, got %d", metrics.SessionsCreated)
	}

	if metrics.StartTime.IsZero() {
		t.Error("Expected start time to be set")
	}
}

func TestSessionMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementSessionCreated()
	collector.IncrementSessionCreated()
	collector.IncrementSessionCreated()

	metrics := collector.GetMetrics()
	if metrics.SessionsCreated != 3 {
		t.Errorf("Expected 3 sessions created, got %d", metrics.SessionsCreated)
	}

	if metrics.ActiveSessions != 3 {
		t.Errorf("Expected 3 active sessions, got %d", metrics.ActiveSessions)
	}

	if metrics.MaxConcurrentSessions != 3 {
		t.Errorf("Expected max concurrent sessions 3, got %d", metrics.MaxConcurrentSessions)
	}

	collector.IncrementSessionClosed()
	metrics = collector.GetMetrics()

	if metrics.SessionsClosed != 1 {
		t.Errorf("Expected 1 session closed, got %d", metrics.SessionsClosed)
	}

	if metrics.ActiveSessions != 2 {
		t.Errorf("Expected 2 active sessions after close, got %d", metrics.ActiveSessions)
	}

	// High-water mark does not drop when sessions close.
	if metrics.MaxConcurrentSessions != 3 {
		t.Errorf("Expected max concurrent sessions to remain 3, got %d", metrics.MaxConcurrentSessions)
	}
}

func TestStreamAndPatchMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementStreamStarted()
	collector.IncrementStreamStarted()
	collector.IncrementStreamAborted()
	collector.IncrementPatchApplied()
	collector.IncrementPatchApplied()
	collector.IncrementPatchApplied()
	collector.IncrementPatchIgnored()
	collector.IncrementMalformedLine()

	metrics := collector.GetMetrics()

	if metrics.StreamsStarted != 2 {
		t.Errorf("Expected 2 streams started, got %d", metrics.StreamsStarted)
	}

	if metrics.StreamsAborted != 1 {
		t.Errorf("Expected 1 stream aborted, got %d", metrics.StreamsAborted)
	}

	if metrics.PatchesApplied != 3 {
		t.Errorf("Expected 3 patches applied, got %d", metrics.PatchesApplied)
	}

	if metrics.PatchesIgnored != 1 {
		t.Errorf("Expected 1 patch ignored, got %d", metrics.PatchesIgnored)
	}

	if metrics.MalformedLines != 1 {
		t.Errorf("Expected 1 malformed line, got %d", metrics.MalformedLines)
	}
}

func TestTokenMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementTokenIssued()
	collector.IncrementTokenIssued()
	collector.IncrementTokenVerified()
	collector.IncrementTokenFailure()

	metrics := collector.GetMetrics()

	if metrics.TokensIssued != 2 {
		t.Errorf("Expected 2 tokens issued, got %d", metrics.TokensIssued)
	}

	if metrics.TokensVerified != 1 {
		t.Errorf("Expected 1 token verified, got %d", metrics.TokensVerified)
	}

	if metrics.TokenFailures != 1 {
		t.Errorf("Expected 1 token failure, got %d", metrics.TokenFailures)
	}

	successRate := collector.GetTokenSuccessRate()
	expectedRate := 50.0 // 1 success out of 2 verification attempts
	if successRate != expectedRate {
		t.Errorf("Expected token success rate %.1f%%, got %.1f%%", expectedRate, successRate)
	}
}

func TestRenderMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementRenderCompleted()
	collector.IncrementRenderCompleted()
	collector.IncrementRenderCompleted()
	collector.IncrementRenderFault()

	metrics := collector.GetMetrics()

	if metrics.RendersCompleted != 3 {
		t.Errorf("Expected 3 renders completed, got %d", metrics.RendersCompleted)
	}

	if metrics.RenderFaults != 1 {
		t.Errorf("Expected 1 render fault, got %d", metrics.RenderFaults)
	}

	faultRate := collector.GetRenderFaultRate()
	expectedRate := 25.0 // 1 fault out of 4 total passes
	if faultRate != expectedRate {
		t.Errorf("Expected render fault rate %.1f%%, got %.1f%%", expectedRate, faultRate)
	}
}

func TestActionMetrics(t *testing.T) {
	collector := NewCollector()

	collector.IncrementActionExecuted()
	collector.IncrementActionExecuted()
	collector.IncrementActionFailure()

	metrics := collector.GetMetrics()

	if metrics.ActionsExecuted != 2 {
		t.Errorf("Expected 2 actions executed, got %d", metrics.ActionsExecuted)
	}

	if metrics.ActionFailures != 1 {
		t.Errorf("Expected 1 action failure, got %d", metrics.ActionFailures)
	}
}

func TestMemoryMetrics(t *testing.T) {
	collector := NewCollector()

	collector.UpdateMemoryUsage(1024*1024, 512*1024)
	collector.IncrementSessionCreated()
	collector.IncrementSessionCreated()

	metrics := collector.GetMetrics()

	if metrics.TotalMemoryUsage != 1024*1024 {
		t.Errorf("Expected total memory 1MB, got %d", metrics.TotalMemoryUsage)
	}

	if metrics.AverageSessionMemory != 512*1024 {
		t.Errorf("Expected average session memory 512KB, got %d", metrics.AverageSessionMemory)
	}

	efficiency := collector.GetMemoryEfficiency()
	expectedEff := float64(1024*1024) / float64(2)
	if efficiency != expectedEff {
		t.Errorf("Expected memory efficiency %.1f, got %.1f", expectedEff, efficiency)
	}
}

func TestCustomCounters(t *testing.T) {
	collector := NewCollector()

	collector.IncrementCustomCounter("catalog_reload")
	collector.IncrementCustomCounter("catalog_reload")
	collector.IncrementCustomCounter("journal_replay")

	counters := collector.GetCustomCounters()

	if counters["catalog_reload"] != 2 {
		t.Errorf("Expected catalog_reload count 2, got %d", counters["catalog_reload"])
	}

	if counters["journal_replay"] != 1 {
		t.Errorf("Expected journal_replay count 1, got %d", counters["journal_replay"])
	}
}

func TestMetricsReset(t *testing.T) {
	collector := NewCollector()

	collector.IncrementSessionCreated()
	collector.IncrementStreamStarted()
	collector.IncrementPatchApplied()
	collector.IncrementTokenIssued()
	collector.IncrementCustomCounter("test_counter")

	metrics := collector.GetMetrics()
	if metrics.SessionsCreated == 0 {
		t.Error("Expected non-zero sessions created before reset")
	}

	collector.Reset()

	metrics = collector.GetMetrics()
	if metrics.SessionsCreated != 0 {
		t.Errorf("Expected sessions created to be 0 after reset, got %d", metrics.SessionsCreated)
	}

	if metrics.StreamsStarted != 0 {
		t.Errorf("Expected streams started to be 0 after reset, got %d", metrics.StreamsStarted)
	}

	if metrics.PatchesApplied != 0 {
		t.Errorf("Expected patches applied to be 0 after reset, got %d", metrics.PatchesApplied)
	}

	counters := collector.GetCustomCounters()
	if len(counters) != 0 {
		t.Errorf("Expected custom counters to be empty after reset, got %d", len(counters))
	}
}

func TestRateCalculationsWithNoData(t *testing.T) {
	collector := NewCollector()

	if rate := collector.GetRenderFaultRate(); rate != 0.0 {
		t.Errorf("Expected 0%% fault rate with no renders, got %.1f%%", rate)
	}

	if rate := collector.GetTokenSuccessRate(); rate != 100.0 {
		t.Errorf("Expected 100%% success rate with no verifications, got %.1f%%", rate)
	}

	if eff := collector.GetMemoryEfficiency(); eff != 0.0 {
		t.Errorf("Expected 0 memory efficiency with no sessions, got %.1f", eff)
	}
}

func TestConcurrentAccess(t *testing.T) {
	collector := NewCollector()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			collector.IncrementSessionCreated()
			collector.IncrementPatchApplied()
			collector.IncrementRenderCompleted()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = collector.GetMetrics()
			_ = collector.GetCustomCounters()
		}
		done <- true
	}()

	<-done
	<-done

	metrics := collector.GetMetrics()
	if metrics.SessionsCreated != 100 {
		t.Errorf("Expected 100 sessions created, got %d", metrics.SessionsCreated)
	}

	if metrics.PatchesApplied != 100 {
		t.Errorf("Expected 100 patches applied, got %d", metrics.PatchesApplied)
	}
}

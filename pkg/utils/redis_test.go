package utils

import "testing"

func TestLiveClaimScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if liveClaimAcquireScript == nil || liveClaimReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

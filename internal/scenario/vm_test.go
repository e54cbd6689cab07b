package scenario

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

func runScenario(t *testing.T, source string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	scriptDir := filepath.Join(dir, "input/glu")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatal(err)
	}
	scriptPath := filepath.Join(scriptDir, "scenario.glu")
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	host, err := NewHost(dir, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	return dir, host.Run(context.Background(), scriptPath)
}

func TestRun_WritesSummaryAndLogs(t *testing.T) {
	dir, err := runScenario(t, `
		console.log("starting");
		var r = lancer.writePublicSummary({ok: true});
		if (r.err) { throw new Error(r.err); }
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	summary, err := os.ReadFile(filepath.Join(dir, "output/public_summary.json"))
	if err != nil {
		t.Fatalf("summary must be written: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(summary, &parsed); err != nil {
		t.Fatalf("summary must be JSON: %v", err)
	}
	if parsed["ok"] != true {
		t.Errorf("unexpected summary %v", parsed)
	}

	logs, err := os.ReadFile(filepath.Join(dir, "output/logs.json"))
	if err != nil {
		t.Fatalf("logs must be written: %v", err)
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal(logs, &entries); err != nil {
		t.Fatalf("logs must be JSON: %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("expected log and summary entries, got %d", len(entries))
	}
}

func TestRun_ScriptErrorPropagates(t *testing.T) {
	dir, err := runScenario(t, `throw new Error("scenario exploded");`)
	if err == nil {
		t.Fatal("expected script error")
	}
	// The log stream still lands for the private report.
	if _, statErr := os.Stat(filepath.Join(dir, "output/logs.json")); statErr != nil {
		t.Error("logs must be written even on failure")
	}
}

func TestRun_ReportError(t *testing.T) {
	dir, err := runScenario(t, `
		var r = lancer.reportError("invariant violated");
		if (r.err) { throw new Error(r.err); }
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	message, err := os.ReadFile(filepath.Join(dir, "output/error.txt"))
	if err != nil {
		t.Fatalf("error report must be written: %v", err)
	}
	if string(message) != "invariant violated" {
		t.Errorf("unexpected message %q", message)
	}
}

func TestRun_ClusterLifecycle(t *testing.T) {
	_, err := runScenario(t, `
		var builder = lancer.clusterBuilder();
		var built = builder.build();
		if (built.err) { throw new Error(built.err); }
		var cluster = built.ok;
		if (!cluster.isRunning()) { throw new Error("cluster must run"); }

		var validator = cluster.validatorAddress();
		var balance = cluster.getBalance("", validator);
		if (balance.err) { throw new Error(balance.err); }
		if (balance.ok <= 0) { throw new Error("validator unfunded"); }

		var wallet = lancer.wallet;
		var addr = wallet.generateKeypair();
		if (addr.err) { throw new Error(addr.err); }

		var tx = lancer.transaction();
		var amount = tx.u64("2500");
		if (amount.err) { throw new Error(amount.err); }
		// Only argument construction is exercised; the transaction is not
		// finished or executed before the cluster stops.
		var stopped = cluster.stop();
		if (stopped.err) { throw new Error(stopped.err); }
		var r = lancer.writePublicSummary({validator: validator});
		if (r.err) { throw new Error(r.err); }
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRun_UintNamespace(t *testing.T) {
	_, err := runScenario(t, `
		var sum = lancer.uint.add("340282366920938463463374607431768211455", "1");
		if (sum.err) { throw new Error(sum.err); }
		if (sum.ok !== "340282366920938463463374607431768211456") {
			throw new Error("u128 overflow must widen: " + sum.ok);
		}
		var checked = lancer.uint.checkedAdd("255", "1", 8);
		if (checked.err) { throw new Error(checked.err); }
		if (checked.ok !== null) { throw new Error("checked add must overflow"); }
		var wrapped = lancer.uint.wrappingAdd("255", "1", 8);
		if (wrapped.ok !== "0") { throw new Error("wrapping add mismatch"); }
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRun_WalletWithKeypairs(t *testing.T) {
	_, err := runScenario(t, `
		var a = lancer.wallet.generateKeypair();
		if (a.err) { throw new Error(a.err); }
		var seen = 0;
		var r = lancer.wallet.withKeypairs([a.ok], function (seeds) {
			seen = seeds.length;
		});
		if (r.err) { throw new Error(r.err); }
		if (seen !== 1) { throw new Error("expected one keypair"); }
		var missing = lancer.wallet.withKeypairs(["0xdead"], function () {});
		if (!missing.err) { throw new Error("unknown addresses must fail"); }
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

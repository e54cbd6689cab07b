// Package scenario hosts the embedded scripting VM a submission's scenario
// runs in. The VM is owned by a Host handle; capabilities are installed
// against that handle, never against process globals.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"

	"github.com/dominion-zone/dominion-lancer/internal/scenario/wallet"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
)

// MaxScriptSize bounds the scenario source.
const MaxScriptSize = 4 << 20

// Host owns one VM evaluating one scenario against one working directory.
type Host struct {
	vm         *goja.Runtime
	workingDir string
	log        *logger.Logger
	wallet     *wallet.TempWallet

	// logEntries accumulate into output/logs.json.
	logEntries []logEntry
}

type logEntry struct {
	Time    string      `json:"time"`
	Kind    string      `json:"kind"`
	Message interface{} `json:"message"`
}

// NewHost creates a VM bound to the working directory and installs the
// capability surface.
func NewHost(workingDir string, log *logger.Logger) (*Host, error) {
	h := &Host{
		vm:         goja.New(),
		workingDir: workingDir,
		log:        log,
	}
	h.vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if err := h.install(); err != nil {
		return nil, err
	}
	return h, nil
}

// appendLog records one entry for output/logs.json.
func (h *Host) appendLog(kind string, message interface{}) {
	h.logEntries = append(h.logEntries, logEntry{
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Kind:    kind,
		Message: message,
	})
}

// Run compiles and evaluates the scenario once, then persists the log
// stream. The context interrupts long-running scripts.
func (h *Host) Run(ctx context.Context, scenarioPath string) error {
	source, err := os.ReadFile(scenarioPath)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	if len(source) > MaxScriptSize {
		return fmt.Errorf("scenario exceeds maximum size of %d bytes", MaxScriptSize)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			h.vm.Interrupt("scenario cancelled")
		case <-done:
		}
	}()
	defer close(done)

	_, runErr := h.vm.RunScript("scenario.glu", string(source))
	if runErr != nil {
		h.appendLog("error", runErr.Error())
	}

	if err := h.writeLogs(); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("scenario: %w", runErr)
	}
	return nil
}

// writeLogs persists the accumulated log stream as output/logs.json.
func (h *Host) writeLogs() error {
	outputDir := filepath.Join(h.workingDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(h.logEntries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "logs.json"), data, 0o644); err != nil {
		return fmt.Errorf("write logs: %w", err)
	}
	return nil
}

// writePublicSummary persists the scenario's public summary.
func (h *Host) writePublicSummary(value interface{}) error {
	outputDir := filepath.Join(h.workingDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "public_summary.json"), data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// reportError persists a scenario-level failure as output/error.txt, the
// marker the runner maps to the error artifact.
func (h *Host) reportError(message string) error {
	outputDir := filepath.Join(h.workingDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "error.txt"), []byte(message), 0o644); err != nil {
		return fmt.Errorf("write error report: %w", err)
	}
	return nil
}

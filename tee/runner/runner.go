// Package runner executes one submission inside the enclave: it unwraps
// and decrypts the archive, unpacks it into a fresh working directory,
// drives the scripting-VM child process, collects the output trichotomy,
// and seals the reports.
package runner

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dominion-zone/dominion-lancer/internal/storage"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
	"github.com/dominion-zone/dominion-lancer/pkg/logger"
	"github.com/dominion-zone/dominion-lancer/tee/keys"
	"github.com/dominion-zone/dominion-lancer/tee/seal"
)

// ErrKilled is returned when a task's child process was cancelled by a
// replacement task.
var ErrKilled = errors.New("runner killed")

// Runner turns tasks into sealed responses.
type Runner struct {
	material *keys.Material
	sealer   *seal.Sealer
	encoder  *storage.Encoder
	// runnerPath is the scripting-VM host binary spawned per task.
	runnerPath string
	// frameworkDir is linked into each working tree as input/glu/lancer.
	frameworkDir string
	log          *logger.Logger
}

// New wires a runner from the enclave's key material and seal committee.
func New(material *keys.Material, sealer *seal.Sealer, encoder *storage.Encoder, runnerPath, frameworkDir string, log *logger.Logger) *Runner {
	return &Runner{
		material:     material,
		sealer:       sealer,
		encoder:      encoder,
		runnerPath:   runnerPath,
		frameworkDir: frameworkDir,
		log:          log,
	}
}

// Run processes one task to completion. The context cancels the scenario
// child; decrypt and scenario failures come back as errors and are never
// re-queued.
func (r *Runner) Run(ctx context.Context, task *transport.LancerRunTask) (*transport.LancerRunResponse, error) {
	taskID := uuid.New().String()
	log := r.log.WithField("task", taskID).WithField("finding_id", task.FindingID.String())

	plaintext, err := r.decrypt(task)
	if err != nil {
		return nil, err
	}

	workingDir, err := r.prepare(plaintext)
	if err != nil {
		return nil, err
	}
	// The working tree is destroyed after output collection; failures are
	// harmless leftovers in the enclave tmpfs.
	defer func() {
		go os.RemoveAll(workingDir)
	}()

	log.Infof("running scenario in %s", workingDir)
	output, err := r.execute(ctx, workingDir)
	if err != nil {
		return nil, err
	}

	return r.respond(task, output)
}

// decrypt unwraps the submission key and opens the archive:
// RSA-OAEP(SHA-256) for the key, AES-256-GCM with the submission iv for the
// payload.
func (r *Runner) decrypt(task *transport.LancerRunTask) ([]byte, error) {
	key, err := r.material.UnwrapKey(task.EncryptedKey)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	if len(task.IV) != gcm.NonceSize() {
		return nil, fmt.Errorf("iv must be %d bytes", gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, task.IV, task.EncryptedFile, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt submission: %w", err)
	}
	return plaintext, nil
}

// prepare unpacks the archive into a fresh temporary directory, validates
// the required layout, and links the framework tree so scenario imports
// resolve.
func (r *Runner) prepare(plaintext []byte) (string, error) {
	workingDir, err := os.MkdirTemp("", "lancer-task-")
	if err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(workingDir) }

	if err := unpackTar(plaintext, workingDir); err != nil {
		cleanup()
		return "", err
	}

	// A submitted output tree would shadow the scenario's own results.
	if _, err := os.Stat(filepath.Join(workingDir, "output")); err == nil {
		if err := os.RemoveAll(filepath.Join(workingDir, "output")); err != nil {
			cleanup()
			return "", fmt.Errorf("remove pre-existing output: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(workingDir, "input")); err != nil {
		cleanup()
		return "", fmt.Errorf("input directory not found")
	}
	if _, err := os.Stat(filepath.Join(workingDir, "input/glu/scenario.glu")); err != nil {
		cleanup()
		return "", fmt.Errorf("input/glu/scenario.glu not found")
	}

	framework, err := filepath.Abs(r.frameworkDir)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("resolve framework dir: %w", err)
	}
	if err := os.Symlink(framework, filepath.Join(workingDir, "input/glu/lancer")); err != nil {
		cleanup()
		return "", fmt.Errorf("link framework: %w", err)
	}
	return workingDir, nil
}

// execute runs the scripting-VM child against the working directory. A
// cancelled context kills the child and surfaces ErrKilled.
func (r *Runner) execute(ctx context.Context, workingDir string) (*Output, error) {
	cmd := exec.CommandContext(ctx, r.runnerPath, workingDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ErrKilled
		}
		return nil, fmt.Errorf("runner failed: %w", err)
	}
	return collectOutput(workingDir)
}

// respond seals the collected reports. The three artifacts of one finding
// share the finding id as additional data and differ solely in the
// identity's trailing tag byte.
func (r *Runner) respond(task *transport.LancerRunTask, output *Output) (*transport.LancerRunResponse, error) {
	aad := task.FindingID.Bytes()

	sealOne := func(report []byte, tag byte) (*transport.EncryptedBlob, error) {
		if report == nil {
			return nil, nil
		}
		sealed, err := r.sealer.Seal(seal.ReportIdentity(task.FindingID, tag), report, aad)
		if err != nil {
			return nil, err
		}
		data, err := sealed.Marshal()
		if err != nil {
			return nil, err
		}
		return &transport.EncryptedBlob{
			Sealed: data,
			BlobID: r.encoder.BlobID(data),
		}, nil
	}

	publicBlob, err := sealOne(output.PublicReport, seal.TagPublic)
	if err != nil {
		return nil, fmt.Errorf("seal public report: %w", err)
	}
	privateBlob, err := sealOne(output.PrivateReport, seal.TagPrivate)
	if err != nil {
		return nil, fmt.Errorf("seal private report: %w", err)
	}
	errorBlob, err := sealOne(output.ErrorMessage, seal.TagError)
	if err != nil {
		return nil, fmt.Errorf("seal error message: %w", err)
	}

	return &transport.LancerRunResponse{
		PublicReport:  publicBlob,
		PrivateReport: privateBlob,
		ErrorMessage:  errorBlob,
		Signature:     task.SubmissionHash(),
	}, nil
}

package runner

import (
	"fmt"
	"os"
	"path/filepath"
)

// Output is the runner's result trichotomy. Exactly one shape is populated:
// an error message, a public report alone, or a public/private pair.
type Output struct {
	PublicReport  []byte
	PrivateReport []byte
	ErrorMessage  []byte
}

// collectOutput inspects the working tree after a normal child exit.
//
//   - output/error.txt present: the scenario failed; its message is the only
//     artifact.
//   - output/public_summary.json present: the public report carries only the
//     summary; the private report carries the full input tree plus output,
//     including output/logs.json.
//   - neither: the whole working directory is published as public.
func collectOutput(workingDir string) (*Output, error) {
	errorPath := filepath.Join(workingDir, "output/error.txt")
	if _, err := os.Stat(errorPath); err == nil {
		message, err := os.ReadFile(errorPath)
		if err != nil {
			return nil, fmt.Errorf("read error report: %w", err)
		}
		return &Output{ErrorMessage: message}, nil
	}

	summaryPath := filepath.Join(workingDir, "output/public_summary.json")
	if _, err := os.Stat(summaryPath); err == nil {
		private := newTarBuilder()
		if err := private.addDir(filepath.Join(workingDir, "input"), workingDir); err != nil {
			return nil, fmt.Errorf("archive input tree: %w", err)
		}
		if err := private.addDir(filepath.Join(workingDir, "output"), workingDir); err != nil {
			return nil, fmt.Errorf("archive output tree: %w", err)
		}
		privateTar, err := private.finish()
		if err != nil {
			return nil, err
		}

		public := newTarBuilder()
		if err := public.addDirEntry("output"); err != nil {
			return nil, err
		}
		if err := public.addFileAs(summaryPath, "output/public_summary.json"); err != nil {
			return nil, err
		}
		publicTar, err := public.finish()
		if err != nil {
			return nil, err
		}

		return &Output{PublicReport: publicTar, PrivateReport: privateTar}, nil
	}

	public := newTarBuilder()
	if err := public.addDir(workingDir, workingDir); err != nil {
		return nil, fmt.Errorf("archive working directory: %w", err)
	}
	publicTar, err := public.finish()
	if err != nil {
		return nil, err
	}
	return &Output{PublicReport: publicTar}, nil
}

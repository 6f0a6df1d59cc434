package captcha

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// ManualSolver persists the captcha image, opens it in the host OS's default
// viewer, and blocks on a human-typed line. It never returns an error; an
// empty result is a valid (failing) answer the caller must detect.
//
// The read on In is the only unbounded wait in the system: there is no
// timeout on human input.
type ManualSolver struct {
	// Dir receives the captcha image written for the operator.
	Dir string

	In     io.Reader
	Out    io.Writer
	Opener func(path string) error // nil means OpenViewer

	logger *zap.Logger
}

// NewManualSolver creates a ManualSolver prompting on stdin/stdout.
func NewManualSolver(dir string, logger *zap.Logger) *ManualSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualSolver{
		Dir:    dir,
		In:     os.Stdin,
		Out:    os.Stdout,
		logger: logger,
	}
}

func (s *ManualSolver) Source() string { return "manual" }

func (s *ManualSolver) Solve(ctx context.Context, image []byte) (string, error) {
	log := s.logger
	if log == nil {
		log = zap.NewNop()
	}

	path := filepath.Join(s.Dir, "captcha_manual.png")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		log.Warn("could not write captcha image for manual entry", zap.Error(err))
	} else {
		opener := s.Opener
		if opener == nil {
			opener = OpenViewer
		}
		if err := opener(path); err != nil {
			log.Warn("could not open captcha image viewer",
				zap.String("path", path), zap.Error(err))
		}
	}

	fmt.Fprintf(s.Out, "\nCaptcha image saved to: %s\n", path)
	fmt.Fprint(s.Out, "Enter captcha text: ")

	reader := bufio.NewReader(s.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		// EOF with nothing typed: treat as an empty answer.
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

// OpenViewer opens path with the host OS's default image viewer.
func OpenViewer(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

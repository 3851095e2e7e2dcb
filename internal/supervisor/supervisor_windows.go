package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/config"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/hooks"
)

// Options configures Run.
type Options struct {
	AgentPath string
	Args      []string

	Store *config.Store
	Sink  hooks.Sink

	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer

	InputDump  io.Writer
	OutputDump io.Writer

	ReadTimeout  time.Duration
	DrainTimeout time.Duration
}

// Run is not supported on Windows, which has no Unix pseudo-terminals.
func Run(ctx context.Context, opts Options) (int, error) {
	return 1, errors.New("cursor-wrapper requires a Unix pseudo-terminal")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lox/homepoker/internal/fileutil"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/phh"
	"github.com/lox/homepoker/internal/storage"
)

// HandHistoryCmd is the root command for PHH utilities.
type HandHistoryCmd struct {
	Export  HandHistoryExportCmd  `cmd:"export" help:"Export a stored session as a PHH session file"`
	Summary HandHistorySummaryCmd `cmd:"summary" help:"Summarize a PHH session file"`
}

// HandHistoryExportCmd writes a session from the repository to disk.
type HandHistoryExportCmd struct {
	RepositoryFlags

	Session   string `arg:"" help:"Session id"`
	Output    string `kong:"short='o',type='path',help='Output file (default <session>.phhs)'"`
	HoleCards bool   `kong:"name='hole-cards',help='Include every hole card, not only those shown down'"`
}

func (c *HandHistoryExportCmd) Run() error {
	ctx := context.Background()
	cfg, repo, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	n, err := c.run(ctx, repo, cfg.History.Variant)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d hands to %s\n", n, c.output())
	return nil
}

func (c *HandHistoryExportCmd) output() string {
	if c.Output != "" {
		return c.Output
	}
	return c.Session + ".phhs"
}

func (c *HandHistoryExportCmd) run(ctx context.Context, repo storage.HandRepository, variant string) (int, error) {
	hands, err := repo.GetHandsForSession(ctx, c.Session)
	if err != nil {
		return 0, err
	}
	if len(hands) == 0 {
		return 0, fmt.Errorf("no hands stored for session %s", c.Session)
	}
	err = fileutil.WriteAtomic(c.output(), 0o644, func(w io.Writer) error {
		return handhistory.WriteSession(w, hands, variant, c.HoleCards)
	})
	if err != nil {
		return 0, err
	}
	return len(hands), nil
}

// HandHistorySummaryCmd lists the hands in a session file.
type HandHistorySummaryCmd struct {
	File string `arg:"" name:"file" type:"existingfile" help:"Path to a .phhs session file"`
}

func (c *HandHistorySummaryCmd) Run() error {
	return c.run(os.Stdout)
}

func (c *HandHistorySummaryCmd) run(w io.Writer) error {
	if c.File == "" {
		return errors.New("hand-history summary requires a file path")
	}
	f, err := os.Open(filepath.Clean(c.File))
	if err != nil {
		return err
	}
	defer f.Close()

	hands, err := phh.DecodeSession(f)
	if err != nil {
		return err
	}
	if len(hands) == 0 {
		return fmt.Errorf("no hands found in %s", c.File)
	}
	return renderPHHSummary(w, filepath.Base(c.File), hands)
}

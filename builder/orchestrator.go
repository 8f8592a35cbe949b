// Package builder implements the per-machine job orchestrator: checkout,
// sequential build scripts, and board-concurrent run scripts, supervised
// with cancellation and an aggregated terminal outcome.
package builder

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/embj-org/ej/builder/checkout"
	"github.com/embj-org/ej/internal/config"
	"github.com/embj-org/ej/internal/ejerr"
	"github.com/embj-org/ej/logger"
)

// Outcome aggregates every board-config's log (and, for Run, result) output
// produced by one Build or Run invocation.
type Outcome struct {
	Success      bool
	Logs         map[string]string // "board/config" -> log text
	Results      map[string]string // "board/config" -> result text (Run only)
	ErrorSummary string
}

// Builder orchestrates build/run scripts across a BuilderConfig's boards.
// It processes one job at a time; there is no internal queueing.
type Builder struct {
	cfg        *config.BuilderConfig
	configPath string
	log        logger.Logger
	checkout   checkout.Checkout
	workDir    string // shared source tree, re-checked-out per job
	controlDir string // scratch directory for per-script control sockets
}

func New(cfg *config.BuilderConfig, configPath string, log logger.Logger, co checkout.Checkout, workDir, controlDir string) *Builder {
	return &Builder{
		cfg:        cfg,
		configPath: configPath,
		log:        log,
		checkout:   co,
		workDir:    workDir,
		controlDir: controlDir,
	}
}

func boardConfigKey(boardName, configName string) string {
	return boardName + "/" + configName
}

// RunBuild performs the checkout once, then runs every board's build
// scripts strictly sequentially. A non-zero exit stops the current board's
// remaining configs and skips every subsequent board, but logs collected so
// far are still returned.
func (b *Builder) RunBuild(ctx context.Context, remoteURL, commitHash, fetchToken string) Outcome {
	logs := map[string]string{}

	if err := b.checkout.Checkout(b.workDir, remoteURL, commitHash, fetchToken); err != nil {
		return Outcome{Logs: logs, ErrorSummary: err.Error()}
	}

	for _, board := range b.cfg.Boards {
		for _, bc := range board.Configs {
			select {
			case <-ctx.Done():
				return Outcome{Logs: logs, ErrorSummary: ejerr.Cancelled.Error()}
			default:
			}

			out := runScript(ctx, b.log, "build", bc.BuildScript, b.configPath, board, bc, b.controlDir)
			logs[boardConfigKey(board.Name, bc.Name)] = out.log
			if !out.success {
				return Outcome{
					Logs:         logs,
					ErrorSummary: fmt.Sprintf("%s/%s: %v", board.Name, bc.Name, ejerr.ScriptFailed),
				}
			}
		}
	}

	return Outcome{Success: true, Logs: logs}
}

// RunRun performs the checkout once, then runs every board's run scripts
// concurrently across boards and sequentially within a board (a board is
// physical hardware, not shareable across its own configs). A config's
// failure does not abort its siblings or other boards; the overall outcome
// fails if any config failed.
func (b *Builder) RunRun(ctx context.Context, remoteURL, commitHash, fetchToken string) Outcome {
	logs := map[string]string{}
	results := map[string]string{}

	if err := b.checkout.Checkout(b.workDir, remoteURL, commitHash, fetchToken); err != nil {
		return Outcome{Logs: logs, Results: results, ErrorSummary: err.Error()}
	}

	var mu sync.Mutex
	anyFailed := false
	var errSumm string

	g, _ := errgroup.WithContext(ctx)
	for _, board := range b.cfg.Boards {
		board := board
		g.Go(func() error {
			for _, bc := range board.Configs {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				out := runScript(ctx, b.log, "run", bc.RunScript, b.configPath, board, bc, b.controlDir)

				mu.Lock()
				logs[boardConfigKey(board.Name, bc.Name)] = out.log
				if out.result != "" {
					results[boardConfigKey(board.Name, bc.Name)] = out.result
				}
				if !out.success {
					anyFailed = true
					if errSumm == "" {
						errSumm = fmt.Sprintf("%s/%s: %v", board.Name, bc.Name, ejerr.ScriptFailed)
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return Outcome{Success: !anyFailed, Logs: logs, Results: results, ErrorSummary: errSumm}
}

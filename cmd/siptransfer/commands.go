package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/franksops/siptransfer/config"
	"github.com/franksops/siptransfer/engine"
	"github.com/franksops/siptransfer/executor"
	"github.com/franksops/siptransfer/report"
	"github.com/franksops/siptransfer/store"
	"github.com/franksops/siptransfer/ui"
)

// TransferCmd submits one job per target and waits for all of them.
type TransferCmd struct {
	Targets []string `arg:"" name:"target" help:"SIP paths, relative to the source root."`
	Workers int      `help:"Number of parallel transfers. Overrides the configuration."`
	TUI     string   `name:"tui" enum:"auto,on,off" default:"auto" help:"Show the progress UI (auto, on, off). Auto enables it on a terminal."`
}

func (c *TransferCmd) useTUI() bool {
	switch c.TUI {
	case "on":
		return true
	case "off":
		return false
	default:
		return term.IsTerminal(int(os.Stdout.Fd()))
	}
}

func (c *TransferCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}

	tui := c.useTUI()
	logger, closeLog, err := newLogger(cfg, tui)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer st.Close()

	jobs, err := c.buildJobs(cfg, st, logger)
	if err != nil {
		return err
	}

	jobChan := make(engine.JobChannel, len(jobs))
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	pool := engine.NewWorkerPool(ctx, jobChan, nil)
	pool.SetWorkerCount(cfg.Workers)

	done := make(chan struct{})
	var group errgroup.Group
	group.Go(func() error {
		defer close(done)
		pool.Wait()
		return nil
	})

	if tui {
		maxWorkers := max(cfg.Workers, len(jobs))
		snapshot := func() *ui.UIState {
			records := make([]*report.Record, 0, len(jobs))
			for _, job := range jobs {
				records = append(records, job.Report.Snapshot())
			}
			return ui.StateFromRecords(records, pool.WorkerCount(), maxWorkers)
		}
		scale := func(delta int) {
			pool.SetWorkerCount(pool.WorkerCount() + delta)
		}
		program := tea.NewProgram(ui.NewTUIModel(snapshot(), scale), tea.WithAltScreen())

		group.Go(func() error {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					state := snapshot()
					state.Done = true
					program.Send(ui.TUIUpdateMsg{State: state})
					return nil
				case <-ticker.C:
					program.Send(ui.TUIUpdateMsg{State: snapshot()})
				}
			}
		})
		group.Go(func() error {
			_, err := program.Run()
			// leaving the UI cancels whatever is still running
			pool.Stop()
			return err
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("progress UI failed: %w", err)
	}

	return summarize(os.Stdout, jobs)
}

func (c *TransferCmd) buildJobs(cfg *config.Config, st store.Store, logger *slog.Logger) ([]*engine.Job, error) {
	targets := make([]engine.Target, 0, len(c.Targets))
	for _, rel := range c.Targets {
		target, err := engine.NewTarget(cfg.SourceRoot, rel)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	runner := executor.New()
	client := newClient(cfg, runner)
	manager := newManager(cfg, client, runner)
	settings := jobSettings(cfg)
	tracker := engine.NewTracker(st, engine.DefaultCheckpointConfig, logger)

	jobs := make([]*engine.Job, 0, len(targets))
	for _, target := range targets {
		r := report.New(target.Path)
		opts := []engine.JobOption{
			engine.WithReport(r),
			engine.WithPush(tracker.Track(r)),
			engine.WithLogger(logger),
			engine.WithVerifier(engine.NewVerifier(runtime.NumCPU())),
		}
		if !cfg.Local {
			opts = append(opts, engine.WithClient(client))
		}
		jobs = append(jobs, engine.NewJob(engine.TransferConfig{Target: target}, settings, manager, opts...))

		if err := tracker.Save(r); err != nil {
			logger.Warn("failed to save report", "token", r.Token, "error", err)
		}
		logger.Info("job submitted", "token", r.Token, "target", target.Path)
	}
	return jobs, nil
}

// summarize prints one line per job and fails if any job did not succeed.
func summarize(w io.Writer, jobs []*engine.Job) error {
	failed := 0
	for _, job := range jobs {
		status := "success"
		if success, ok := job.Report.Success(); !ok {
			status = "not started"
			failed++
		} else if !success {
			status = "failed"
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", job.Report.Token, job.Config.Target.Path, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfer(s) failed", failed, len(jobs))
	}
	return nil
}

// StatusCmd prints a stored report, or lists all of them without a token.
type StatusCmd struct {
	Token string `arg:"" optional:"" help:"Job token printed by the transfer command."`
}

func (c *StatusCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer st.Close()

	if c.Token == "" {
		return listReports(os.Stdout, st)
	}

	rec, err := st.GetReport(c.Token)
	if errors.Is(err, store.ErrReportNotFound) {
		return fmt.Errorf("no report for token %q", c.Token)
	}
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, rec)
}

// listReports prints token, target, state and percentage of every stored report.
func listReports(w io.Writer, st store.Store) error {
	tokens, err := st.Tokens()
	if err != nil {
		return err
	}
	for _, token := range tokens {
		rec, err := st.GetReport(token)
		if err != nil {
			return err
		}
		state := string(rec.Progress.Status)
		if rec.Data.Success != nil {
			state = "failed"
			if *rec.Data.Success {
				state = "success"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\n", rec.Token, rec.Target, state, rec.Progress.Numeric)
	}
	return nil
}

// VersionCmd prints tool versions and the effective settings.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	return printVersion(context.Background(), os.Stdout, cfg, executor.New())
}

func printVersion(ctx context.Context, w io.Writer, cfg *config.Config, runner executor.Runner) error {
	sshVersion, rsyncVersion := toolVersions(ctx, runner)
	return writeJSON(w, map[string]any{
		"ssh":      sshVersion,
		"rsync":    rsyncVersion,
		"settings": cfg.Settings(),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

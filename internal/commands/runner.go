package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/index"
	"github.com/starford/roamorg/internal/mode"
	"github.com/starford/roamorg/internal/models"
	"github.com/starford/roamorg/internal/organize"
	"github.com/starford/roamorg/internal/settings"
)

// Command names.
const (
	CmdValidate     = "validate"
	CmdMkdirs       = "mkdirs"
	CmdTopIndex     = "top-index"
	CmdRelocate     = "relocate"
	CmdDelete       = "delete"
	CmdUpdateMOCs   = "update-mocs"
	CmdRefBacklinks = "ref-backlinks"
	CmdMode         = "mode"
	CmdSync         = "sync"
	CmdFind         = "find"
	CmdSearch       = "search"
)

// Runner executes commands one at a time.
type Runner struct {
	mu     sync.Mutex
	svc    *organize.Service
	mode   *mode.Controller
	idx    index.Reader
	roam   settings.Roam
	resync func() error
	notify func(Status)
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithResync sets the function that brings the index up to date after a
// command changed files.
func WithResync(fn func() error) Option {
	return func(r *Runner) { r.resync = fn }
}

// WithNotifier sets a callback receiving every Status.
func WithNotifier(fn func(Status)) Option {
	return func(r *Runner) { r.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner.
func NewRunner(svc *organize.Service, ctrl *mode.Controller, idx index.Reader, roam settings.Roam, opts ...Option) *Runner {
	r := &Runner{
		svc:    svc,
		mode:   ctrl,
		idx:    idx,
		roam:   roam,
		resync: func() error { return nil },
		notify: func(Status) {},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run serializes fn, resyncs the index when mutating, and reports.
func (r *Runner) run(cmd string, mutating bool, fn func() Status) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := fn()
	st.Command = cmd
	if mutating {
		if err := r.resync(); err != nil {
			r.logger.Warn("commands: resync failed", slog.String("command", cmd), slog.String("error", err.Error()))
			if st.Level == LevelInfo {
				st.Level = LevelWarn
				st.Message += fmt.Sprintf(" (index resync failed: %v)", err)
			}
		}
	}

	attrs := []any{slog.String("command", cmd), slog.String("level", string(st.Level))}
	switch st.Level {
	case LevelError:
		r.logger.Error("commands: finished", append(attrs, slog.String("message", st.Message))...)
	case LevelWarn:
		r.logger.Warn("commands: finished", append(attrs, slog.String("message", st.Message))...)
	default:
		r.logger.Info("commands: finished", attrs...)
	}
	r.notify(st)
	return st
}

// gated wraps fn so it only runs while the mode is enabled.
func (r *Runner) gated(cmd string, fn func() Status) Status {
	return r.run(cmd, true, func() Status {
		if err := r.mode.Gate(); err != nil {
			return failure(cmd, err)
		}
		return fn()
	})
}

// Validate reports on every setting.
func (r *Runner) Validate(_ context.Context) Status {
	return r.run(CmdValidate, false, func() Status {
		rep, err := r.roam.Check()
		if err != nil {
			return failure(CmdValidate, err)
		}
		text := strings.TrimRight(rep.String(), "\n")
		if !rep.OK {
			return Status{Level: LevelError, Message: text, Details: rep}
		}
		return info(CmdValidate, text, rep)
	})
}

// MakeDirs creates the configured directories.
func (r *Runner) MakeDirs(ctx context.Context) Status {
	return r.run(CmdMkdirs, false, func() Status {
		created, err := r.svc.CreateDirectories(ctx)
		if err != nil {
			return failure(CmdMkdirs, err)
		}
		if len(created) == 0 {
			return info(CmdMkdirs, "All configured directories exist", created)
		}
		return info(CmdMkdirs, "Created "+strings.Join(created, ", "), created)
	})
}

// TopIndex returns the top index file, creating it when missing.
func (r *Runner) TopIndex(ctx context.Context) Status {
	return r.run(CmdTopIndex, true, func() Status {
		res, err := r.svc.TopIndex(ctx)
		if err != nil {
			return failure(CmdTopIndex, err)
		}
		if res.Created {
			return info(CmdTopIndex, "Created top index "+res.AbsPath, res)
		}
		return info(CmdTopIndex, res.AbsPath, res)
	})
}

// Relocate relocates the entry at pos.
func (r *Runner) Relocate(ctx context.Context, pos models.Position) Status {
	return r.gated(CmdRelocate, func() Status {
		res, err := r.svc.Relocate(ctx, pos)
		if err != nil {
			return failure(CmdRelocate, err)
		}
		return info(CmdRelocate, fmt.Sprintf("Relocated %q to %s, entry moved to %s", res.Title, res.NewPath, res.Target), res)
	})
}

// Delete deletes the entry at pos and its node.
func (r *Runner) Delete(ctx context.Context, pos models.Position) Status {
	return r.gated(CmdDelete, func() Status {
		res, err := r.svc.Delete(ctx, pos)
		if err != nil {
			return failure(CmdDelete, err)
		}
		msg := fmt.Sprintf("Deleted %q (%s)", res.Title, res.File)
		if res.RemovedDir != "" {
			msg += " and " + res.RemovedDir
		}
		return info(CmdDelete, msg, res)
	})
}

// UpdateMOCs refreshes the MOC counters and backlinks.
func (r *Runner) UpdateMOCs(ctx context.Context) Status {
	return r.gated(CmdUpdateMOCs, func() Status {
		res, err := r.svc.UpdateMOCs(ctx)
		if err != nil {
			return failure(CmdUpdateMOCs, err)
		}
		return batchStatus(CmdUpdateMOCs, "MOCs updated", res)
	})
}

// RefBacklinks completes the literature note backlinks.
func (r *Runner) RefBacklinks(ctx context.Context) Status {
	return r.gated(CmdRefBacklinks, func() Status {
		res, err := r.svc.CompleteRefBacklinks(ctx)
		if err != nil {
			return failure(CmdRefBacklinks, err)
		}
		return batchStatus(CmdRefBacklinks, "Reference backlinks completed", res)
	})
}

func batchStatus(cmd, done string, res *organize.BatchResult) Status {
	summary := fmt.Sprintf("%d counter(s), %d backlink(s) inserted", len(res.Counters), res.TotalInserted())
	if res.Partial() {
		return warn(cmd, fmt.Sprintf("%s with %d warning(s): %s; %s",
			done, len(res.Warnings), summary, strings.Join(res.Warnings, "; ")), res)
	}
	return info(cmd, done+": "+summary, res)
}

// ModeEnable switches the mode on.
func (r *Runner) ModeEnable(_ context.Context, anyDir bool) Status {
	return r.run(CmdMode, false, func() Status {
		return modeStatus(r.mode.Enable(anyDir))
	})
}

// ModeDisable switches the mode off.
func (r *Runner) ModeDisable(_ context.Context) Status {
	return r.run(CmdMode, false, func() Status {
		return modeStatus(r.mode.Disable())
	})
}

// ModeToggle flips the mode.
func (r *Runner) ModeToggle(_ context.Context, anyDir bool) Status {
	return r.run(CmdMode, false, func() Status {
		return modeStatus(r.mode.Toggle(anyDir))
	})
}

// ModeStatus reports the current mode.
func (r *Runner) ModeStatus(_ context.Context) Status {
	return r.run(CmdMode, false, func() Status {
		st, err := r.mode.State()
		if err != nil {
			return failure(CmdMode, err)
		}
		return info(CmdMode, "roamorg mode is "+string(st), mode.Result{State: st})
	})
}

func modeStatus(res mode.Result, err error) Status {
	if err != nil {
		st := failure(CmdMode, err)
		if errors.Is(err, apperr.ErrInvalidConfig) && res.Report != nil {
			st.Message = "roamorg mode stays disabled: " + strings.TrimRight(res.Report.String(), "\n")
		}
		st.Details = res
		return st
	}
	msg := "roamorg mode is " + string(res.State)
	if !res.Changed {
		msg += " (unchanged)"
	}
	if len(res.Added) > 0 {
		msg += "; templates added: " + strings.Join(res.Added, ", ")
	}
	return info(CmdMode, msg, res)
}

// Sync brings the index up to date with the files.
func (r *Runner) Sync(_ context.Context) Status {
	return r.run(CmdSync, false, func() Status {
		if err := r.resync(); err != nil {
			return failure(CmdSync, err)
		}
		return info(CmdSync, "Index synchronized", nil)
	})
}

// Find looks a node up by id.
func (r *Runner) Find(_ context.Context, id string) Status {
	return r.run(CmdFind, false, func() Status {
		n, err := r.idx.GetNode(id)
		if err != nil {
			return failure(CmdFind, err)
		}
		return info(CmdFind, fmt.Sprintf("%s: %s (%s:%d)", n.ID, n.Title, n.File, max(n.Pos, 1)), n)
	})
}

// Search searches node titles and tags.
func (r *Runner) Search(_ context.Context, query string, limit int) Status {
	return r.run(CmdSearch, false, func() Status {
		results, err := r.idx.Search(query, limit)
		if err != nil {
			return failure(CmdSearch, err)
		}
		if results == nil {
			results = []index.SearchResult{}
		}
		lines := make([]string, len(results))
		for i, res := range results {
			lines[i] = fmt.Sprintf("%s:%d  %s  [%s]", res.File, max(res.Pos, 1), res.Title, res.ID)
		}
		msg := fmt.Sprintf("%d result(s)", len(results))
		if len(lines) > 0 {
			msg += "\n" + strings.Join(lines, "\n")
		}
		return info(CmdSearch, msg, results)
	})
}

package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nvandessel/nudge/internal/config"
	"github.com/nvandessel/nudge/internal/keywords"
	"github.com/nvandessel/nudge/internal/library"
	"github.com/nvandessel/nudge/internal/logging"
	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/pipeline"
	"github.com/nvandessel/nudge/internal/session"
	"github.com/nvandessel/nudge/internal/store"
	"github.com/spf13/cobra"
)

// sessionsDir is the file-driver session directory inside .nudge.
const sessionsDir = "sessions"

// runtime is everything a command needs to evaluate interactions.
type runtime struct {
	root      string
	cfg       *config.NudgeConfig
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	provider  library.Provider
	file      *library.File // set when the library comes from a file
	pipeline  *pipeline.Pipeline
	sessions  *session.Registry
	sqlite    *store.SQLiteStore // nil with the file driver
}

// loadConfig reads --config when given, otherwise the layered defaults.
func loadConfig(cmd *cobra.Command) (*config.NudgeConfig, error) {
	root, _ := cmd.Flags().GetString("root")
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.NudgeConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadProvider serves the configured library file, or the built-in one.
func loadProvider(cfg *config.NudgeConfig, logger *slog.Logger) (library.Provider, *library.File, error) {
	if cfg.Library.Path == "" {
		return library.NewStatic(nil), nil, nil
	}
	f, err := library.NewFile(cfg.Library.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	if jsonLogs, _ := cmd.Flags().GetBool("log-json"); jsonLogs {
		logger = logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	}
	nudgeDir := store.LocalNudgePath(root)

	provider, file, err := loadProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	sched, err := models.NewScheduleConfiguration(cfg.Schedule.EveryNInteractions, cfg.Schedule.PhaseOverrides)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		root:      root,
		cfg:       cfg,
		logger:    logger,
		decisions: logging.NewDecisionLogger(nudgeDir, cfg.Logging.Level),
		provider:  provider,
		file:      file,
	}
	rt.pipeline = pipeline.New(pipeline.Options{
		Provider:             provider,
		Matcher:              keywords.NewMatcher(keywords.DefaultTables().Extend(cfg.Keywords.Synonyms, cfg.Keywords.StopWords)),
		ContextRules:         cfg.ContextRules(),
		Schedule:             sched,
		MaxActiveConstraints: cfg.Matching.MaxActiveConstraints,
		Timeout:              cfg.Matching.EvaluationTimeout,
		Logger:               logger,
		Decisions:            rt.decisions,
	})

	sessCfg := session.Config{Boost: cfg.Matching.SessionBoost}
	var st session.Store
	switch cfg.Store.Driver {
	case config.StoreFile:
		dir := cfg.Store.Path
		if dir == "" {
			dir = filepath.Join(nudgeDir, sessionsDir)
		}
		fs, err := session.NewFileStore(dir, sessCfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		st = fs
	default:
		path := cfg.Store.Path
		if path == "" {
			path = store.DefaultDBPath(root)
		}
		db, err := store.NewSQLiteStore(path, sessCfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.sqlite = db
		st = db
	}
	rt.sessions = session.NewRegistry(sessCfg, st)

	logger.Debug("runtime ready",
		"root", root, "library", rt.pipeline.Library().Source(),
		"store", cfg.Store.Driver, "every_n", cfg.Schedule.EveryNInteractions)
	return rt, nil
}

// Close releases the store and the decision log.
func (rt *runtime) Close() {
	if rt.sqlite != nil {
		if err := rt.sqlite.Close(); err != nil {
			rt.logger.Warn("closing session store", "error", err)
		}
	}
	rt.decisions.Close()
}

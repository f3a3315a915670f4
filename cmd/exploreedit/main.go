// Command exploreedit is a terminal demonstration of the exploratory
// editor: a bubbletea front end driving internal/editor.Adapter.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"exploreedit/internal/config"
	"exploreedit/internal/editor"
	"exploreedit/internal/logging"
	"exploreedit/internal/sessionlog"
	"exploreedit/internal/telemetry"
	"exploreedit/internal/tokentree"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	if err := logging.Init(cfg.Logging.ToFile); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		return 1
	}
	defer logging.Close()

	eng, closeEngine, err := buildEngine(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		return 1
	}
	defer closeEngine()

	sl, err := sessionlog.Open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionlog:", err)
		return 1
	}
	defer sl.Close()

	tm, err := telemetry.Open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "telemetry:", err)
		return 1
	}
	defer tm.Close()

	ed := editor.New(eng, editor.Config{
		SnapshotFreq: cfg.Engine.SnapshotFreq,
		PredictMain:  cfg.Engine.PredictMain,
		PredictAlt:   cfg.Engine.PredictAlt,
	}, tokentree.Callbacks{}, editor.WithSessionLog(sl), editor.WithTelemetry(tm))

	ctx := context.Background()
	m := newModel(ctx, ed)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		return 1
	}
	return 0
}

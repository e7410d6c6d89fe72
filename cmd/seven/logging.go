package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bamsammich/seven/internal/event"
	"github.com/bamsammich/seven/internal/ui"
)

// setupLogging installs the default logger: text on stderr at a level picked
// by -v/-q, teed as JSON into --log when set. The returned func closes the
// log file.
func setupLogging(g *globalOpts) (func(), error) {
	logLevel := slog.LevelWarn
	if g.verbose {
		logLevel = slog.LevelDebug
	} else if !g.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(g.stderr, &slog.HandlerOptions{
		Level: logLevel,
	})

	var logHandler slog.Handler = textHandler
	closeLog := func() {}
	if g.logFile != "" {
		lf, err := os.Create(g.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
		closeLog = func() { lf.Close() }
	}
	slog.SetDefault(slog.New(logHandler))
	return closeLog, nil
}

// teeEvents logs every event at Debug before forwarding it. The returned
// channel closes after events does.
func teeEvents(events <-chan event.Event) <-chan event.Event {
	teed := make(chan event.Event, cap(events))
	go func() {
		defer close(teed)
		for ev := range events {
			slog.LogAttrs(context.Background(), slog.LevelDebug, "seven.event", ev.Attrs()...)
			teed <- ev
		}
	}()
	return teed
}

package main

import (
	"fmt"
	"log/slog"

	"adam-batch/internal/config"
	"adam-batch/internal/sink"
)

// newWriters sets up status and end state writers from the job's sinks.
// quiet leaves stdout alone for the TUI. extra end state writers are appended
// to the fan out. The returned cleanup closes any files.
func newWriters(g config.Greptime, printOnly, quiet bool, format, logFile string, extra ...sink.EndStateWriter) (*sink.MultiWriter, func(), error) {
	cleanup := func() {}

	sw, ew, err := baseWriters(g, printOnly, quiet, format)
	if err != nil {
		return nil, nil, err
	}
	var sws []sink.StatusWriter
	var ews []sink.EndStateWriter
	if sw != nil {
		sws = append(sws, sw)
	}
	if ew != nil {
		ews = append(ews, ew)
	}
	ews = append(ews, extra...)

	if logFile != "" {
		fw, err := sink.NewFileWriter(logFile, logFile+".status")
		if err != nil {
			return nil, nil, err
		}
		sws = append(sws, fw)
		ews = append(ews, fw)
		cleanup = func() {
			if err := fw.Close(); err != nil {
				slog.Warn("close results log", "path", logFile, "err", err)
			}
		}
	}
	return sink.NewMultiWriter(sws, ews), cleanup, nil
}

// baseWriters chooses GreptimeDB when an endpoint is configured and printOnly
// is unset, stdout otherwise in the given format (json or color). quiet
// suppresses the stdout writer.
func baseWriters(g config.Greptime, printOnly, quiet bool, format string) (sink.StatusWriter, sink.EndStateWriter, error) {
	if printOnly || g.Endpoint == "" {
		if quiet {
			return nil, nil, nil
		}
		switch format {
		case "", "json":
			w := sink.NewJSONStdoutWriter()
			return w, w, nil
		case "color":
			w := sink.NewColorStdoutWriter()
			return w, w, nil
		default:
			return nil, nil, fmt.Errorf("invalid output format %q: want json or color", format)
		}
	}
	w, err := sink.NewGreptimeDBWriter(g.Endpoint, g.Database, g.Table, g.StatusTable, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return w, w, nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package meshlet

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogger_DefaultIsSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() = nil, want a usable logger")
	}
	// Must not panic and must not require a sink.
	l.Info("discarded")
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Info("pipeline ready", "meshlets", 3)
	if got := buf.String(); !strings.Contains(got, "pipeline ready") || !strings.Contains(got, "meshlets=3") {
		t.Errorf("log output = %q, want the structured record", got)
	}
}

func TestSetLogger_NilRestoresSilence(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	SetLogger(nil)

	Logger().Info("discarded")
	if buf.Len() != 0 {
		t.Errorf("nop logger wrote %q", buf.String())
	}
}

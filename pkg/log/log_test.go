package log_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/flowcanvas/pkg/log"
	"github.com/stretchr/testify/assert"
)

type flowID string

func TestAttrs(t *testing.T) {
	assertAttrEqual(t, log.FlowID(flowID("flow-1")), "flow_id", "flow-1")
	assertAttrEqual(t, log.NodeID("n1"), "node_id", "n1")
	assertAttrEqual(t, log.EdgeID("e1"), "edge_id", "e1")
	assertAttrEqual(t, log.UserID("u1"), "user_id", "u1")
	assertAttrEqual(t, log.Error(nil), "error", "")
	assertAttrEqual(t, log.Error(errors.New("boom")), "error", "boom")
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), log.FromContext(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := log.NewContext(context.Background(), logger)
	assert.Same(t, logger, log.FromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, log.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, log.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel(""))
}

func TestSetupWriter(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer

	log.SetupWriter(&buf, "warn")
	log.WithModule("flowsync").Info("hidden")
	log.WithModule("flowsync").Warn("shown", log.FlowID("f1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "service=flowcanvas")
	assert.Contains(t, out, "module=flowsync")
	assert.Contains(t, out, "flow_id=f1")
}

func assertAttrEqual(t *testing.T, attr slog.Attr, key, value string) {
	t.Helper()
	assert.Equal(t, key, attr.Key)
	assert.Equal(t, value, attr.Value.String())
}

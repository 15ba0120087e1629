package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/bionicotaku/lingo-sqlmapper/logging"
)

func decodeEntry(t *testing.T, raw string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	return entry
}

// TestNewLoggerRequiresService 验证缺少服务名时构造失败
func TestNewLoggerRequiresService(t *testing.T) {
	_, err := logging.NewLogger(logging.Options{})
	require.Error(t, err)

	logger, err := logging.NewLogger(logging.Options{Service: "sqlmapper-check"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

// TestLoggerWritesJSONEntry 验证标签字段与负载字段分开输出
func TestLoggerWritesJSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{
		Service:      "sqlmapper-check",
		Version:      "v1.2.0",
		StaticLabels: map[string]string{"env": "ci"},
		Writer:       &buf,
	})
	require.NoError(t, err)

	require.NoError(t, logger.Log(log.LevelWarn,
		log.DefaultMessageKey, "statement missing",
		"namespace", "example.com/app.UserMapper",
		"caller", "check.go:42",
		"count", 2,
		"error", errors.New("boom"),
	))

	entry := decodeEntry(t, buf.String())
	assert.Equal(t, "WARNING", entry["severity"])
	assert.Equal(t, "statement missing", entry["message"])
	svc := entry["serviceContext"].(map[string]any)
	assert.Equal(t, "sqlmapper-check", svc["service"])
	assert.Equal(t, "v1.2.0", svc["version"])

	labels := entry["labels"].(map[string]any)
	assert.Equal(t, "ci", labels["env"])
	assert.Equal(t, "example.com/app.UserMapper", labels["namespace"])
	assert.Equal(t, "check.go:42", labels["caller"])

	payload := entry["jsonPayload"].(map[string]any)
	assert.EqualValues(t, 2, payload["count"])
	assert.Equal(t, "boom", payload["error"])
}

// TestLoggerDefaultsMessageAndVersion 验证缺省消息与版本的占位值
func TestLoggerDefaultsMessageAndVersion(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Service: "svc", Writer: &buf})
	require.NoError(t, err)

	require.NoError(t, logger.Log(log.LevelDebug, "odd"))

	entry := decodeEntry(t, buf.String())
	assert.Equal(t, "DEBUG", entry["severity"])
	assert.Equal(t, "<no message>", entry["message"])
	assert.Equal(t, "dev", entry["serviceContext"].(map[string]any)["version"])
	assert.Contains(t, entry["jsonPayload"], "odd")
}

// TestComponentJSONCarriesTrace 验证 JSON 组件从上下文提取 trace 与 span
func TestComponentJSONCarriesTrace(t *testing.T) {
	var buf bytes.Buffer
	comp, cleanup, err := logging.NewComponent(logging.Config{
		Format:  logging.FormatJSON,
		Service: "svc",
		Writer:  &buf,
	})
	require.NoError(t, err)
	defer cleanup()

	traceID, _ := trace.TraceIDFromHex("0000000000000000000000001234abcd")
	spanID, _ := trace.SpanIDFromHex("0000000000000011")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	log.NewHelper(logging.ProvideLogger(comp)).WithContext(ctx).Infof("built %d statements", 3)

	entry := decodeEntry(t, buf.String())
	assert.Equal(t, "built 3 statements", entry["message"])
	assert.Equal(t, "0000000000000000000000001234abcd", entry["trace"])
	assert.Equal(t, "0000000000000011", entry["spanId"])
	assert.NotEmpty(t, entry["labels"].(map[string]any)["caller"])
}

// TestComponentFormats 验证文本格式与未知格式
func TestComponentFormats(t *testing.T) {
	var buf bytes.Buffer
	comp, _, err := logging.NewComponent(logging.Config{Writer: &buf})
	require.NoError(t, err)
	log.NewHelper(comp.Logger).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	_, _, err = logging.NewComponent(logging.Config{Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

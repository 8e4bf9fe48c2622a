package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

// captureLogOutputWithInit reinitializes the logger onto a buffer so the
// real InitLoggerWriter ReplaceAttr logic is exercised.
func captureLogOutputWithInit(level Level, format Format, f func()) string {
	var buf bytes.Buffer
	InitLoggerWriter(&buf, level, format)
	f()
	InitLogger(LevelInfo, FormatText)
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Info level JSON format", LevelInfo, FormatJSON},
		{"Warn level JSON format", LevelWarn, FormatJSON},
		{"Error level JSON format", LevelError, FormatJSON},
		{"Info level Text format", LevelInfo, FormatText},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized")
			}
		})
	}
	InitLogger(LevelInfo, FormatJSON)
}

func TestLevelFiltering(t *testing.T) {
	output := captureLogOutputWithInit(LevelWarn, FormatJSON, func() {
		Info("hidden message")
		Warn("visible message")
	})
	if strings.Contains(output, "hidden message") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(output, "visible message") {
		t.Error("Warn message should be logged at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		want string
	}{
		{"Debug", func() { Debug("debug message", "key", "value") }, "debug message"},
		{"Info", func() { Info("info message", "key", "value") }, "info message"},
		{"Warn", func() { Warn("warn message", "key", "value") }, "warn message"},
		{"Error", func() { Error("error message", "key", "value") }, "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.fn)
			if !strings.Contains(output, tt.want) {
				t.Errorf("Expected output to contain %q, got: %s", tt.want, output)
			}
			if !strings.Contains(output, `"key":"value"`) {
				t.Errorf("Expected output to contain key-value pair, got: %s", output)
			}
		})
	}
}

func TestConversion(t *testing.T) {
	output := captureLogOutput(func() {
		Conversion("tree_to_standoff", 12, 345, "source", "doc.xml")
	})

	for _, want := range []string{
		`"msg":"conversion"`,
		`"direction":"tree_to_standoff"`,
		`"annotations":12`,
		`"chars":345`,
		`"source":"doc.xml"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s, got: %s", want, output)
		}
	}
}

func TestEditApplied(t *testing.T) {
	output := captureLogOutput(func() {
		EditApplied("add", "xx", 0, 1, 3)
	})

	for _, want := range []string{
		`"msg":"edit_applied"`,
		`"operation":"add"`,
		`"tag":"xx"`,
		`"rebuilt":3`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s, got: %s", want, output)
		}
	}
}

func TestEditRejected(t *testing.T) {
	output := captureLogOutput(func() {
		EditRejected("remove", "text", 0, 5, errors.New("parent is the document root"))
	})

	if !strings.Contains(output, `"level":"WARN"`) {
		t.Errorf("Expected WARN level, got: %s", output)
	}
	if !strings.Contains(output, `"error":"parent is the document root"`) {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestDuplicateSuppressedAndSpanReconciled(t *testing.T) {
	output := captureLogOutput(func() {
		DuplicateSuppressed("xx", 2, 3)
		SpanReconciled("b", 2, 6, 4, 6)
	})

	if !strings.Contains(output, `"msg":"duplicate_suppressed"`) {
		t.Errorf("Expected duplicate_suppressed, got: %s", output)
	}
	if !strings.Contains(output, `"new_begin":4`) {
		t.Errorf("Expected new_begin, got: %s", output)
	}
}

func TestReplaceAttrTimestamp(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatJSON, func() {
		Info("timestamp test")
	})

	if output == "" {
		t.Fatal("Expected log output")
	}
	if !strings.Contains(output, "T") {
		t.Error("Expected timestamp to be in RFC3339 format")
	}
	if !strings.Contains(output, "timestamp test") {
		t.Error("Expected output to contain test message")
	}

	output = captureLogOutputWithInit(LevelInfo, FormatText, func() {
		Info("test message text", "key", "value")
	})
	if !strings.Contains(output, "test message text") {
		t.Error("Expected text output to contain test message")
	}
}

func TestInit(t *testing.T) {
	if defaultLogger == nil {
		t.Error("Expected defaultLogger to be initialized by init()")
	}
}

func TestLevelConstants(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("Expected LevelDebug < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("Expected LevelInfo < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("Expected LevelWarn < LevelError")
	}
}

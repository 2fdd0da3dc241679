package event

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"regexp"
	"runtime"
	"strings"
	"testing"
	"time"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func fixedBuilder() *Builder {
	b := NewBuilder()
	b.now = func() time.Time { return time.Unix(1700000000, 0) }
	b.newID = func() string { return "0123456789abcdef0123456789abcdef" }
	return b
}

func TestNewID_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !hexID.MatchString(id) {
			t.Fatalf("NewID: %q is not 32 lowercase hex chars", id)
		}
		// Version 4 nibble and RFC 4122 variant bits.
		if id[12] != '4' {
			t.Errorf("NewID %q: version nibble got %c, want 4", id, id[12])
		}
		if !strings.ContainsRune("89ab", rune(id[16])) {
			t.Errorf("NewID %q: variant nibble got %c", id, id[16])
		}
		if seen[id] {
			t.Fatalf("NewID returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestBuild_Fields(t *testing.T) {
	b := fixedBuilder()
	b.Environment = "staging"
	b.Release = "v1.2.3"

	ev := b.Build(errors.New("disk full"))

	if ev.EventID != "0123456789abcdef0123456789abcdef" {
		t.Errorf("EventID: got %q", ev.EventID)
	}
	if ev.Timestamp != 1700000000 {
		t.Errorf("Timestamp: got %d", ev.Timestamp)
	}
	if ev.Platform != "go" || ev.Level != LevelError {
		t.Errorf("platform/level: got %q/%q", ev.Platform, ev.Level)
	}
	if ev.Environment != "staging" || ev.Release != "v1.2.3" {
		t.Errorf("environment/release: got %q/%q", ev.Environment, ev.Release)
	}
	if ev.Contexts.OS.Name != runtime.GOOS {
		t.Errorf("os: got %q, want %q", ev.Contexts.OS.Name, runtime.GOOS)
	}
	if ev.Contexts.Runtime.Name != "go" || ev.Contexts.Runtime.Version != runtime.Version() {
		t.Errorf("runtime: got %+v", ev.Contexts.Runtime)
	}
	if len(ev.Exception.Values) != 1 {
		t.Fatalf("exception values: got %d, want 1", len(ev.Exception.Values))
	}
	exc := ev.Exception.Values[0]
	if exc.Type != "*errors.errorString" || exc.Value != "disk full" {
		t.Errorf("exception: got %s %q", exc.Type, exc.Value)
	}
}

func TestBuild_ExceptionTypeIsDynamicType(t *testing.T) {
	_, err := os.Open("/definitely/not/here")
	var pe *fs.PathError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *fs.PathError, got %T", err)
	}
	ev := fixedBuilder().Build(err)
	if got := ev.Exception.Values[0].Type; got != "*fs.PathError" {
		t.Errorf("type: got %q, want *fs.PathError", got)
	}
}

func TestBuild_StacktraceStartsAtCaller(t *testing.T) {
	ev := fixedBuilder().Build(errors.New("boom"))

	st := ev.Exception.Values[0].Stacktrace
	if st == nil || len(st.Frames) == 0 {
		t.Fatal("expected a stack trace")
	}
	last := st.Frames[len(st.Frames)-1]
	if last.Function != "TestBuild_StacktraceStartsAtCaller" {
		t.Errorf("innermost frame: got %q, want the test function", last.Function)
	}
	if last.Module != "github.com/crashpost/crashpost/internal/event" {
		t.Errorf("module: got %q", last.Module)
	}
	if !last.InApp {
		t.Error("test frame should be in_app")
	}
	if !strings.HasSuffix(last.Filename, "event/event_test.go") {
		t.Errorf("filename: got %q", last.Filename)
	}
	for _, f := range st.Frames {
		if strings.HasPrefix(f.Module, "runtime") {
			t.Errorf("runtime frame leaked into trace: %+v", f)
		}
	}
}

func captureVia(b *Builder) *Event {
	return b.Build(errors.New("wrapped"))
}

func TestBuild_CallerSkip(t *testing.T) {
	b := fixedBuilder()
	b.CallerSkip = 1
	ev := captureVia(b)

	frames := ev.Exception.Values[0].Stacktrace.Frames
	if last := frames[len(frames)-1]; last.Function != "TestBuild_CallerSkip" {
		t.Errorf("innermost frame with CallerSkip=1: got %q", last.Function)
	}
}

func TestBuild_OptionsOverride(t *testing.T) {
	ev := fixedBuilder().Build(errors.New("x"),
		WithLevel(LevelWarning),
		WithTags(map[string]string{"service": "billing"}),
		WithExtra(map[string]any{"order_id": 17}),
		WithRequestURL("https://shop.example.com/cart"),
		WithExceptionType("TypeError"),
		WithEnvironment("prod"),
		WithoutStacktrace(),
	)

	if ev.Level != LevelWarning {
		t.Errorf("level: got %q", ev.Level)
	}
	if ev.Tags["service"] != "billing" {
		t.Errorf("tags: got %v", ev.Tags)
	}
	if ev.Extra["order_id"] != 17 {
		t.Errorf("extra: got %v", ev.Extra)
	}
	if ev.Request == nil || ev.Request.URL != "https://shop.example.com/cart" {
		t.Errorf("request: got %+v", ev.Request)
	}
	if ev.Exception.Values[0].Type != "TypeError" {
		t.Errorf("type: got %q", ev.Exception.Values[0].Type)
	}
	if ev.Environment != "prod" {
		t.Errorf("environment: got %q", ev.Environment)
	}
	if ev.Exception.Values[0].Stacktrace != nil {
		t.Error("stacktrace should be dropped")
	}
}

func TestEvent_JSONShape(t *testing.T) {
	ev := fixedBuilder().Build(errors.New("x"), WithoutStacktrace())
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"event_id", "timestamp", "platform", "level", "contexts", "exception"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, b)
		}
	}
	for _, key := range []string{"tags", "extra", "request", "environment"} {
		if _, ok := m[key]; ok {
			t.Errorf("empty %q should be omitted", key)
		}
	}
}

func TestSplitFunction(t *testing.T) {
	cases := map[string][2]string{
		"github.com/a/b.(*T).M":          {"github.com/a/b", "(*T).M"},
		"main.main":                      {"main", "main"},
		"net/http.HandlerFunc.ServeHTTP": {"net/http", "HandlerFunc.ServeHTTP"},
	}
	for in, want := range cases {
		mod, fn := splitFunction(in)
		if mod != want[0] || fn != want[1] {
			t.Errorf("splitFunction(%q): got (%q, %q), want (%q, %q)", in, mod, fn, want[0], want[1])
		}
	}
}

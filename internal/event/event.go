package event

import (
	"encoding/hex"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

const platform = "go"

// Level is the event severity.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// Event is the payload accepted by the store endpoint.
type Event struct {
	EventID     string            `json:"event_id"`
	Timestamp   int64             `json:"timestamp"`
	Platform    string            `json:"platform"`
	Level       Level             `json:"level"`
	Environment string            `json:"environment,omitempty"`
	Release     string            `json:"release,omitempty"`
	ServerName  string            `json:"server_name,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	Contexts    Contexts          `json:"contexts"`
	Request     *Request          `json:"request,omitempty"`
	Exception   Exception         `json:"exception"`
}

// Contexts describes the process that produced the event.
type Contexts struct {
	OS      RuntimeInfo `json:"os"`
	Runtime RuntimeInfo `json:"runtime"`
}

// RuntimeInfo is a name/version pair.
type RuntimeInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Request carries the URL being served when the error happened.
type Request struct {
	URL string `json:"url"`
}

// Exception wraps the list of exception values.
type Exception struct {
	Values []ExceptionValue `json:"values"`
}

// ExceptionValue is one error in the chain.
type ExceptionValue struct {
	Type       string      `json:"type"`
	Value      string      `json:"value"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Stacktrace lists frames oldest call first.
type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

// Frame is one stack frame.
type Frame struct {
	Function string `json:"function"`
	Module   string `json:"module,omitempty"`
	Filename string `json:"filename"`
	AbsPath  string `json:"abs_path,omitempty"`
	Lineno   int    `json:"lineno"`
	InApp    bool   `json:"in_app"`
}

// Builder creates events that share environment-level fields.
type Builder struct {
	Environment string
	Release     string
	ServerName  string

	// CallerSkip is the number of frames between the capture site and Build.
	CallerSkip int

	now   func() time.Time
	newID func() string
}

// NewBuilder returns a Builder using the wall clock and random UUIDs.
func NewBuilder() *Builder {
	return &Builder{now: time.Now, newID: NewID}
}

// NewID returns a UUIDv4 rendered as 32 lowercase hex characters.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Build converts err into an Event. The stack trace starts at the caller of
// Build, skipping CallerSkip further frames.
func (b *Builder) Build(err error, opts ...Option) *Event {
	ev := &Event{
		EventID:     b.newID(),
		Timestamp:   b.now().Unix(),
		Platform:    platform,
		Level:       LevelError,
		Environment: b.Environment,
		Release:     b.Release,
		ServerName:  b.ServerName,
		Contexts:    defaultContexts(),
		Exception: Exception{Values: []ExceptionValue{{
			Type:       typeName(err),
			Value:      err.Error(),
			Stacktrace: captureStack(2 + b.CallerSkip),
		}}},
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

func defaultContexts() Contexts {
	return Contexts{
		OS:      RuntimeInfo{Name: runtime.GOOS, Version: runtime.GOARCH},
		Runtime: RuntimeInfo{Name: platform, Version: runtime.Version()},
	}
}

// typeName returns the dynamic type of err, e.g. "*fs.PathError".
func typeName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	return t.String()
}

// captureStack records the goroutine stack starting skip frames above
// captureStack itself. Runtime frames are dropped.
func captureStack(skip int) *Stacktrace {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []Frame
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			module, fn := splitFunction(f.Function)
			out = append(out, Frame{
				Function: fn,
				Module:   module,
				Filename: trimPath(f.File),
				AbsPath:  f.File,
				Lineno:   f.Line,
				InApp:    !isStdlib(module),
			})
		}
		if !more {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}

	// Callers returns innermost first; the wire format wants outermost first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return &Stacktrace{Frames: out}
}

// splitFunction splits "github.com/a/b.(*T).M" into module and function.
func splitFunction(name string) (module, fn string) {
	slash := strings.LastIndexByte(name, '/')
	dot := strings.IndexByte(name[slash+1:], '.')
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

func trimPath(file string) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
			return file[j+1:]
		}
	}
	return file
}

// isStdlib treats modules without a dot in their first path element as
// standard library ("net/http", "testing").
func isStdlib(module string) bool {
	first := module
	if i := strings.IndexByte(module, '/'); i >= 0 {
		first = module[:i]
	}
	return !strings.Contains(first, ".")
}

// Package log is a small logging layer: messages go to stdout and, after
// Init, to daily log files. Events are key / value records in toon format,
// appended to a separate daily events log.
//
// Library packages only call Verbosef and Event so they are silent unless
// the program opts in.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	// if true, Verbosef() will log messages
	Verbose bool

	// Output is where Logf() prints, in addition to the daily log file
	Output io.Writer = os.Stdout

	mu sync.Mutex
)

// WriteDaily appends to a file named YYYY-MM-DD.txt in Dir, switching to a
// new file when the day changes. All methods are safe on nil receiver.
type WriteDaily struct {
	Dir         string
	currentDate int // YYYYMMDD format
	file        *os.File
	mu          sync.Mutex
}

func NewWriteDaily(dir string) *WriteDaily {
	return &WriteDaily{
		Dir: dir,
	}
}

// dayFromTime converts a time.Time to YYYYMMDD integer format
func dayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func (w *WriteDaily) writer(now time.Time) (io.Writer, error) {
	today := dayFromTime(now)
	if w.file != nil && w.currentDate != today {
		if err := w.close(); err != nil {
			return nil, err
		}
	}
	if w.file == nil {
		if err := os.MkdirAll(w.Dir, 0755); err != nil {
			return nil, err
		}
		path := filepath.Join(w.Dir, now.Format("2006-01-02")+".txt")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w.file = f
		w.currentDate = today
	}
	return w.file, nil
}

// Write writes d to today's file
func (w *WriteDaily) Write(d []byte) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	wr, err := w.writer(time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = wr.Write(d)
	return err
}

func (w *WriteDaily) WriteString(s string) error {
	return w.Write([]byte(s))
}

func (w *WriteDaily) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = 0
	return err
}

func (w *WriteDaily) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Sync()
	}
	return w.close()
}

type Config struct {
	// directory where log files are stored, each kind of log (regular,
	// errors, events) goes into its own subdirectory
	Dir string
}

// Init starts logging to files in config.Dir
func Init(config *Config) {
	mu.Lock()
	defer mu.Unlock()
	dir := config.Dir
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
}

// Close closes log files. Logging to stdout continues.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, wd := range []**WriteDaily{&log, &errorsLog, &eventsLog} {
		_ = (*wd).Close()
		*wd = nil
	}
}

func current() (*WriteDaily, *WriteDaily, *WriteDaily) {
	mu.Lock()
	defer mu.Unlock()
	return log, errorsLog, eventsLog
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	fmt.Fprint(Output, s)
	l, _, _ := current()
	_ = l.WriteString(s)
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		cs = append(cs, frame.File+":"+strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
	return cs
}

func GetCallstack(skip int) string {
	return strings.Join(GetCallstackFrames(skip+1), "\n")
}

// Errorf logs an error message along with the callstack, to the regular
// and the errors log
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	s = fmt.Sprintf("%s\n%s\n", s, GetCallstack(2))
	Logf("%s", s)
	_, el, _ := current()
	_ = el.WriteString(s)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%v", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf("%s", s)
	return true
}

// simpleTypeToStr converts simple types to string
// panics if v is of complex type
func simpleTypeToStr(v any) string {
	rt := reflect.TypeOf(v)
	kind := rt.Kind()
	switch kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("toStr: value is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// MarshalEvent frames an event as:
// "--- ${size} ${timestamp_in_unix_epoch_ms} ${name}\n${data}\n"
// the trailing newline is only added if data doesn't end with one
func MarshalEvent(name string, t time.Time, d []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(d) + len(name) + 32)
	buf.WriteString("--- ")
	buf.WriteString(strconv.Itoa(len(d)))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	if name != "" {
		buf.WriteByte(' ')
		buf.WriteString(name)
	}
	buf.WriteByte('\n')
	if len(d) > 0 {
		buf.Write(d)
		if d[len(d)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

// Event records a named event with key / value pairs, e.g.
// Event("write.done", "records", 10, "bytes", 80)
func Event(name string, vals ...any) error {
	n := len(vals)
	if n%2 != 0 {
		return fmt.Errorf("log.Event('%s'): odd number of key / value args (%d)", name, n)
	}
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			m[simpleTypeToStr(vals[i])] = vals[i+1]
		}
		var err error
		d, err = toon.Marshal(m)
		if err != nil {
			return err
		}
	}
	_, _, ev := current()
	if Verbose {
		Logf("event %s %s\n", name, strings.TrimSpace(string(d)))
	}
	return ev.Write(MarshalEvent(name, time.Now().UTC(), d))
}

// EventWithDuration is Event with the duration in microseconds added as "durmicro"
func EventWithDuration(name string, dur time.Duration, vals ...any) error {
	vals = append(vals, "durmicro", dur.Microseconds())
	return Event(name, vals...)
}

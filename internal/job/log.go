package job

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogBasename builds the per-job log basename:
// <yyyymmdd>-<hhmmss>-<ms>-<jobid>-<username>.
func LogBasename(t time.Time, jobID int64, username string) string {
	return fmt.Sprintf("%s-%03d-%d-%s",
		t.Format("20060102-150405"), t.Nanosecond()/1_000_000, jobID, username)
}

// LogPath computes the full log file path under the archives tree:
// <docroot>/archives/<job-name>/<basename>.log.
func LogPath(docRoot, jobName, basename string) string {
	return filepath.Join(docRoot, "archives", jobName, basename+".log")
}

// Log appends XML fragments to a job's log file. It is a thin wrapper
// over an append-mode file handle; the file is UTF-8 XML content
// without a synthetic root element — ReadLog wraps it in <ats> on read
// to produce a well-formed document.
type Log struct {
	path string
}

// OpenLog ensures the parent directory of path exists and returns a Log
// bound to it.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Log{path: path}, nil
}

func (l *Log) append(fragment string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log %s: %w", l.path, err)
	}
	defer f.Close()
	_, err = f.WriteString(fragment)
	return err
}

// logEvent is the generic structured element appended for a lifecycle
// event (state transition, user log line, etc).
type logEvent struct {
	XMLName xml.Name `xml:"event"`
	Class   string   `xml:"class,attr"`
	Time    string   `xml:"timestamp,attr"`
	Message string   `xml:",chardata"`
}

// WriteEvent appends a single structured log event.
func (l *Log) WriteEvent(class, message string) error {
	ev := logEvent{Class: class, Time: time.Now().UTC().Format(time.RFC3339Nano), Message: message}
	out, err := xml.Marshal(ev)
	if err != nil {
		return err
	}
	return l.append(string(out) + "\n")
}

// include is the XML fragment a campaign log weaves in to reference a
// child job's own log file.
type include struct {
	XMLName xml.Name `xml:"include"`
	Source  string   `xml:"source,attr"`
	JobID   int64    `xml:"job-id,attr"`
	Result  int      `xml:"result,attr"`
}

// WriteInclude appends an <include> pointer to a child job's log file.
func (l *Log) WriteInclude(childLogPath string, childJobID int64, childResult int) error {
	inc := include{Source: childLogPath, JobID: childJobID, Result: childResult}
	out, err := xml.Marshal(inc)
	if err != nil {
		return err
	}
	return l.append(string(out) + "\n")
}

// Path returns the underlying log file path.
func (l *Log) Path() string { return l.path }

// ReadLog reads a job's raw log fragments and wraps them in an <ats>
// root element to return a well-formed XML document.
func ReadLog(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading log %s: %w", path, err)
	}
	wrapped := append([]byte("<ats>\n"), content...)
	wrapped = append(wrapped, []byte("</ats>\n")...)
	return wrapped, nil
}

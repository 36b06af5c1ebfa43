package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	baseOnce sync.Once
	base     *log.Logger
)

// Logger returns the process-wide line logger. Request logs and audit events
// both write through it, so one line on stdout is always one JSON document.
func Logger() *log.Logger {
	baseOnce.Do(func() {
		base = log.New(os.Stdout, "", 0)
	})
	return base
}

// LogRequest serializes one request-log entry as a JSON line.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"request log entry not serializable"}`)
		return
	}
	Logger().Println(string(data))
}

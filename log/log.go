package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger
)

var debugEnabled = os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"

var logFileName = filepath.Join(os.TempDir(), "codeswarm.log")

var globalLogFile *os.File

// Initialize should be called once at the beginning of the program to set up
// logging. defer Close() after calling this function. Log output goes to a
// file in the os temp directory; if the file cannot be opened, stderr is used.
func Initialize() {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		initLoggers(os.Stderr)
		fmt.Fprintf(os.Stderr, "Warning: using stderr for logging: %v\n", err)
		return
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	initLoggers(f)
	globalLogFile = f
}

func initLoggers(w io.Writer) {
	InfoLog = log.New(w, "INFO:", log.Ldate|log.Ltime|log.Lshortfile)
	WarningLog = log.New(w, "WARNING:", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(w, "ERROR:", log.Ldate|log.Ltime|log.Lshortfile)
	if debugEnabled {
		DebugLog = log.New(w, "DEBUG:", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}
}

func Close() {
	if globalLogFile != nil {
		_ = globalLogFile.Close()
	}
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	return debugEnabled
}

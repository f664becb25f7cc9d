package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

const logFileName = "reev-api.log"

// LogWriter is the writer used for application, worker and database logs.
var LogWriter io.Writer = os.Stdout

// LogFilePath returns the path to the backend log file inside dir.
func LogFilePath(dir string) string {
	if dir == "" {
		dir = "logs"
	}
	return filepath.Join(dir, logFileName)
}

// InitLogging tees the standard logger into the log file below dir. When
// the file cannot be opened logging continues on stdout only.
func InitLogging(dir string) (*os.File, io.Writer) {
	path := LogFilePath(dir)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Printf("Warning: Failed to create logs directory: %v", err)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("Warning: Failed to open log file %s: %v", path, err)
		LogWriter = os.Stdout
		log.SetOutput(LogWriter)
		return nil, LogWriter
	}

	LogWriter = io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(LogWriter)
	return logFile, LogWriter
}

// ComponentLogger returns a logger writing to LogWriter whose messages are
// prefixed with "[name] ". Call it after InitLogging.
func ComponentLogger(name string) *log.Logger {
	return log.New(LogWriter, "["+name+"] ", log.LstdFlags|log.Lmsgprefix)
}

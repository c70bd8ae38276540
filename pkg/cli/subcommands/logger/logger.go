package logger

import (
	"io"
	"log"
	"os"
)

// Null returns a logger discarding everything.
func Null() *log.Logger {
	return log.New(io.Discard, "", log.LstdFlags)
}

// ForProgram returns a logger writing to stderr, prefixed with "[name] ".
func ForProgram(name string) *log.Logger {
	return log.New(os.Stderr, "["+name+"] ", log.LstdFlags)
}

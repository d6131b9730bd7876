package media

import (
	"io"
	"log"
)

var opsLogger *log.Logger

// SetLogWriter configures the ops logging stream for the media package.
// Pass nil to disable.
func SetLogWriter(w io.Writer) {
	if w == nil {
		opsLogger = nil
		return
	}
	opsLogger = log.New(w, "[media] ", log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (command rejections, unsupported endpoints).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

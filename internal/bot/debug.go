package bot

import (
	"log"
	"os"
	"strings"
)

var botDebugEnabled = strings.EqualFold(os.Getenv("PRINTBOT_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if botDebugEnabled {
		log.Printf(format, args...)
	}
}

package paho

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-transport/internal/logger"
)

// EnableLibraryLogging routes paho's internal loggers into the structured
// logger. Affects the whole process; call once at startup.
func EnableLibraryLogging(log *logger.Logger) {
	mqtt.CRITICAL = libLogger{log: log, level: "critical"}
	mqtt.ERROR = libLogger{log: log, level: "error"}
	mqtt.WARN = libLogger{log: log, level: "warn"}
	mqtt.DEBUG = libLogger{log: log, level: "debug"}
}

type libLogger struct {
	log   *logger.Logger
	level string
}

func (l libLogger) emit(msg string) {
	switch l.level {
	case "critical", "error":
		l.log.Error("[paho] " + msg)
	case "warn":
		l.log.Warn("[paho] " + msg)
	default:
		l.log.Debug("[paho] " + msg)
	}
}

func (l libLogger) Println(v ...interface{}) {
	l.emit(fmt.Sprintln(v...))
}

func (l libLogger) Printf(format string, v ...interface{}) {
	l.emit(fmt.Sprintf(format, v...))
}

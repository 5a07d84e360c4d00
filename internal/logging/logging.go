package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/prophecyclub/server/internal/config"
)

// Setup configures the global logrus logger from config. When a log file is
// configured, output goes to both stdout and a rotated file.
func Setup(cfg config.LogConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if strings.TrimSpace(cfg.File) == "" {
		log.SetOutput(os.Stdout)
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotated))
}

// Package logrecorder routes the standard logger into dated,
// timestamped log files so long diagnostic sessions leave a trace on
// disk.
package logrecorder

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// NowString formats the current time for use in a log file name.
func NowString() string {
	return time.Now().Format("20060102_1504")
}

// MakeDir ensures today's log directory (e.g. 2026_08_26) exists and
// returns its path.
func MakeDir() (string, error) {
	now := time.Now()
	dirName := fmt.Sprintf("%d_%02d_%02d", now.Year(), now.Month(), now.Day())
	fullPath := filepath.Join(".", dirName)

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			return "", fmt.Errorf("create log directory: %w", err)
		}
	}
	return fullPath, nil
}

// RecorderAsNameInit points the standard logger at <today>/<name>.log,
// appending if the file exists.
func RecorderAsNameInit(name string) error {
	log.SetPrefix("")
	log.SetFlags(log.Lmicroseconds)

	dir, err := MakeDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(dir, fmt.Sprintf("%s.log", name))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(f)
	return nil
}

// InitAndRotate starts logging to a timestamped file and rotates to a
// fresh one every 5 minutes.
func InitAndRotate(logName string) {
	if err := RecorderAsNameInit(logName + NowString()); err != nil {
		log.Printf("log recorder init failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := RecorderAsNameInit(logName + NowString()); err != nil {
				log.Printf("log rotation failed: %v", err)
			}
		}
	}()
}

// Init starts logging to a single timestamped file without rotation.
func Init(logName string) {
	if err := RecorderAsNameInit(logName + NowString()); err != nil {
		log.Printf("log recorder init failed: %v", err)
	}
}

package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	log  *zap.Logger
	once sync.Once

	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init wires the production logger; called once from main before any module
// starts. Without Init the first log call falls back to a production logger
// with default options.
func Init() error {
	l, err := zap.NewProduction()
	if err != nil {
		return err
	}
	once.Do(func() {})
	log = l

	return nil
}

func get() *zap.Logger {
	once.Do(func() {
		if log == nil {
			log, _ = zap.NewProduction()
		}
	})
	return log
}

func Info(format string, args ...interface{}) {
	get().With(
		zap.String("service", serviceName),
	).Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	get().With(
		zap.String("service", serviceName),
	).Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	get().With(
		zap.String("service", serviceName),
	).Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	get().With(
		zap.String("service", serviceName),
	).Fatal(fmt.Sprintf(format, args...))
}

// Ошибка со стеком мест, через которые она прошла, и контекстом для логирования.
package stack_error

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
)

type TrackerError struct {
	Context  map[string]any
	ErrStack []slog.Attr
	cause    error
}

// TrackErrorStack оборачивает ошибку (или дополняет уже обёрнутую) местом вызова.
func TrackErrorStack(err error) *TrackerError {
	if err == nil {
		return nil
	}

	var te *TrackerError
	if errors.As(err, &te) {
		te.ErrStack = append(te.ErrStack, getCallerFile(err))
		return te
	}

	newTe := &TrackerError{
		Context:  make(map[string]any),
		ErrStack: make([]slog.Attr, 0, 2),
		cause:    err,
	}
	newTe.ErrStack = append(newTe.ErrStack, getCallerFile(err))
	return newTe
}

// AddContext добавляет значение в контекст ошибки. Повторный ключ не перезаписывается.
func (te *TrackerError) AddContext(k string, v any) *TrackerError {
	if _, ok := te.Context[k]; !ok {
		te.Context[k] = v
	}
	return te
}

func (te *TrackerError) Error() string {
	if te.cause != nil {
		return te.cause.Error()
	}
	return "TrackerError"
}

func (te *TrackerError) Unwrap() error {
	return te.cause
}

// Attrs возвращает атрибуты для slog: контекст и стек, если ошибка отслеживается,
// иначе только текст ошибки.
func Attrs(err error) []any {
	var te *TrackerError
	if !errors.As(err, &te) {
		return []any{slog.String("err", err.Error())}
	}

	res := make([]any, 0, len(te.Context)+2)
	res = append(res, slog.String("err", te.Error()))
	for k, v := range te.Context {
		res = append(res, slog.Any(k, v))
	}
	trace := make([]any, 0, len(te.ErrStack))
	for _, attr := range te.ErrStack {
		trace = append(trace, attr)
	}
	res = append(res, slog.Group("stack", trace...))
	return res
}

// LogError пишет ошибку в лог вместе с накопленным контекстом и стеком.
func LogError(msg string, err error, attrs ...any) {
	if err == nil {
		return
	}
	slog.With(attrs...).Error(msg, Attrs(err)...)
}

func getCallerFile(err error) slog.Attr {
	_, path, no, ok := runtime.Caller(2)
	if !ok {
		return slog.String("trace", "unknown")
	}
	_, file := filepath.Split(path)
	return slog.String("trace", fmt.Sprintf("%s:%d %s", file, no, err.Error()))
}

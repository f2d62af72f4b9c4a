package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. format is "text" or "json".
func Setup(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stderr)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// ErrorFields flattens an error chain into log fields. Each wrapping layer
// gets an errInfo_N field with the wrapped part replaced by a marker, and
// the innermost error is reported under errType.
func ErrorFields(err error) logrus.Fields {
	fields := logrus.Fields{}
	if err == nil {
		return fields
	}

	chain := []string{}
	inner := err
	for {
		chain = append(chain, inner.Error())
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}

	for idx := 0; idx < len(chain)-1; idx++ {
		marker := fmt.Sprintf("~errInfo_%d~", idx+1)
		if idx == len(chain)-2 {
			marker = "~error~"
		}
		text := chain[idx]
		if at := strings.LastIndex(text, chain[idx+1]); at != -1 {
			text = text[:at] + marker + text[at+len(chain[idx+1]):]
		}
		fields[fmt.Sprintf("errInfo_%d", idx)] = text
	}

	fields["errType"] = fmt.Sprintf("%T", inner)
	fields[logrus.ErrorKey] = inner
	return fields
}

// LogError logs err on entry with its chain flattened.
func LogError(entry *logrus.Entry, err error, msg string) {
	entry.WithFields(ErrorFields(err)).Error(msg)
}

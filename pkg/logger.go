package dispenser

type Logger interface {
	Info(message string, module string)
	Error(string)
}

type discardLogger struct{}

func (discardLogger) Info(message string, module string) {}
func (discardLogger) Error(message string)               {}

var logger Logger = discardLogger{}

func SetLogger(l Logger) {
	if l == nil {
		l = discardLogger{}
	}
	logger = l
}

func verbose() bool {
	return configuration.Verbosity > 0
}

// GetLogger returns the logger set with SetLogger, for output plugins living
// in other packages.
func GetLogger() Logger {
	return logger
}

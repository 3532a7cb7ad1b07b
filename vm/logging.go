package vm

import "github.com/tliron/commonlog"

// Loggers are fetched on use so that a backend registered by the embedding
// program after package initialization is honored.

func vmLog() commonlog.Logger       { return commonlog.GetLogger("garnet.vm") }
func dispatchLog() commonlog.Logger { return commonlog.GetLogger("garnet.dispatch") }
func framesLog() commonlog.Logger   { return commonlog.GetLogger("garnet.frames") }

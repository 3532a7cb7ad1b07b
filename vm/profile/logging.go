package profile

import "github.com/tliron/commonlog"

func profileLog() commonlog.Logger { return commonlog.GetLogger("garnet.profile") }

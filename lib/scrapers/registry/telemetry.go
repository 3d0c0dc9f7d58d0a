package registry

import (
	"estatescout-backend/lib/restyutil"
)

var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput records document download traffic for
// clients created after the call. Debug aid for diagnosing portal
// revisions that break the direct-download strategy.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}

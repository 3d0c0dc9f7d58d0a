// Package restyutil records full http exchanges made through resty
// clients to an output for offline inspection. Span instrumentation
// lives in lib/telemetry; this package only captures bodies, which
// are too large for trace attributes.
package restyutil

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

type recorder struct {
	output    InstrumentOutput
	idcounter *uint64
}

// RecordClient writes every exchange client makes to output as a
// formatted http message. A nil output makes this a no-op; messages
// are only captured while debug logging is enabled.
func RecordClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}
	var idcounter uint64
	r := recorder{output: output, idcounter: &idcounter}
	client.OnAfterResponse(r.onAfterResponse)
}

func (r recorder) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return nil
	}

	messageId := strconv.FormatUint(atomic.AddUint64(r.idcounter, 1), 10)
	r.output.Write(messageId, formatHttpMessage(res))
	slog.DebugContext(
		ctx, "recorded exchange",
		"method", res.Request.Method,
		"url", res.Request.URL,
		"message_id", messageId,
	)
	return nil
}

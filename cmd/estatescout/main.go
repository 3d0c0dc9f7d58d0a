package main

import (
	"context"

	"estatescout-backend/cmd/estatescout/commands"
	"estatescout-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	t, err := telemetry.SetupFromEnv(ctx, "estatescout")
	if err == nil {
		defer t.Shutdown(ctx)
	}
	telemetry.InitSlog(false)
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}

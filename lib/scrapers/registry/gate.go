package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Bypass drives a gated session through the portal's mandatory entry
// sequence: welcome interstitial, optional verification challenge,
// then the control that commits to the search function. Calling it on
// a session that is already past the gate is a no-op.
//
// Each step is idempotent against the page it expects being absent:
// the portal drops the interstitial and the challenge on a whim, and
// skipping a missing page is not a failure. What is a failure is
// ending the sequence still parked on the welcome or challenge page.
func (c *Client) Bypass(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Bypass")
	defer span.End()

	if c.state == StateReady {
		span.AddEvent("already past gate")
		return nil
	}

	if err := c.ch.Navigate(ctx, c.pageUrl(welcomePath)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach entry page")
		return err
	}

	// Welcome
	hasContinue, err := c.ch.Exists(ctx, selWelcomeContinue)
	if err != nil {
		return err
	}
	if hasContinue {
		slog.DebugContext(ctx, "passing welcome interstitial")
		if err := c.ch.ClickNavigate(ctx, selWelcomeContinue); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "welcome continue failed")
			return err
		}
	}

	// Challenge
	onChallenge, err := c.onChallengePage(ctx)
	if err != nil {
		return err
	}
	if onChallenge {
		c.challenges++
		span.SetAttributes(attribute.Int("challenges", c.challenges))
		if err := c.solveChallenge(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// fall through: the location check below reports where
			// the session actually ended up
			span.RecordError(err)
			slog.WarnContext(ctx, "challenge did not resolve", "err", err)
		}
	}

	// Ready
	hasEntry, err := c.ch.Exists(ctx, selSearchEntry)
	if err != nil {
		return err
	}
	if hasEntry {
		if err := c.ch.ClickNavigate(ctx, selSearchEntry); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search entry failed")
			return err
		}
	}

	loc, err := c.ch.Location(ctx)
	if err != nil {
		return err
	}
	if onPath(loc, welcomePath) || onPath(loc, challengePath) {
		err := &GateBypassError{Location: loc, Challenges: c.challenges}
		span.RecordError(err)
		span.SetStatus(codes.Error, "still behind gate")
		return err
	}

	c.state = StateReady
	slog.InfoContext(ctx, "entry gate passed", "location", loc, "challenges", c.challenges)
	return nil
}

func (c *Client) onChallengePage(ctx context.Context) (bool, error) {
	loc, err := c.ch.Location(ctx)
	if err != nil {
		return false, err
	}
	if onPath(loc, challengePath) {
		return true, nil
	}
	return c.ch.Exists(ctx, selChallengeWidget)
}

// solveChallenge obtains a response token out of band, injects it and
// waits for the page to accept it. Detection of "accepted" is
// heuristic: either the page navigated away or the widget was torn
// down in place; both are polled under one deadline.
func (c *Client) solveChallenge(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:solveChallenge")
	defer span.End()

	if c.solver == nil {
		return fmt.Errorf("portal presented a challenge but no solver is configured")
	}

	loc, err := c.ch.Location(ctx)
	if err != nil {
		return err
	}
	siteKey, ok, err := c.ch.Attr(ctx, selChallengeWidget, "data-sitekey")
	if err != nil {
		return err
	}
	if !ok || siteKey == "" {
		return fmt.Errorf("challenge widget has no site key")
	}

	slog.InfoContext(ctx, "solving verification challenge", "page", loc)
	token, err := c.solver.Solve(ctx, siteKey, loc)
	if err != nil {
		return fmt.Errorf("solve challenge: %w", err)
	}

	if err := c.ch.SetValue(ctx, selChallengeResponse, token); err != nil {
		return err
	}
	if err := c.ch.Click(ctx, selChallengeVerify); err != nil {
		// some portal revisions submit on token injection alone
		slog.DebugContext(ctx, "challenge verify control not clickable", "err", err)
	}

	deadline := time.Now().Add(c.challengeTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		now, err := c.ch.Location(ctx)
		if err != nil {
			return err
		}
		if now != loc {
			return nil
		}
		// not navigated yet; accepted tokens also show up as the
		// widget being torn down in place
		stillThere, err := c.ch.Exists(ctx, selChallengeWidget)
		if err == nil && !stillThere {
			return nil
		}
	}

	return fmt.Errorf("challenge did not resolve within %s", c.challengeTimeout)
}

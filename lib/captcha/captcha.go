// Package captcha talks to a 2captcha-compatible solving service. The
// record portal fronts its search pages with an interactive
// verification challenge that has to be solved out of band before any
// query is possible.
package captcha

import (
	"context"
	"fmt"
	"time"

	"estatescout-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/captcha")

// Solver produces a challenge response token for a page. Implemented
// here over HTTP; stubbed in tests.
type Solver interface {
	Solve(ctx context.Context, siteKey, pageURL string) (string, error)
}

type ClientOptions struct {
	BaseUrl string
	APIKey  string
	// how often to poll for a finished solution
	PollInterval time.Duration
}

type Client struct {
	http         *resty.Client
	apiKey       string
	pollInterval time.Duration
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("missing challenge solver api key")
	}
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = "https://api.2captcha.com"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second * 5
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "captcha/http")

	return &Client{
		http:         client,
		apiKey:       opts.APIKey,
		pollInterval: pollInterval,
	}, nil
}

type taskRequest struct {
	ClientKey string      `json:"clientKey"`
	Task      taskPayload `json:"task"`
}

type taskPayload struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
}

type taskCreated struct {
	ErrorId          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskId           int64  `json:"taskId"`
}

type resultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskId    int64  `json:"taskId"`
}

type taskResult struct {
	ErrorId          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	Status           string `json:"status"`
	Solution         struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Solve submits the challenge and polls until the service returns a
// token or ctx runs out.
func (c *Client) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "Solve")
	defer span.End()

	var created taskCreated
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(taskRequest{
			ClientKey: c.apiKey,
			Task: taskPayload{
				Type:       "RecaptchaV2TaskProxyless",
				WebsiteURL: pageURL,
				WebsiteKey: siteKey,
			},
		}).
		SetResult(&created).
		Post("/createTask")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create solve task")
		return "", fmt.Errorf("create solve task: %w", err)
	}
	if res.IsError() || created.ErrorId != 0 {
		err := fmt.Errorf("solver rejected task: status=%d %s", res.StatusCode(), created.ErrorDescription)
		span.RecordError(err)
		span.SetStatus(codes.Error, "solver rejected task")
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("challenge solve: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		var result taskResult
		res, err := c.http.R().
			SetContext(ctx).
			SetBody(resultRequest{ClientKey: c.apiKey, TaskId: created.TaskId}).
			SetResult(&result).
			Post("/getTaskResult")
		if err != nil {
			return "", fmt.Errorf("poll solve task: %w", err)
		}
		if res.IsError() || result.ErrorId != 0 {
			return "", fmt.Errorf("solver failed task: status=%d %s", res.StatusCode(), result.ErrorDescription)
		}
		if result.Status == "ready" {
			return result.Solution.GRecaptchaResponse, nil
		}
	}
}

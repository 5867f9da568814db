// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"sync"
	"time"
)

// MockResult is one scripted outcome of a Generate call.
type MockResult struct {
	Text string
	Err  error
}

// MockCall records one Generate call.
type MockCall struct {
	Prompt    string
	Params    GenerationParams
	Timestamp time.Time
}

// MockClient is a scripted LLMClient for tests.
//
// Queued results are returned in order. When the queue is empty the
// default text is returned, or the configured error if one is set.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use. The delay is served outside the
//	lock so concurrent callers overlap.
type MockClient struct {
	mu sync.Mutex

	queue         []MockResult
	defaultText   string
	errorToReturn error
	responseFunc  func(prompt string) (string, error)
	delay         time.Duration
	calls         []MockCall
}

// NewMockClient creates a mock that answers with a minimal SoapUI project.
func NewMockClient() *MockClient {
	return &MockClient{
		defaultText: `<con:soapui-project name="Generated-SoapUI-Project" xmlns:con="http://eviware.com/soapui/config"/>`,
	}
}

// WithDefaultText sets the text returned when the queue is empty.
func (c *MockClient) WithDefaultText(text string) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultText = text
	return c
}

// WithError makes every unqueued call fail with err.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	return c
}

// WithDelay adds latency before each answer. The delay honours ctx.
func (c *MockClient) WithDelay(d time.Duration) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	return c
}

// WithResponseFunc computes unqueued answers from the prompt.
func (c *MockClient) WithResponseFunc(f func(prompt string) (string, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// QueueText queues a successful answer.
func (c *MockClient) QueueText(text string) *MockClient {
	return c.queueResult(MockResult{Text: text})
}

// QueueError queues a failed answer.
func (c *MockClient) QueueError(err error) *MockClient {
	return c.queueResult(MockResult{Err: err})
}

func (c *MockClient) queueResult(r MockResult) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, r)
	return c
}

// Generate implements the LLMClient interface
func (c *MockClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, MockCall{Prompt: prompt, Params: params, Timestamp: time.Now()})
	delay := c.delay
	var next *MockResult
	if len(c.queue) > 0 {
		r := c.queue[0]
		c.queue = c.queue[1:]
		next = &r
	}
	fn, text, errToReturn := c.responseFunc, c.defaultText, c.errorToReturn
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch {
	case next != nil:
		return next.Text, next.Err
	case errToReturn != nil:
		return "", errToReturn
	case fn != nil:
		return fn(prompt)
	default:
		return text, nil
	}
}

// Calls returns a copy of the recorded calls.
func (c *MockClient) Calls() []MockCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MockCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many times Generate was called.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// LastPrompt returns the most recent prompt, or "" if there were no calls.
func (c *MockClient) LastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return ""
	}
	return c.calls[len(c.calls)-1].Prompt
}

package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodPage drives a real Chromium tab.
type RodPage struct {
	browser *rod.Browser
	page    *rod.Page
}

// NewRodPage launches a browser and opens a blank tab.
func NewRodPage(ctx context.Context, headless bool) (*RodPage, error) {
	u, err := launcher.New().Headless(headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &RodPage{browser: browser, page: page}, nil
}

func (p *RodPage) Close() error {
	return p.browser.Close()
}

func (p *RodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *RodPage) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	page := p.page.Context(ctx)
	if timeout > 0 {
		page = page.Timeout(timeout)
	}
	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", selector, err)
	}
	return el, nil
}

func (p *RodPage) Exists(ctx context.Context, selector string, within time.Duration) (bool, error) {
	_, err := p.element(ctx, selector, within)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return false, nil
	}
	return false, err
}

func (p *RodPage) Wait(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (p *RodPage) Fill(ctx context.Context, selector, text string) error {
	el, err := p.element(ctx, selector, 0)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func (p *RodPage) Select(ctx context.Context, selector, text string) error {
	el, err := p.element(ctx, selector, 0)
	if err != nil {
		return err
	}
	return el.Select([]string{text}, true, rod.SelectorTypeText)
}

func (p *RodPage) Click(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector, 0)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) JSClick(ctx context.Context, selector string) error {
	el, err := p.element(ctx, selector, 0)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => this.click()`)
	return err
}

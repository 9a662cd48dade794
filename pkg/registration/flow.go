// Package registration drives the SAI developer sign-up form.
package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atomicdeploy/pql-testkit/pkg/testdata"
)

// Selectors used by the sign-up pages.
const (
	SelectorPopupClose = "#interactive-close-button"
	SelectorTerms      = "input[type='checkbox']"
	SelectorContinue   = "button.sai_button.btn.btn-secondary"
	SelectorRegister   = "button[type='submit']"
)

// ByName selects an input by its name attribute.
func ByName(name string) string {
	return fmt.Sprintf("[name='%s']", name)
}

// Page is the browser surface the flow needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Exists waits up to within for selector and reports whether it appeared.
	Exists(ctx context.Context, selector string, within time.Duration) (bool, error)
	Wait(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, text string) error
	// Select chooses the option whose visible text is text.
	Select(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// JSClick clicks through script, for inputs hidden behind custom styling.
	JSClick(ctx context.Context, selector string) error
}

// Timeouts bound each wait in the flow.
type Timeouts struct {
	Popup   time.Duration
	Form    time.Duration
	Buttons time.Duration
}

var DefaultTimeouts = Timeouts{
	Popup:   10 * time.Second,
	Form:    15 * time.Second,
	Buttons: 10 * time.Second,
}

// Step is one entry of the flow log.
type Step struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
	Err    string `json:"error,omitempty"`
}

type Result struct {
	Steps     []Step `json:"steps"`
	Submitted bool   `json:"submitted"`
}

// Flow fills both sign-up pages. The final Register click only happens when
// Submit is set.
type Flow struct {
	Page     Page
	URL      string
	Submit   bool
	Timeouts Timeouts
	Log      zerolog.Logger
}

type field struct {
	name, value string
}

// Run executes the flow. It stops at the first failing step; the returned
// result lists every step attempted, including the failing one.
func (f *Flow) Run(ctx context.Context, fx *testdata.Fixture) (*Result, error) {
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	t := f.Timeouts
	if t == (Timeouts{}) {
		t = DefaultTimeouts
	}

	res := &Result{}
	step := func(name string, detail *string, fn func() error) error {
		err := fn()
		s := Step{Name: name}
		if detail != nil {
			s.Detail = *detail
		}
		if err != nil {
			s.Err = err.Error()
			f.Log.Error().Err(err).Str("step", name).Msg("registration step failed")
		} else {
			f.Log.Info().Str("step", name).Str("detail", s.Detail).Msg("registration step")
		}
		res.Steps = append(res.Steps, s)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
	fill := func(fields ...field) func() error {
		return func() error {
			for _, fl := range fields {
				if err := f.Page.Fill(ctx, ByName(fl.name), fl.value); err != nil {
					return fmt.Errorf("fill %s: %w", fl.name, err)
				}
			}
			return nil
		}
	}

	u := fx.UserData
	p := fx.PaymentData
	popupDetail := "no popup"
	registerDetail := "register button ready, not submitted"

	steps := []struct {
		name   string
		detail *string
		fn     func() error
	}{
		{"open", &f.URL, func() error { return f.Page.Navigate(ctx, f.URL) }},
		{"close popup", &popupDetail, func() error {
			found, err := f.Page.Exists(ctx, SelectorPopupClose, t.Popup)
			if err != nil || !found {
				return err
			}
			popupDetail = "popup closed"
			return f.Page.Click(ctx, SelectorPopupClose)
		}},
		{"wait for user form", nil, func() error { return f.Page.Wait(ctx, ByName("first_name"), t.Form) }},
		{"fill user details", nil, fill(
			field{"first_name", u.FirstName},
			field{"last_name", u.LastName},
			field{"username", u.Username},
			field{"password", u.Password},
			field{"confirm_password", u.ConfirmPassword},
			field{"phoneNumber", u.PhoneNumber},
			field{"dev_address", u.Address},
		)},
		{"select country", &u.Country, func() error { return f.Page.Select(ctx, ByName("dev_country"), u.Country) }},
		{"fill location", nil, fill(
			field{"dev_city", u.City},
			field{"dev_state", u.State},
			field{"dev_zip", u.Zip},
		)},
		{"accept terms", nil, func() error { return f.Page.JSClick(ctx, SelectorTerms) }},
		{"continue", nil, func() error {
			if err := f.Page.Wait(ctx, SelectorContinue, t.Buttons); err != nil {
				return err
			}
			return f.Page.Click(ctx, SelectorContinue)
		}},
		{"wait for payment form", nil, func() error { return f.Page.Wait(ctx, ByName("credit_card_number"), t.Form) }},
		{"fill payment details", nil, fill(
			field{"credit_card_number", p.CardNumber},
			field{"credit_card_expiration_date", p.ExpirationDate},
			field{"credit_security_code", p.SecurityCode},
		)},
		{"register", &registerDetail, func() error {
			if err := f.Page.Wait(ctx, SelectorRegister, t.Buttons); err != nil {
				return err
			}
			if !f.Submit {
				return nil
			}
			if err := f.Page.Click(ctx, SelectorRegister); err != nil {
				return err
			}
			res.Submitted = true
			registerDetail = "submitted"
			return nil
		}},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := step(s.name, s.detail, s.fn); err != nil {
			return res, err
		}
	}
	return res, nil
}

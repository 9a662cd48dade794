package registration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicdeploy/pql-testkit/pkg/testdata"
)

type fakePage struct {
	calls  []string
	popup  bool
	failOn string
}

func (p *fakePage) record(call string) error {
	p.calls = append(p.calls, call)
	if p.failOn != "" && strings.HasPrefix(call, p.failOn) {
		return errors.New("element not found")
	}
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	return p.record("navigate " + url)
}

func (p *fakePage) Exists(_ context.Context, selector string, _ time.Duration) (bool, error) {
	return p.popup, p.record("exists " + selector)
}

func (p *fakePage) Wait(_ context.Context, selector string, _ time.Duration) error {
	return p.record("wait " + selector)
}

func (p *fakePage) Fill(_ context.Context, selector, text string) error {
	return p.record("fill " + selector + "=" + text)
}

func (p *fakePage) Select(_ context.Context, selector, text string) error {
	return p.record("select " + selector + "=" + text)
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	return p.record("click " + selector)
}

func (p *fakePage) JSClick(_ context.Context, selector string) error {
	return p.record("jsclick " + selector)
}

func TestFlowFillsBothPagesWithoutSubmitting(t *testing.T) {
	page := &fakePage{}
	fx := testdata.Fake(3)
	flow := &Flow{Page: page, URL: "https://sai.test/register", Log: zerolog.Nop()}

	res, err := flow.Run(context.Background(), fx)
	require.NoError(t, err)

	assert.False(t, res.Submitted)
	assert.Equal(t, "navigate https://sai.test/register", page.calls[0])
	assert.Contains(t, page.calls, "fill [name='first_name']="+fx.UserData.FirstName)
	assert.Contains(t, page.calls, "select [name='dev_country']=United States")
	assert.Contains(t, page.calls, "jsclick "+SelectorTerms)
	assert.Contains(t, page.calls, "click "+SelectorContinue)
	assert.Contains(t, page.calls, "fill [name='credit_security_code']="+fx.PaymentData.SecurityCode)
	assert.Equal(t, "wait "+SelectorRegister, page.calls[len(page.calls)-1])
	assert.NotContains(t, page.calls, "click "+SelectorPopupClose)

	require.Len(t, res.Steps, 11)
	assert.Equal(t, "no popup", res.Steps[1].Detail)
	assert.Equal(t, "register button ready, not submitted", res.Steps[10].Detail)
}

func TestFlowSubmitAndPopup(t *testing.T) {
	page := &fakePage{popup: true}
	flow := &Flow{Page: page, URL: "https://sai.test/register", Submit: true, Log: zerolog.Nop()}

	res, err := flow.Run(context.Background(), testdata.Fake(3))
	require.NoError(t, err)

	assert.True(t, res.Submitted)
	assert.Equal(t, "popup closed", res.Steps[1].Detail)
	assert.Contains(t, page.calls, "click "+SelectorPopupClose)
	assert.Equal(t, "click "+SelectorRegister, page.calls[len(page.calls)-1])
}

func TestFlowStopsAtFirstFailure(t *testing.T) {
	page := &fakePage{failOn: "wait [name='credit_card_number']"}
	flow := &Flow{Page: page, URL: "https://sai.test/register", Submit: true, Log: zerolog.Nop()}

	res, err := flow.Run(context.Background(), testdata.Fake(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wait for payment form")

	last := res.Steps[len(res.Steps)-1]
	assert.Equal(t, "wait for payment form", last.Name)
	assert.Equal(t, "element not found", last.Err)
	assert.False(t, res.Submitted)
	for _, c := range page.calls {
		assert.False(t, strings.Contains(c, "credit_security_code"), "payment form filled after failure")
	}
}

func TestFlowRejectsInvalidFixture(t *testing.T) {
	page := &fakePage{}
	_, err := (&Flow{Page: page, Log: zerolog.Nop()}).Run(context.Background(), &testdata.Fixture{})
	assert.Error(t, err)
	assert.Empty(t, page.calls)
}

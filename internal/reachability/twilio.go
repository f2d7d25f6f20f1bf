package reachability

import (
	"context"
	"errors"
	"fmt"

	twilio "github.com/twilio/twilio-go"
	lookups "github.com/twilio/twilio-go/rest/lookups/v2"
)

// lookupAPI is the subset of the Twilio Lookup v2 client used by TwilioChecker
type lookupAPI interface {
	FetchPhoneNumber(phoneNumber string, params *lookups.FetchPhoneNumberParams) (*lookups.LookupsV2PhoneNumber, error)
}

// TwilioChecker uses Twilio Lookup v2 to confirm that a number exists
type TwilioChecker struct {
	api lookupAPI
}

// NewTwilioChecker creates a checker authenticated with an account SID and auth token
func NewTwilioChecker(accountSID, authToken string) (*TwilioChecker, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio account_sid and auth_token are required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioChecker{api: client.LookupsV2}, nil
}

// Check implements Checker. The Twilio client is not context-aware, so the
// call runs in a goroutine and ctx only bounds how long we wait for it.
func (c *TwilioChecker) Check(ctx context.Context, req Request) (Result, error) {
	type outcome struct {
		resp *lookups.LookupsV2PhoneNumber
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		resp, err := c.api.FetchPhoneNumber(req.Number, &lookups.FetchPhoneNumberParams{})
		done <- outcome{resp, err}
	}()

	var o outcome
	select {
	case <-ctx.Done():
		return Result{Status: StatusUnknown}, ctx.Err()
	case o = <-done:
	}

	if o.err != nil {
		return Result{Status: StatusUnknown}, fmt.Errorf("twilio lookup failed: %w", o.err)
	}

	return resultFromLookup(o.resp), nil
}

func resultFromLookup(resp *lookups.LookupsV2PhoneNumber) Result {
	res := Result{Status: StatusUnknown}
	if resp == nil {
		return res
	}
	if resp.PhoneNumber != nil {
		res.ExternalID = *resp.PhoneNumber
	}
	if resp.Valid != nil {
		if *resp.Valid {
			res.Status = StatusConfirmed
		} else {
			res.Status = StatusDenied
		}
	}
	return res
}

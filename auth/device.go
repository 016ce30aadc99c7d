package auth

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
)

// DeviceFlowCallbacks allows customization of user interaction.
type DeviceFlowCallbacks struct {
	// OnUserCode is called when the user code is available.
	// Implementations should display the verification URL and code to the user.
	OnUserCode func(verificationURI, userCode string)

	// OnSuccess is called when authentication succeeds (optional).
	OnSuccess func()
}

// DefaultCallbacks returns callbacks that print to stderr, keeping stdout
// free for command output.
func DefaultCallbacks() *DeviceFlowCallbacks {
	return WriterCallbacks(os.Stderr)
}

// WriterCallbacks returns callbacks that print to w.
func WriterCallbacks(w io.Writer) *DeviceFlowCallbacks {
	return &DeviceFlowCallbacks{
		OnUserCode: func(uri, code string) {
			fmt.Fprintf(w, "\nAuthentication required\n")
			fmt.Fprintf(w, "   Visit: %s\n", uri)
			fmt.Fprintf(w, "   Enter code: %s\n\n", code)
			fmt.Fprintf(w, "   Waiting for authorization...\n")
		},
		OnSuccess: func() {
			fmt.Fprintf(w, "Authentication successful\n")
		},
	}
}

// deviceToken runs the device authorization flow to completion. The
// context bounds the whole flow, including polling.
func deviceToken(ctx context.Context, conf *oauth2.Config, callbacks *DeviceFlowCallbacks) (*oauth2.Token, error) {
	if callbacks == nil {
		callbacks = DefaultCallbacks()
	}

	da, err := conf.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}

	if callbacks.OnUserCode != nil {
		uri := da.VerificationURI
		if uri == "" {
			uri = da.VerificationURIComplete
		}
		callbacks.OnUserCode(uri, da.UserCode)
	}

	tok, err := conf.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, err
	}

	if callbacks.OnSuccess != nil {
		callbacks.OnSuccess()
	}
	return tok, nil
}

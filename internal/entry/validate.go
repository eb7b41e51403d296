package entry

import (
	"context"
	"fmt"
	"net/url"

	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// ClientFactory builds a device session from validation input. The hub
// provides the production factory; tests substitute fakes.
type ClientFactory func(in Input) somweb.Client

// Validate checks user-supplied configuration against a live device.
//
// The checks run in order: syntactic validation of the mode-dependent
// address, credential presence, liveness, then authentication. The
// first failure wins and maps onto the package's error taxonomy. The
// session opened for validation is always closed, on every path.
//
// On success the returned UDI comes from the device and overrides any
// user-entered value.
func Validate(ctx context.Context, factory ClientFactory, in Input) (Result, error) {
	switch in.Mode {
	case ModeLocal:
		if err := checkURL(in.URL); err != nil {
			return Result{}, err
		}
	case ModeCloud:
		if in.UDI == "" {
			return Result{}, ErrInvalidUDI
		}
	default:
		return Result{}, fmt.Errorf("%w: mode %q", ErrUnknown, in.Mode)
	}

	if in.Username == "" || in.Password == "" {
		return Result{}, ErrInvalidAuth
	}

	client := factory(in)
	defer client.Close()

	if !client.IsAlive(ctx) {
		return Result{}, ErrCannotConnect
	}

	auth, err := client.Authenticate(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	if !auth.Success {
		return Result{}, ErrInvalidAuth
	}

	udi := client.UDI()
	if udi == "" {
		return Result{}, fmt.Errorf("%w: device reported no udi", ErrUnknown)
	}

	return Result{
		UDI:   udi,
		Title: "SOMweb " + udi,
	}, nil
}

func checkURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}

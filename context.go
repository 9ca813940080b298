package goTokens

import "context"

type clientIPContextKey struct{}
type deviceIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine includes
// it in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDeviceID attaches a device identifier to ctx. Refresh tokens issued
// under this ctx carry the device id in their claims and ledger record.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func deviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceID, _ := ctx.Value(deviceIDContextKey{}).(string)
	return deviceID
}

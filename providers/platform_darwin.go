package providers

import "github.com/marcus-crane/presence-bridge/shared"

func init() {
	register(shared.PROVIDER_APPLE_MUSIC, func() Provider { return NewAppleMusic() })
}

package providers

import "github.com/marcus-crane/presence-bridge/shared"

func init() {
	register(shared.PROVIDER_MPRIS, func() Provider { return NewMpris() })
}

package shared

const (
	PROVIDER_APPLE_MUSIC = "apple_music"
	PROVIDER_WINDOWS     = "windows"
	PROVIDER_MPRIS       = "mpris"
	PROVIDER_NULL        = "null"
	PROVIDER_NONE        = "none"

	ACTIVITY_TYPE_LISTENING = 2
	ACTIVITY_NAME           = "Listening"

	PLAYER_STATE_PLAYING = "Playing"
	PLAYER_STATE_PAUSED  = "Paused"

	APP_NAME = "presence-bridge"
)

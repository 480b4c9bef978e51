package utils

import (
	"fmt"
	"strings"
)

const (
	appleMusicSearchURL = "https://music.apple.com/us/search?term=%s"
	spotifySearchURL    = "https://open.spotify.com/search/%s"
)

func AppleMusicSearchURL(artist, title string) string {
	return fmt.Sprintf(appleMusicSearchURL, encodeQuery(artist+" "+title))
}

func SpotifySearchURL(artist, title string) string {
	return fmt.Sprintf(spotifySearchURL, encodeQuery(artist+" "+title))
}

// encodeQuery percent-encodes every byte that isn't an ASCII letter or digit.
func encodeQuery(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

package media

import (
	"net"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/roomapi"
)

// ConnectURL turns the media URL handed out by the room API into one the
// client can reach. The host is always the application's host, since the
// media service sits behind the same origin. Secure pages use wss on the
// default port; otherwise ws on the advertised port. When raw is empty the
// server info supplies it.
func ConnectURL(raw string, info *roomapi.ServerInfo, page *url.URL) string {
	if raw == "" && info != nil {
		raw = info.LiveKitURL
		if raw == "" && info.HostIP != "" {
			port := info.LiveKitPort.String()
			if port == "" {
				port = roomapi.DefaultMediaPort
			}
			raw = "ws://" + net.JoinHostPort(info.HostIP, port)
		}
		log.Debug().Str("url", raw).Msg("media url taken from server info")
	}

	host := page.Hostname()
	secure := page.Scheme == "https"

	port := roomapi.DefaultMediaPort
	if u, err := url.Parse(toHTTPScheme(raw)); err == nil && u.Port() != "" {
		port = u.Port()
	}

	if secure {
		return "wss://" + bracket(host)
	}
	return "ws://" + net.JoinHostPort(host, port)
}

func toHTTPScheme(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ws://"):
		return "http://" + strings.TrimPrefix(raw, "ws://")
	case strings.HasPrefix(raw, "wss://"):
		return "https://" + strings.TrimPrefix(raw, "wss://")
	default:
		return raw
	}
}

func bracket(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

package media

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vibemeet/internal/roomapi"
)

func TestConnectURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		info     *roomapi.ServerInfo
		page     string
		expected string
	}{
		{name: "plain page keeps advertised port", raw: "ws://livekit:7881", page: "http://192.168.1.10:8080/room.html", expected: "ws://192.168.1.10:7881"},
		{name: "plain page default port", raw: "ws://livekit", page: "http://localhost/room.html", expected: "ws://localhost:7880"},
		{name: "secure page drops port", raw: "ws://livekit:7880", page: "https://meet.example.com/room.html", expected: "wss://meet.example.com"},
		{name: "server info fallback", raw: "", info: &roomapi.ServerInfo{LiveKitURL: "ws://10.0.0.5:7890"}, page: "http://10.0.0.5/room.html", expected: "ws://10.0.0.5:7890"},
		{name: "server info host and port", raw: "", info: &roomapi.ServerInfo{HostIP: "10.0.0.5", LiveKitPort: "7999"}, page: "http://10.0.0.5/room.html", expected: "ws://10.0.0.5:7999"},
		{name: "unparseable url", raw: "ws://[::bad", page: "http://localhost/room.html", expected: "ws://localhost:7880"},
		{name: "ipv6 page", raw: "ws://livekit:7880", page: "https://[::1]/room.html", expected: "wss://[::1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := url.Parse(tt.page)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, ConnectURL(tt.raw, tt.info, page))
		})
	}
}

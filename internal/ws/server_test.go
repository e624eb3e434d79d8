package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/inkboard/internal/presence"
	"github.com/manpreetbhatti/inkboard/internal/protocol"
	"github.com/manpreetbhatti/inkboard/internal/shape"
)

func startServer(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	hub := NewHub(presence.NewMemoryRegistry(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips frames until one with the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.Event) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		if env.Event == want {
			return env
		}
	}
}

// readCount returns the first participant-count equal to want, failing on timeout.
func readCount(t *testing.T, conn *websocket.Conn, want int) {
	t.Helper()
	for {
		n, err := readUntil(t, conn, protocol.EventParticipantCount).Count()
		require.NoError(t, err)
		if n == want {
			return
		}
	}
}

func TestRectangleReachesPeer(t *testing.T) {
	_, url := startServer(t, Options{})

	a := dial(t, url+"?room=canvas")
	readCount(t, a, 1)
	b := dial(t, url+"?room=canvas")
	readCount(t, a, 2)
	readCount(t, b, 2)

	s := shape.Create(shape.KindRectangle, shape.Point{X: 10, Y: 10}, shape.Style{Color: "#4f46e5", StrokeWidth: 3})
	s = shape.Extend(s, shape.Point{X: 50, Y: 40})
	frame, err := protocol.Encode(protocol.EventShapesUpdate, shape.Snapshot{s})
	require.NoError(t, err)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, frame))

	env := readUntil(t, b, protocol.EventShapesUpdate)
	got, err := env.Shapes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].X)
	assert.Equal(t, 10.0, got[0].Y)
	assert.Equal(t, 40.0, got[0].Width)
	assert.Equal(t, 30.0, got[0].Height)
}

func TestThreeParticipantsOneLeaves(t *testing.T) {
	hub, url := startServer(t, Options{})

	a := dial(t, url)
	readCount(t, a, 1)
	b := dial(t, url)
	readCount(t, b, 2)
	c := dial(t, url)

	for _, conn := range []*websocket.Conn{a, b, c} {
		readCount(t, conn, 3)
	}

	c.Close()

	for _, conn := range []*websocket.Conn{a, b} {
		readCount(t, conn, 2)
		left := readUntil(t, conn, protocol.EventParticipantLeft)
		id, err := left.ParticipantID()
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestOversizedFrameDropsConnection(t *testing.T) {
	_, url := startServer(t, Options{MaxMessageSize: 256})

	a := dial(t, url)
	readCount(t, a, 1)
	big := dial(t, url)
	readCount(t, a, 2)

	payload := `{"event":"shapes-update","data":[{"id":"` + strings.Repeat("x", 1024) + `"}]}`
	require.NoError(t, big.WriteMessage(websocket.TextMessage, []byte(payload)))

	readCount(t, a, 1)
	readUntil(t, a, protocol.EventParticipantLeft)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	_, url := startServer(t, Options{})

	a := dial(t, url)
	readCount(t, a, 1)
	b := dial(t, url)
	readCount(t, a, 2)
	readCount(t, b, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"event":"cursor-update","data":{"x":1,"y":1,"color":"#000","name":"A"}}`)))

	env := readUntil(t, b, protocol.EventCursorUpdate)
	cursor, err := env.Cursor()
	require.NoError(t, err)
	assert.Equal(t, "A", cursor.Name)
	assert.NotEmpty(t, cursor.ID)
}

package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OneAIgency/carbondesk/internal/domain"
	"github.com/OneAIgency/carbondesk/internal/feed"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 15 * time.Second
)

// PriceDialer opens price streams against the registry's /ws/prices
// endpoint. It implements feed.StreamDialer. There is deliberately no
// reconnection here: the feed makes one socket attempt per lifetime and
// falls back to polling for good.
type PriceDialer struct {
	wsURL string
}

// NewPriceDialer creates a dialer for the given WebSocket URL, e.g.
// "wss://registry.example.com/ws/prices".
func NewPriceDialer(wsURL string) *PriceDialer {
	return &PriceDialer{wsURL: wsURL}
}

// Dial establishes the WebSocket connection and starts the read and ping
// loops. The returned stream is live until it errors, the peer closes, or
// Close is called.
func (d *PriceDialer) Dial(ctx context.Context) (feed.PriceStream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("registry/ws: connect: %w", err)
	}

	s := &priceStream{
		conn: conn,
		msgs: make(chan domain.ReferencePrices, 16),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}

	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

// priceStream is one established /ws/prices subscription. Every frame is a
// whole price snapshot; unparseable frames are dropped.
type priceStream struct {
	conn *websocket.Conn
	msgs chan domain.ReferencePrices
	errs chan error

	closeOnce sync.Once
	done      chan struct{}
}

func (s *priceStream) Messages() <-chan domain.ReferencePrices { return s.msgs }
func (s *priceStream) Errors() <-chan error                    { return s.errs }

// Close shuts the connection down. Safe to call more than once; a stream
// that already failed closes without error.
func (s *priceStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = s.conn.Close()
	})
	return nil
}

// readLoop reads frames until the connection dies or Close is called. The
// message channel is closed on exit so consumers observe the end of the
// stream even when no error was produced.
func (s *priceStream) readLoop() {
	defer close(s.msgs)

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Deliberate shutdown, not a stream failure.
			default:
				select {
				case s.errs <- fmt.Errorf("registry/ws: %w: %s", domain.ErrWSDisconnect, err):
				default:
				}
			}
			return
		}

		var prices apiReferencePrices
		if err := decodeNormalized(raw, &prices); err != nil {
			// Unparseable frames are dropped; the next snapshot supersedes
			// anything a lost frame carried.
			continue
		}

		select {
		case s.msgs <- prices.toDomain():
		case <-s.done:
			return
		}
	}
}

// pingLoop keeps the connection alive. A failed ping ends the loop; the read
// loop will observe the dead connection and report it.
func (s *priceStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

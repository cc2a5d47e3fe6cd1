package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"polymer-predictor/internal/api"
	"polymer-predictor/internal/ml"
)

// StreamResult is one reply on a prediction stream. Err is set when the
// server rejected the request.
type StreamResult struct {
	SMILES      string
	Predictions ml.Result
	Err         error
}

type streamReply struct {
	SMILES      string    `json:"smiles"`
	Predictions ml.Result `json:"predictions"`
	Error       string    `json:"error"`
}

// Stream sends molecules over the websocket prediction endpoint and
// reconnects with exponential backoff when the connection drops.
type Stream struct {
	url        string
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// NewStream targets the stream endpoint of the server at base.
func NewStream(base string) (*Stream, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/predict/stream"
	return &Stream{url: u.String(), Backoff: time.Second, MaxBackoff: 30 * time.Second}, nil
}

// URL returns the websocket endpoint.
func (s *Stream) URL() string { return s.url }

// Run sends every SMILES read from requests and delivers one result per
// request, in order, on results. It returns nil once requests is closed and
// drained, or ctx.Err() when cancelled. A request in flight when the
// connection drops is resent after reconnecting.
func (s *Stream) Run(ctx context.Context, requests <-chan string, results chan<- StreamResult) error {
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := s.MaxBackoff
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	var pending *string
	for {
		sent, err := s.runOnce(ctx, requests, results, &pending)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sent > 0 {
			backoff = s.Backoff
			if backoff <= 0 {
				backoff = time.Second
			}
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("Prediction stream failed, reconnecting")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce serves one connection. It returns the number of replies received
// and a nil error only when requests is exhausted.
func (s *Stream) runOnce(ctx context.Context, requests <-chan string, results chan<- StreamResult, pending **string) (int, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	log.Debug().Str("url", s.url).Msg("Prediction stream connected")

	// unblock reads when ctx is cancelled
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	received := 0
	for {
		if *pending == nil {
			select {
			case <-ctx.Done():
				return received, ctx.Err()
			case smiles, ok := <-requests:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					return received, nil
				}
				*pending = &smiles
			}
		}
		smiles := **pending

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(api.SMILESRequest{SMILES: smiles}); err != nil {
			return received, fmt.Errorf("write request: %w", err)
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read reply: %w", err)
		}
		received++
		*pending = nil

		var reply streamReply
		res := StreamResult{SMILES: smiles}
		switch {
		case json.Unmarshal(data, &reply) != nil:
			res.Err = errors.New("malformed reply from server")
		case reply.Error != "":
			res.Err = errors.New(reply.Error)
		default:
			res.Predictions = reply.Predictions
		}

		select {
		case results <- res:
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}

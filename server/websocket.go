package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/proxyre/prebundle/bundle"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChunkMessage is the wire form of one transfer protocol message.
type ChunkMessage struct {
	Type        string `json:"type"`
	Index       int    `json:"index,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`
	Chunk       string `json:"chunk,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleKeySet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WebSocket upgrade failed: %v\n", err)
			return
		}
		defer conn.Close()

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		done := make(chan struct{})

		go func() {
			defer close(done)
			for {
				_, _, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						fmt.Fprintf(os.Stderr, "WebSocket: client closed connection\n")
					}
					return
				}
			}
		}()

		if err := s.streamKeySet(conn, done); err != nil {
			fmt.Fprintf(os.Stderr, "WebSocket stream error: %v\n", err)
		}
	}
}

// streamKeySet collects the engine's key set, packs it on the
// transfer worker, and forwards each chunk message to the client.
// The worker is cancelled if the client goes away mid-stream.
func (s *Server) streamKeySet(conn *websocket.Conn, done chan struct{}) error {
	b, err := s.source.Collect()
	if err != nil {
		sendMessage(conn, ChunkMessage{Type: "error", Error: err.Error()})
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-done
		cancel()
	}()

	cfg := &bundle.TransferConfig{ChunkSize: s.config.ChunkSize, Logger: s.config.Logger}
	msgs := s.archiver.StartPack(ctx, b, s.config.Names, s.config.Format, cfg)

	sent := 0
	for msg := range msgs {
		switch msg.Type {
		case bundle.MessageChunk:
			wire := ChunkMessage{
				Type:        "fileChunk",
				Index:       msg.Index,
				TotalChunks: msg.TotalChunks,
				Chunk:       base64.StdEncoding.EncodeToString(msg.Chunk),
			}
			if err := sendMessage(conn, wire); err != nil {
				return err
			}
			sent++
			if sent%100 == 0 {
				conn.WriteMessage(websocket.PingMessage, nil)
			}

		case bundle.MessageDone:
			return sendMessage(conn, ChunkMessage{Type: "fileCreated", TotalChunks: msg.TotalChunks})

		case bundle.MessageError:
			sendMessage(conn, ChunkMessage{Type: "error", Error: msg.Err.Error()})
			return msg.Err
		}
	}

	return ctx.Err()
}

func sendMessage(conn *websocket.Conn, msg ChunkMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			fmt.Fprintf(os.Stderr, "WebSocket write error: %v\n", err)
		}
		return err
	}
	return nil
}

package progressapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
	"github.com/tradeforge/strategy-engine/src/progresshub"
)

const websocketWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func setResponse(response interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("setResponse: encode: %w", err)
	}

	return nil
}

func setErrorResponse(errType string, statusCode int, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := errorResponse{Type: errType, Msg: err.Error()}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		log.Errorf("setErrorResponse: encode: %v", encodeErr)
	}
}

// Handler streams execution progress to web clients, either as SSE or over a
// websocket. Both paths consume the same hub subscription.
type Handler struct {
	hub *progresshub.Hub
}

func NewHandler(hub *progresshub.Hub) *Handler {
	return &Handler{hub: hub}
}

func SetupHandler(router *mux.Router, hub *progresshub.Hub) {
	h := NewHandler(hub)

	router.HandleFunc("/{strategyID}/progress", h.handleLatest).Methods("GET")
	router.HandleFunc("/{strategyID}/progress/stream", h.handleStream).Methods("GET")
	router.HandleFunc("/{strategyID}/progress/ws", h.handleWebsocket).Methods("GET")
}

// handleLatest returns the most recent event for pollers that do not hold a
// stream open.
func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	strategyID := eventmodels.StrategyID(mux.Vars(r)["strategyID"])

	event, found := h.hub.Latest(strategyID)
	if !found {
		setErrorResponse("handleLatest: no progress", 404, fmt.Errorf("no progress recorded for strategy %s", strategyID), w)
		return
	}

	if err := setResponse(event, w); err != nil {
		log.Errorf("handleLatest: %v", err)
	}
}

// handleStream serves server-sent events. The subscription snapshot means a
// client attaching mid-run immediately sees the current stage.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		setErrorResponse("handleStream: streaming unsupported", 500, fmt.Errorf("response writer does not support flushing"), w)
		return
	}

	strategyID := eventmodels.StrategyID(mux.Vars(r)["strategyID"])

	events, unsubscribe := h.hub.Subscribe(strategyID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(200)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				log.Errorf("handleStream: marshal: %v", err)
				continue
			}

			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
			flusher.Flush()

			if event.Stage.IsTerminal() {
				return
			}
		}
	}
}

func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	strategyID := eventmodels.StrategyID(mux.Vars(r)["strategyID"])

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("handleWebsocket: upgrade: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.hub.Subscribe(strategyID)
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.Debugf("handleWebsocket: client gone for strategy %s: %v", strategyID, err)
				return
			}

			if event.Stage.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
		}
	}
}

// Package engineserver exposes a spreadsheet.Spreadsheet over a websocket,
// broadcasting the edited cell's content after each set_user_input (and a
// "recalculated" notice after each recalculate) to every connected client.
package engineserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vogtb/sheetengine/internal/spreadsheet"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Request is one inbound message from a connected client.
type Request struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// Response is one outbound message: either a cell update or an error.
type Response struct {
	Type          string `json:"type"`
	Address       string `json:"address,omitempty"`
	Content       string `json:"content,omitempty"`
	Error         string `json:"error,omitempty"`
	CalculationID string `json:"calculationId,omitempty"`
}

// Server wraps a *spreadsheet.Spreadsheet with the connection bookkeeping and
// structured logging a long-lived workbook process needs: every client sees
// the same book, and every mutation is correlated back to the calculation
// pass it triggered.
type Server struct {
	Book *spreadsheet.Spreadsheet
	Log  *logrus.Entry

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New wraps an existing spreadsheet instance for serving. The caller owns
// book's lifetime; New only adds the connection/broadcast layer.
func New(book *spreadsheet.Spreadsheet, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		Book:    book,
		Log:     log.WithField("workbook_id", book.WorkbookID.String()),
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWebSocket upgrades an HTTP request to a websocket and processes
// set_user_input/get_cell_content/recalculate requests against Server.Book
// until the connection drops.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.mu.Unlock()
	s.Log.WithField("clients", clientCount).Info("client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.Log.WithError(err).Debug("client read loop ended")
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.writeError(conn, err)
			continue
		}
		s.handle(conn, req)
	}
}

func (s *Server) handle(conn *websocket.Conn, req Request) {
	entry := s.Log.WithFields(logrus.Fields{"type": req.Type, "address": req.Address})

	switch req.Type {
	case "set_user_input":
		if err := s.Book.SetUserInput(req.Address, req.Raw); err != nil {
			entry.WithError(err).Warn("set_user_input failed")
			s.writeError(conn, err)
			return
		}
		if err := s.Book.Calculate(context.Background()); err != nil {
			entry.WithError(err).Error("calculate failed")
			s.writeError(conn, err)
			return
		}
		s.broadcastCell(req.Address)

	case "get_cell_content":
		content, err := s.Book.GetCellContent(req.Address)
		if err != nil {
			s.writeError(conn, err)
			return
		}
		s.write(conn, Response{Type: "cell", Address: req.Address, Content: content, CalculationID: s.Book.LastCalculationID().String()})

	case "recalculate":
		if err := s.Book.Calculate(context.Background()); err != nil {
			entry.WithError(err).Error("calculate failed")
			s.writeError(conn, err)
			return
		}
		s.broadcastAll(Response{Type: "recalculated", CalculationID: s.Book.LastCalculationID().String()})

	default:
		entry.Warn("unrecognized request type")
		s.writeError(conn, errUnknownType(req.Type))
	}
}

type errUnknownType string

func (e errUnknownType) Error() string { return "unrecognized request type: " + string(e) }

func (s *Server) broadcastCell(address string) {
	content, err := s.Book.GetCellContent(address)
	resp := Response{Type: "cell", Address: address, CalculationID: s.Book.LastCalculationID().String()}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Content = content
	}
	s.broadcastAll(resp)
}

func (s *Server) broadcastAll(resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if err := client.WriteJSON(resp); err != nil {
			s.Log.WithError(err).Warn("broadcast write failed, dropping client")
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) write(conn *websocket.Conn, resp Response) {
	if err := conn.WriteJSON(resp); err != nil {
		s.Log.WithError(err).Debug("write failed")
	}
}

func (s *Server) writeError(conn *websocket.Conn, err error) {
	s.write(conn, Response{Type: "error", Error: err.Error()})
}

package collaboration

import (
	"context"
	"log"
	"net/http"

	"api-studio/internal/middleware"
	"api-studio/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, validate origin properly
		return true
	},
}

// DesignLoader resolves the editable snapshot a session starts from
type DesignLoader interface {
	EditApi(ctx context.Context, id string) (*models.EditableDocument, error)
}

// WebSocketHandler handles WebSocket connections for design editing
type WebSocketHandler struct {
	sessionManager *SessionManager
	designs        DesignLoader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessionManager *SessionManager, designs DesignLoader) *WebSocketHandler {
	return &WebSocketHandler{
		sessionManager: sessionManager,
		designs:        designs,
	}
}

// HandleDesignConnection handles a WebSocket connection for a design
// editing session
func (h *WebSocketHandler) HandleDesignConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	designID := vars["id"]

	// Extract user info from query params (in production, use proper auth)
	userID := r.URL.Query().Get("user_id")
	userName := r.URL.Query().Get("user_name")

	if userID == "" {
		userID = uuid.NewString()
	}
	if userName == "" {
		userName = "Anonymous"
	}

	ctx, span := middleware.StartSpan(ctx, "Hub.Connect",
		attribute.String("design.id", designID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	// The design must exist before anyone can edit it live
	editable, err := h.designs.EditApi(ctx, designID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		http.Error(w, "design not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := &Session{
		Session:     models.NewSession(designID, userID, userName),
		Conn:        conn,
		Send:        make(chan *models.Message, 256), // Buffered channel
		Manager:     h.sessionManager,
		BaseVersion: editable.ContentVersion,
	}
	session.touch()

	// Register through the sequencing loop
	select {
	case h.sessionManager.register <- session:
	case <-h.sessionManager.done:
		conn.Close()
		return
	}

	// Separate read/write goroutines prevent a slow peer from
	// blocking inbound processing
	go session.WritePump(ctx)
	go session.ReadPump(ctx)

	log.Printf("✓ Editing connection established for design %s (user: %s)",
		designID, userName)
}

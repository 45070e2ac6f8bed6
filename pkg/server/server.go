package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"mktplace/pkg/listings"
	"mktplace/pkg/models"
	"mktplace/pkg/network"
	"mktplace/pkg/storefront"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	store   *storefront.Storefront
	logger  *zap.Logger
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

// stateResponse is the wire form of the network state.
type stateResponse struct {
	models.State
	Warning  bool               `json:"warning"`
	Network  models.NetworkInfo `json:"network"`
	LoggedIn bool               `json:"loggedIn"`
	Address  string             `json:"address,omitempty"`
}

type switchRequest struct {
	ChainID models.ChainID `json:"chainId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(store *storefront.Storefront, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:   store,
		logger:  logger.Named("server"),
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/networks", s.handleNetworks)
	s.mux.HandleFunc("GET /api/listings", s.handleListings)
	s.mux.HandleFunc("GET /api/listings/{id}", s.handleListing)
	s.mux.HandleFunc("POST /api/listings/{id}/purchase", s.handlePurchase)
	s.mux.HandleFunc("POST /api/listings/{id}/contact", s.handleContact)
	s.mux.HandleFunc("POST /api/session", s.handleLogin)
	s.mux.HandleFunc("DELETE /api/session", s.handleLogout)
	s.mux.HandleFunc("POST /api/network/switch", s.handleSwitch)
	s.mux.HandleFunc("/ws", s.handleWS)
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.listenToNetwork(ctx, s.store.Network().Subscribe())
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Error shutting down API server", zap.Error(err))
		}
		s.closeClients()
	}()

	s.logger.Info("API server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) snapshot() stateResponse {
	net := s.store.Network()
	st := net.State()
	return stateResponse{
		State:    st,
		Warning:  st.Warning(),
		Network:  net.Networks().Info(st.CurrentNetwork),
		LoggedIn: s.store.Session() != nil,
		Address:  s.store.Address(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	table := s.store.Network().Networks()
	out := make([]models.NetworkInfo, 0, len(table))
	for _, id := range table.IDs() {
		out = append(out, table.Info(id))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Catalog().All())
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.listingID(w, r)
	if !ok {
		return
	}
	l, err := s.store.Listing(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.listingID(w, r)
	if !ok {
		return
	}
	msg, err := s.store.Purchase(id)
	switch {
	case errors.Is(err, listings.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storefront.ErrLoginRequired):
		writeError(w, http.StatusUnauthorized, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: msg})
	}
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	id, ok := s.listingID(w, r)
	if !ok {
		return
	}
	msg, err := s.store.ContactSeller(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Login(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.store.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.ChainID.Known() {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"chainId\": <positive integer>}"))
		return
	}

	err := s.store.Network().SwitchNetwork(r.Context(), req.ChainID)
	switch {
	case errors.Is(err, network.ErrSwitchUnsupported):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, network.ErrSwitchFailed):
		writeError(w, http.StatusBadGateway, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusAccepted, s.snapshot())
	}
}

func (s *Server) listingID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := listings.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return 0, false
	}
	return id, true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// Send initial state before the connection is visible to broadcasts.
	s.mu.Lock()
	err = conn.WriteJSON(network.Event{Type: "initial", Data: s.snapshot()})
	if err == nil {
		s.clients[conn] = true
	}
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToNetwork(ctx context.Context, sub network.Subscriber) {
	defer s.store.Network().Unsubscribe(sub)

	for {
		select {
		case event := <-sub:
			s.broadcast(event)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) broadcast(event network.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		_ = client.Close()
		delete(s.clients, client)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

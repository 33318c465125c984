package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
)

type Server struct {
	Engine    *engine.Engine
	Registry  *presence.Registry
	Bus       *notify.Bus
	Geo       geo.Index        // optional
	Locations *ingest.Producer // optional
	Verifier  *auth.Verifier

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(eng *engine.Engine, reg *presence.Registry, bus *notify.Bus, geoIdx geo.Index, locations *ingest.Producer, verifier *auth.Verifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Engine:    eng,
		Registry:  reg,
		Bus:       bus,
		Geo:       geoIdx,
		Locations: locations,
		Verifier:  verifier,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/active", s.handleActiveOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/accept", s.handleAcceptOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/status", s.handleOrderStatus).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/drivers/online", s.handleDriverOnline).Methods("POST")
	api.HandleFunc("/drivers/offline", s.handleDriverOffline).Methods("POST")

	// internal endpoints are expected to sit behind the service mesh
	s.mux.HandleFunc("/internal/drivers/location", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/internal/drivers/{id}/approval", s.handleDriverApproval).Methods("POST")

	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createOrderRequest struct {
	Pickup  models.Point `json:"pickup"`
	Dropoff models.Point `json:"dropoff"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.require(w, r, models.RolePassenger)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	o, err := s.Engine.Create(r.Context(), claims.Subject, req.Pickup, req.Dropoff)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": o})
}

func (s *Server) handleAcceptOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.require(w, r, models.RoleDriver)
	if !ok {
		return
	}
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	o, err := s.Engine.Accept(r.Context(), id, claims.Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.require(w, r, models.RoleDriver)
	if !ok {
		return
	}
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	o, err := s.Engine.UpdateStatus(r.Context(), id, claims.Subject, req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.require(w, r, models.RolePassenger)
	if !ok {
		return
	}
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	o, err := s.Engine.Cancel(r.Context(), id, claims.Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) handleActiveOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claims(w, r)
	if !ok {
		return
	}
	o, err := s.Engine.Active(r.Context(), claims.Subject, claims.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if o == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) handleDriverOnline(w http.ResponseWriter, r *http.Request) {
	s.setDriverOnline(w, r, true)
}

func (s *Server) handleDriverOffline(w http.ResponseWriter, r *http.Request) {
	s.setDriverOnline(w, r, false)
}

func (s *Server) setDriverOnline(w http.ResponseWriter, r *http.Request, online bool) {
	claims, ok := s.require(w, r, models.RoleDriver)
	if !ok {
		return
	}
	s.Registry.SetOnline(claims.Subject, online)
	observability.DriversAvailable.Set(float64(len(s.Registry.AvailableDrivers())))
	s.logger.Info("driver availability changed", "driver_id", claims.Subject, "online", online)
	w.WriteHeader(http.StatusNoContent)
}

type approvalRequest struct {
	Approved bool `json:"approved"`
}

func (s *Server) handleDriverApproval(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["id"]
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	s.Registry.SetApproved(driverID, req.Approved)
	observability.DriversAvailable.Set(float64(len(s.Registry.AvailableDrivers())))
	s.Bus.Notify(driverID, events.DriverApproval(driverID, req.Approved))
	s.logger.Info("driver approval changed", "driver_id", driverID, "approved", req.Approved)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.DriverLocation
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	if d.ID == "" {
		s.writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", "driver id required")
		return
	}
	if s.Locations != nil {
		if err := s.Locations.PublishLocation(d); err != nil {
			s.logger.Warn("location publish failed", "driver_id", d.ID, "error", err)
		}
	}
	if s.Geo != nil {
		s.Geo.Upsert(d)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "INVALID_INPUT", "order id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := engine.Code(err)
	if code == "INTERNAL" {
		s.logger.Error("request failed", "error", err)
		s.writeErrorCode(w, http.StatusInternalServerError, code, "internal error")
		return
	}
	s.writeErrorCode(w, statusFor(code), code, err.Error())
}

func (s *Server) writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

func statusFor(code string) int {
	switch code {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "FORBIDDEN", "NOT_APPROVED", "NOT_ONLINE":
		return http.StatusForbidden
	case "NOT_AVAILABLE", "ALREADY_TAKEN", "NOT_ACTIVE":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

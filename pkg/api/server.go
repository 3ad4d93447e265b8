package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/universexyz/marketplace-orderbook/pkg/engine"
	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/price"
	"github.com/universexyz/marketplace-orderbook/pkg/query"
)

// Server exposes the order book over REST and WebSocket.
type Server struct {
	engine  *engine.Engine
	queries *query.Engine
	prices  *price.Scheduler
	router  *mux.Router
	hub     *Hub
	origins []string
	log     *zap.SugaredLogger
}

func NewServer(eng *engine.Engine, queries *query.Engine, prices *price.Scheduler, origins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine:  eng,
		queries: queries,
		prices:  prices,
		router:  mux.NewRouter(),
		hub:     NewHub(log),
		origins: origins,
		log:     log,
	}
	eng.OnUpdate(s.hub.BroadcastOrder)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	v1.HandleFunc("/orders", s.handleQueryOrders).Methods("GET")
	v1.HandleFunc("/orders/{hash}", s.handleGetOrder).Methods("GET")
	v1.HandleFunc("/orders/{hash}/prepare", s.handlePrepareMatch).Methods("POST")

	// Indexer-facing endpoints
	v1.HandleFunc("/internal/orders/match", s.handleMatchOrders).Methods("PUT")
	v1.HandleFunc("/internal/orders/cancel", s.handleCancelOrders).Methods("PUT")
	v1.HandleFunc("/internal/orders/track", s.handleTrackTransfer).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and blocks serving HTTP.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload order.Order
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	created, err := s.engine.CreateOrder(r.Context(), &payload)
	if err != nil {
		s.respondOrderError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	o, err := s.engine.GetByHash(hash)
	if errors.Is(err, order.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleQueryOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}
	items, total, err := s.queries.Query(r.Context(), f, s.prices.Current())
	if err != nil {
		var ve *order.ValidationError
		if errors.As(err, &ve) {
			respondError(w, http.StatusBadRequest, "invalid query", ve.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "query failed", err.Error())
		return
	}
	norm := f.Normalized()
	respondJSON(w, http.StatusOK, QueryResponse{Orders: items, Total: total, Page: norm.Page, Limit: norm.Limit})
}

func (s *Server) handlePrepareMatch(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	var req PrepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Taker == "" {
		respondError(w, http.StatusBadRequest, "missing taker", "")
		return
	}
	tx, err := s.engine.PrepareMatch(r.Context(), hash, req.Taker, req.Amount)
	if errors.Is(err, order.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "prepare failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) handleMatchOrders(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, BatchResponse(s.engine.MatchOrders(req.Events)))
}

func (s *Server) handleCancelOrders(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, BatchResponse(s.engine.CancelOrders(req.Events)))
}

func (s *Server) handleTrackTransfer(w http.ResponseWriter, r *http.Request) {
	var ev order.TransferEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.engine.StaleOrder(ev); err != nil {
		respondError(w, http.StatusInternalServerError, "track failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondOrderError maps engine errors onto the taxonomy: validation and
// domain-rule violations are client errors, everything else is internal.
func (s *Server) respondOrderError(w http.ResponseWriter, err error) {
	var ve *order.ValidationError
	if errors.As(err, &ve) {
		respondError(w, http.StatusBadRequest, "validation failed", ve.Error())
		return
	}
	for _, domainErr := range []error{
		order.ErrTypeNotAllowed, order.ErrOrderAlreadyExists, order.ErrInvalidSalt,
		order.ErrSellSideETH, order.ErrInvalidAssetClass, order.ErrSignatureMismatch,
		order.ErrAllowanceFailed,
	} {
		if errors.Is(err, domainErr) {
			respondError(w, http.StatusBadRequest, domainErr.Error(), "")
			return
		}
	}
	s.log.Errorw("create_order_failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal error", err.Error())
}

func parseFilter(r *http.Request) (query.Filter, error) {
	q := r.URL.Query()
	f := query.Filter{
		Side:       order.Side(strings.ToUpper(q.Get("side"))),
		Window:     query.ActivityWindow(strings.ToUpper(q.Get("window"))),
		Maker:      q.Get("maker"),
		AssetClass: order.AssetClass(q.Get("assetClass")),
		Collection: q.Get("collection"),
		Token:      q.Get("token"),
		MinPrice:   q.Get("minPrice"),
		MaxPrice:   q.Get("maxPrice"),
		Sort:       query.SortMode(strings.ToUpper(q.Get("sortBy"))),
		HasOffers:  q.Get("hasOffers") == "true",
	}
	if v := q.Get("tokenIds"); v != "" {
		f.TokenIDs = strings.Split(v, ",")
	}
	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			f.Statuses = append(f.Statuses, order.Status(strings.ToUpper(st)))
		}
	}
	if v := q.Get("beforeTimestamp"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.BeforeTimestamp = ts
	}
	if v := q.Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Page = p
	}
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Limit = l
	}
	return f, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}

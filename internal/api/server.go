package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"reviewer-multisig-go/internal/ledger"
	"reviewer-multisig-go/internal/multisig"
)

// MultisigReader reads live multisig state.
type MultisigReader interface {
	Info(ctx context.Context) (*multisig.Info, error)
	GetMultisigMembers(ctx context.Context) ([]multisig.Member, error)
}

// BatchStore reads recorded reward batches.
type BatchStore interface {
	GetBatch(multisig string, index uint64) (*ledger.Batch, error)
	ListBatches(multisig string) ([]ledger.Batch, error)
	ListPayouts(batchID int64) ([]ledger.Payout, error)
}

// Server exposes read-only multisig and ledger state over HTTP.
type Server struct {
	reader   MultisigReader
	store    BatchStore
	multisig string
	router   *mux.Router
}

// NewServer wires the routes. store may be nil when the ledger is disabled.
func NewServer(reader MultisigReader, store BatchStore, multisigPDA solana.PublicKey) *Server {
	s := &Server{
		reader:   reader,
		store:    store,
		multisig: multisigPDA.String(),
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/multisig", s.InfoHandler).Methods("GET")
	s.router.HandleFunc("/multisig/members", s.MembersHandler).Methods("GET")
	s.router.HandleFunc("/batches", s.BatchesHandler).Methods("GET")
	s.router.HandleFunc("/batches/{index}", s.BatchHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Read API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) InfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.reader.Info(r.Context())
	if err != nil {
		s.chainError(w, err)
		return
	}
	writeJSON(w, info)
}

func (s *Server) MembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := s.reader.GetMultisigMembers(r.Context())
	if err != nil {
		s.chainError(w, err)
		return
	}
	writeJSON(w, members)
}

func (s *Server) BatchesHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Ledger disabled", http.StatusServiceUnavailable)
		return
	}

	batches, err := s.store.ListBatches(s.multisig)
	if err != nil {
		log.WithError(err).Warn("failed to list batches")
		http.Error(w, "Failed to list batches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, batches)
}

type batchResponse struct {
	*ledger.Batch
	Payouts []ledger.Payout `json:"payouts"`
}

func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Ledger disabled", http.StatusServiceUnavailable)
		return
	}

	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid transaction index", http.StatusBadRequest)
		return
	}

	batch, err := s.store.GetBatch(s.multisig, index)
	if errors.Is(err, ledger.ErrBatchNotFound) {
		http.Error(w, "Batch not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.WithError(err).Warnf("failed to get batch %d", index)
		http.Error(w, "Failed to get batch", http.StatusInternalServerError)
		return
	}

	payouts, err := s.store.ListPayouts(batch.ID)
	if err != nil {
		log.WithError(err).Warnf("failed to list payouts of batch %d", index)
		http.Error(w, "Failed to list payouts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, batchResponse{Batch: batch, Payouts: payouts})
}

func (s *Server) chainError(w http.ResponseWriter, err error) {
	if errors.Is(err, multisig.ErrAccountNotFound) {
		http.Error(w, "Multisig not found", http.StatusNotFound)
		return
	}
	log.WithError(err).Warn("failed to read multisig")
	http.Error(w, "Failed to read multisig", http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

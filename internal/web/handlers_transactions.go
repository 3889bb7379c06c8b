package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/importer/internal/importer"
	"github.com/JonMunkholm/importer/internal/logging"
)

// handleListTransactions lists stored transactions, oldest first.
// ?active=true limits the list to pending and running ones.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var txs []importer.ImportTransaction
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		txs = s.deps.Manager.ActiveTransactions()
	} else {
		txs = s.deps.Manager.Transactions()
	}
	if txs == nil {
		txs = []importer.ImportTransaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.deps.Manager.GetTransaction(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTransactionBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.deps.Manager.Batches(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

// handleRollback reverts a finished transaction. An incomplete rollback is
// reported with 500 and the per-record errors; it can be retried.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := s.deps.Manager.RollbackTransaction(r.Context(), id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
		logging.WithFields(r.Context(), "transaction_id", id).
			Warn("rollback incomplete", "errors", len(res.Errors))
	}
	writeJSON(w, status, res)
}

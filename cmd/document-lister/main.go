package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docflow/internal/gcp"
	"github.com/Lllllllleong/docflow/internal/models"
	"github.com/Lllllllleong/docflow/internal/services"
)

var (
	listerInstance *services.ListerFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleListDocuments", handleListDocuments)
}

// main is required by the Go Functions Framework.
func main() {}

// handleListDocuments lists the PDFs of a bucket. The bucket comes from the
// "bucket" query parameter or a JSON body, falling back to SOURCE_BUCKET.
func handleListDocuments(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		listerInstance, initErr = services.NewLister(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	req := models.ListDocumentsRequest{Bucket: r.URL.Query().Get("bucket")}
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Error("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
	}

	res, err := listerInstance.ListDocuments(r.Context(), &req)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidRequest):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, gcp.ErrNotFound):
		http.Error(w, "Not Found: bucket does not exist", http.StatusNotFound)
		return
	case errors.Is(err, gcp.ErrAccessDenied):
		http.Error(w, "Forbidden: access to bucket denied", http.StatusForbidden)
		return
	default:
		slog.Error("Failed to list documents", "error", err, "gcsBucket", req.Bucket)
		http.Error(w, "Internal Server Error: listing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

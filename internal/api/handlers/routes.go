package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/txgroup/internal/api/middleware"
)

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// NewRouter registers every API route.
func NewRouter(batches *BatchesHandler, categories *CategoriesHandler, jobsHandler *JobsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	// Batches endpoints
	mux.HandleFunc("/api/batches", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			batches.ListBatches(w, r)
		case http.MethodPost:
			batches.RegisterBatch(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// /api/batches/{id} and /api/batches/{id}/{action}
	mux.HandleFunc("/api/batches/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/batches/"), "/")
		batchID, action, _ := strings.Cut(rest, "/")
		if batchID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Batch ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			batches.GetBatch(w, r, batchID)
		case action == "" && r.Method == http.MethodDelete:
			batches.DeleteBatch(w, r, batchID)
		case action == "mapping" && r.Method == http.MethodPost:
			batches.MapBatch(w, r, batchID)
		case action == "groups" && r.Method == http.MethodGet:
			batches.Groups(w, r, batchID)
		case action == "summary" && r.Method == http.MethodGet:
			batches.Summary(w, r, batchID)
		case action == "assign" && r.Method == http.MethodPost:
			batches.AssignCategory(w, r, batchID)
		case action == "" || action == "mapping" || action == "groups" || action == "summary" || action == "assign":
			methodNotAllowed(w)
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	mux.HandleFunc("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			batches.Dashboard(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Categories endpoints
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			categories.ListCategories(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

package broker

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
	"github.com/dominion-zone/dominion-lancer/internal/transport"
)

// MaxBodySize caps a multipart submission body.
const MaxBodySize = 50 << 20

// PostNewFindingResponse is the acknowledgement body of /new_finding.
// Empty on success; error responses carry an error field instead.
type PostNewFindingResponse struct{}

type errorResponse struct {
	Error string `json:"error"`
}

// Router builds the broker's HTTP handler.
func (b *Broker) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/public_key", b.handlePublicKey).Methods(http.MethodGet)
	r.HandleFunc("/new_finding", b.handleNewFinding).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	h = rateLimit(h, rate.NewLimiter(rate.Limit(20), 40))
	if b.cfg.CORS {
		h = allowAll(h)
	}
	return h
}

func (b *Broker) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := b.PublicKey()
	if err != nil {
		if errors.Is(err, ErrNoEnclave) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, base64.StdEncoding.EncodeToString(key))
}

func (b *Broker) handleNewFinding(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	task, err := taskFromMultipart(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := b.Accept(r.Context(), task); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PostNewFindingResponse{})
}

// taskFromMultipart parses the submission form fields into a task.
func taskFromMultipart(r *http.Request) (*transport.LancerRunTask, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("multipart body required: %w", err)
	}

	fields := map[string][]byte{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("read field %s: %w", part.FormName(), err)
		}
		fields[part.FormName()] = data
	}

	bytesField := func(name string) ([]byte, error) {
		data, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%s not found", name)
		}
		return data, nil
	}
	idField := func(name string) (chain.ObjectID, error) {
		data, ok := fields[name]
		if !ok {
			return chain.ObjectID{}, fmt.Errorf("%s not found", name)
		}
		return chain.ObjectIDFromHex(string(data))
	}

	var task transport.LancerRunTask
	if task.IV, err = bytesField("iv"); err != nil {
		return nil, err
	}
	if task.EncryptedFile, err = bytesField("encryptedFile"); err != nil {
		return nil, err
	}
	if task.EncryptedKey, err = bytesField("encryptedKey"); err != nil {
		return nil, err
	}
	if task.BugBountyID, err = idField("bugBountyId"); err != nil {
		return nil, err
	}
	if task.FindingID, err = idField("findingId"); err != nil {
		return nil, err
	}
	if task.EscrowID, err = idField("escrowId"); err != nil {
		return nil, err
	}
	return &task, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func rateLimit(next http.Handler, limiter *rate.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

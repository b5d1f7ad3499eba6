package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"rulelens/db"
	"rulelens/llm"
	"rulelens/miner"
	"rulelens/ml"
	"rulelens/monitoring"
	"rulelens/tuning"
)

const predictionCacheSize = 1024

type cachedPrediction struct {
	Label      int
	Confidence float64
	Probs      []float64
}

// Handlers bundles the collaborators the API needs: the live model
// registry, the mining engine, the progress hub and the logger.
type Handlers struct {
	Registry *Registry
	Miner    miner.Miner
	Hub      *monitoring.Hub
	Log      *zap.Logger

	// Summarizer is optional; without it the summarize route answers 503.
	Summarizer *llm.Summarizer

	cache *lru.Cache[string, cachedPrediction]
}

// NewHandlers wires the handler set.
func NewHandlers(registry *Registry, m miner.Miner, hub *monitoring.Hub, log *zap.Logger) (*Handlers, error) {
	cache, err := lru.New[string, cachedPrediction](predictionCacheSize)
	if err != nil {
		return nil, err
	}
	return &Handlers{Registry: registry, Miner: m, Hub: hub, Log: log, cache: cache}, nil
}

// Register mounts all API routes.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/models", h.handleListModels)
	mux.HandleFunc("GET /api/models/{name}/describe", h.handleDescribe)
	mux.HandleFunc("GET /api/models/{name}/history", h.handleHistory)
	mux.HandleFunc("POST /api/models/{name}/predict", h.handlePredict)
	mux.HandleFunc("POST /api/models/{name}/explain", h.handleExplain)
	mux.HandleFunc("POST /api/models/{name}/train", h.handleTrain)
	mux.HandleFunc("POST /api/models/{name}/tune", h.handleTune)
	mux.HandleFunc("POST /api/models/{name}/summarize", h.handleSummarize)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handlers) handleListModels(w http.ResponseWriter, r *http.Request) {
	stored, err := db.ListModels()
	if err != nil {
		h.Log.Warn("list stored models", zap.Error(err))
	}

	response := map[string]interface{}{
		"loaded": h.Registry.Names(),
		"stored": stored,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handlers) handleDescribe(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := h.Registry.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	mode := ml.LabelArgMax
	switch r.URL.Query().Get("mode") {
	case "", "argmax":
	case "full":
		mode = ml.LabelFull
	default:
		http.Error(w, "mode must be argmax or full", http.StatusBadRequest)
		return
	}

	report, err := entry.Model.Describe(mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, report)
}

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	history, err := db.TrainingHistory(name, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":   name,
		"history": history,
	})
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := h.Registry.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Instances) == 0 {
		http.Error(w, "instances is required", http.StatusBadRequest)
		return
	}

	// single-instance calls dominate serving traffic, so they get a cache
	if len(req.Instances) == 1 {
		key := predictionKey(name, entry.Version, req.Instances[0])
		if hit, ok := h.cache.Get(key); ok {
			h.writePrediction(w, name, entry.Version, []int{hit.Label}, []float64{hit.Confidence}, [][]float64{hit.Probs})
			return
		}
	}

	probs, err := entry.Model.PredictProb(req.Instances)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	labels := make([]int, len(probs))
	confidences := make([]float64, len(probs))
	for i, row := range probs {
		best := 0
		for c, p := range row {
			if p > row[best] {
				best = c
			}
		}
		labels[i] = best
		confidences[i] = row[best]
	}

	if len(req.Instances) == 1 {
		key := predictionKey(name, entry.Version, req.Instances[0])
		h.cache.Add(key, cachedPrediction{Label: labels[0], Confidence: confidences[0], Probs: probs[0]})
	}

	if err := db.SavePredictions(name, labels, confidences); err != nil {
		h.Log.Warn("save predictions", zap.Error(err))
	}

	h.writePrediction(w, name, entry.Version, labels, confidences, probs)
}

func (h *Handlers) writePrediction(w http.ResponseWriter, name string, version int, labels []int, confidences []float64, probs [][]float64) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":       name,
		"version":     version,
		"labels":      labels,
		"confidences": confidences,
		"probs":       probs,
	})
}

type explanation struct {
	CapturedBy int    `json:"captured_by"`
	Rule       string `json:"rule"`
	Reached    []int  `json:"reached"`
}

func (h *Handlers) handleExplain(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := h.Registry.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Instances) == 0 {
		http.Error(w, "instances is required", http.StatusBadRequest)
		return
	}

	support, path, err := entry.Model.Explain(req.Instances)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	list := entry.Model.List
	explanations := make([]explanation, len(req.Instances))
	for j := range req.Instances {
		e := explanation{CapturedBy: -1}
		for i := 0; i < list.NRules(); i++ {
			if path[i][j] {
				e.Reached = append(e.Reached, i)
			}
			if support[i][j] {
				e.CapturedBy = i
			}
		}
		if e.CapturedBy >= 0 {
			text, err := list.Rules[e.CapturedBy].Describe(entry.Model.FeatureNames, nil, ml.LabelArgMax)
			if err == nil {
				e.Rule = text
			}
		}
		explanations[j] = e
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":        name,
		"version":      entry.Version,
		"explanations": explanations,
	})
}

func (h *Handlers) handleTrain(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var config TrainingConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	config.Model = name
	if reflect.DeepEqual(config.Options, miner.Options{}) {
		config.Options = miner.DefaultOptions()
	}

	model, report, err := trainModel(r.Context(), config, h.Miner, h.Hub, h.Log)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	version := 0
	payload, err := json.Marshal(model)
	if err == nil {
		version, err = db.SaveModel(name, payload)
	}
	if err != nil {
		h.Log.Warn("persist model", zap.String("model", name), zap.Error(err))
	}
	if err := db.LogTraining(name, report.Accuracy, report.Loss, report.DataPoints); err != nil {
		h.Log.Warn("log training", zap.String("model", name), zap.Error(err))
	}

	h.Registry.Publish(name, model, version)
	if h.Hub != nil {
		h.Hub.Publish(monitoring.Event{
			Type:  monitoring.ModelPublished,
			Model: name,
			Data:  map[string]interface{}{"version": version},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":   name,
		"version": version,
		"report":  report,
	})
}

type tuneRequest struct {
	TrainingConfig
	Search tuning.SearchConfig `json:"search"`
}

func (h *Handlers) handleTune(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req tuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Model = name

	cleaned, batch, _, nClasses, _, err := prepareDataset(req.TrainingConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	search := tuning.NewSearch(req.Search, h.Miner, h.Log)
	if h.Hub != nil {
		search.OnCandidate = func(c tuning.Candidate, progress float64) {
			h.Hub.Publish(monitoring.Event{
				Type:  monitoring.TrainingProgress,
				Model: name,
				Data: map[string]interface{}{
					"progress": progress,
					"accuracy": c.Accuracy,
					"loss":     c.Loss,
				},
			})
		}
	}

	best, err := search.Optimize(r.Context(), batch, cleaned.Labels, nClasses)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"model":      name,
		"best":       best,
		"candidates": search.Results(),
	})
}

func (h *Handlers) handleSummarize(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if h.Summarizer == nil {
		http.Error(w, "summarizer not configured", http.StatusServiceUnavailable)
		return
	}

	entry, err := h.Registry.Get(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	report, err := entry.Model.Describe(ml.LabelArgMax)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	accuracy := 0.0
	if history, err := db.TrainingHistory(name, 1); err == nil && len(history) > 0 {
		if a, ok := history[0]["accuracy"].(float64); ok {
			accuracy = a
		}
	}

	summary, err := h.Summarizer.Summarize(r.Context(), name, report, accuracy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func predictionKey(name string, version int, features []float64) string {
	key := fmt.Sprintf("%s@%d", name, version)
	for _, v := range features {
		key += fmt.Sprintf("|%v", v)
	}
	return key
}

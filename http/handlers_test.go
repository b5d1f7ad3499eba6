package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"rulelens/db"
	"rulelens/miner"
	"rulelens/ml"
)

var errMine = errors.New("mcmc diverged")

func demoModel(t *testing.T) *ml.RuleListModel {
	t.Helper()
	rule, err := ml.NewRule([]int{0}, []int{1}, []float64{0.1, 0.9})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	list, err := ml.NewRuleList([]*ml.Rule{rule, ml.NewDefaultRule([]float64{0.7, 0.3})}, 2, 1)
	if err != nil {
		t.Fatalf("NewRuleList: %v", err)
	}
	return &ml.RuleListModel{Name: "demo", List: list, FeatureNames: []string{"f0"}}
}

func newTestMux(t *testing.T, m miner.Miner) (*http.ServeMux, *Registry) {
	t.Helper()

	if err := db.InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	registry := NewRegistry()
	registry.Publish("demo", demoModel(t), 1)

	handlers, err := NewHandlers(registry, m, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}
	mux := http.NewServeMux()
	handlers.Register(mux)
	return mux, registry
}

func TestHealth(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDescribe(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/models/demo/describe", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "The rule list has 2 of rules:") {
		t.Fatalf("unexpected report header: %q", body)
	}
	if !strings.Contains(body, "IF (f0 = 1) THEN label 1 prob: 0.9000") {
		t.Fatalf("report missing rule line: %q", body)
	}
}

func TestDescribeUnknownMode(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/models/demo/describe?mode=verbose", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDescribeUnknownModel(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/models/nope/describe", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPredict(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	body := strings.NewReader(`{"instances": [[1], [0], [1]]}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/demo/predict", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Labels      []int     `json:"labels"`
		Confidences []float64 `json:"confidences"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !reflect.DeepEqual(resp.Labels, []int{1, 0, 1}) {
		t.Fatalf("labels = %v", resp.Labels)
	}
	if resp.Confidences[0] != 0.9 || resp.Confidences[1] != 0.7 {
		t.Fatalf("confidences = %v", resp.Confidences)
	}
}

func TestPredictCachedSingleInstance(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	for i := 0; i < 2; i++ {
		body := strings.NewReader(`{"instances": [[1]]}`)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/demo/predict", body))

		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d", i, rec.Code)
		}
		var resp struct {
			Labels []int `json:"labels"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("call %d: decode: %v", i, err)
		}
		if !reflect.DeepEqual(resp.Labels, []int{1}) {
			t.Fatalf("call %d: labels = %v", i, resp.Labels)
		}
	}
}

func TestPredictEmptyBody(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/demo/predict", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestExplain(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	body := strings.NewReader(`{"instances": [[1], [0]]}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/demo/explain", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Explanations []struct {
			CapturedBy int    `json:"captured_by"`
			Rule       string `json:"rule"`
			Reached    []int  `json:"reached"`
		} `json:"explanations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Explanations) != 2 {
		t.Fatalf("got %d explanations", len(resp.Explanations))
	}

	// instance [1] is captured by the first rule and never reaches the default
	first := resp.Explanations[0]
	if first.CapturedBy != 0 {
		t.Fatalf("instance 0 captured by rule %d", first.CapturedBy)
	}
	if !reflect.DeepEqual(first.Reached, []int{0}) {
		t.Fatalf("instance 0 reached %v", first.Reached)
	}
	if !strings.Contains(first.Rule, "f0 = 1") {
		t.Fatalf("instance 0 rule text %q", first.Rule)
	}

	// instance [0] falls through to the default
	second := resp.Explanations[1]
	if second.CapturedBy != 1 {
		t.Fatalf("instance 1 captured by rule %d", second.CapturedBy)
	}
	if !reflect.DeepEqual(second.Reached, []int{0, 1}) {
		t.Fatalf("instance 1 reached %v", second.Reached)
	}
}

func TestTrain(t *testing.T) {
	static := &miner.Static{
		Result: &miner.Result{
			Order: []int{0, 1},
			Probs: [][]float64{{0.1, 0.9}, {0.7, 0.3}},
			Names: []string{"{0=1}", "default"},
		},
	}
	mux, registry := newTestMux(t, static)

	dataPath := filepath.Join(t.TempDir(), "train.csv")
	csv := "label,f0,f1\n1,1,0\n1,1,1\n0,0,0\n0,0,1\n"
	if err := os.WriteFile(dataPath, []byte(csv), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"dataset_path": dataPath,
		"has_header":   true,
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/iris/train", strings.NewReader(string(payload))))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Model   string `json:"model"`
		Version int    `json:"version"`
		Report  struct {
			Accuracy   float64 `json:"accuracy"`
			DataPoints int     `json:"data_points"`
			NRules     int     `json:"n_rules"`
		} `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Model != "iris" || resp.Version != 1 {
		t.Fatalf("model %q version %d", resp.Model, resp.Version)
	}
	if resp.Report.Accuracy != 1.0 {
		t.Fatalf("accuracy = %v", resp.Report.Accuracy)
	}
	if resp.Report.NRules != 2 || resp.Report.DataPoints != 4 {
		t.Fatalf("report = %+v", resp.Report)
	}

	// the trained model is live immediately
	entry, err := registry.Get("iris")
	if err != nil {
		t.Fatalf("registry.Get after train: %v", err)
	}
	if entry.Version != 1 {
		t.Fatalf("registry version = %d", entry.Version)
	}

	// and persisted
	stored, _, err := db.LoadLatestModel("iris")
	if err != nil {
		t.Fatalf("LoadLatestModel: %v", err)
	}
	var saved ml.RuleListModel
	if err := json.Unmarshal(stored, &saved); err != nil {
		t.Fatalf("unmarshal stored model: %v", err)
	}
	if saved.List.NRules() != 2 {
		t.Fatalf("stored model has %d rules", saved.List.NRules())
	}
}

func TestTrainMinerFailure(t *testing.T) {
	static := &miner.Static{Err: errMine}
	mux, _ := newTestMux(t, static)

	dataPath := filepath.Join(t.TempDir(), "train.csv")
	if err := os.WriteFile(dataPath, []byte("label,f0\n1,1\n0,0\n"), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"dataset_path": dataPath,
		"has_header":   true,
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/iris/train", strings.NewReader(string(payload))))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTune(t *testing.T) {
	static := &miner.Static{
		Result: &miner.Result{
			Order: []int{0, 1},
			Probs: [][]float64{{0.1, 0.9}, {0.7, 0.3}},
			Names: []string{"{0=1}", "default"},
		},
	}
	mux, _ := newTestMux(t, static)

	dataPath := filepath.Join(t.TempDir(), "tune.csv")
	csv := "label,f0,f1\n1,1,0\n1,1,1\n0,0,0\n0,0,1\n1,1,2\n0,0,2\n"
	if err := os.WriteFile(dataPath, []byte(csv), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"dataset_path": dataPath,
		"has_header":   true,
		"search": map[string]interface{}{
			"min_support": []float64{0.01, 0.05},
		},
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/iris/tune", strings.NewReader(string(payload))))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Best struct {
			Accuracy float64 `json:"accuracy"`
		} `json:"best"`
		Candidates []json.RawMessage `json:"candidates"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Best.Accuracy != 1.0 {
		t.Fatalf("best accuracy = %v", resp.Best.Accuracy)
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("got %d candidates", len(resp.Candidates))
	}
}

func TestSummarizeUnconfigured(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/api/models/demo/summarize", strings.NewReader(`{}`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	mux, _ := newTestMux(t, &miner.Static{})

	if err := db.LogTraining("demo", 0.9, 0.3, 100); err != nil {
		t.Fatalf("LogTraining: %v", err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/models/demo/history", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		History []map[string]interface{} `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.History) != 1 {
		t.Fatalf("got %d history rows", len(resp.History))
	}
	if resp.History[0]["accuracy"].(float64) != 0.9 {
		t.Fatalf("accuracy = %v", resp.History[0]["accuracy"])
	}
}

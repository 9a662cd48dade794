package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/atomicdeploy/pql-testkit/pkg/client"
	"github.com/atomicdeploy/pql-testkit/pkg/generator"
	"github.com/atomicdeploy/pql-testkit/pkg/pql"
	"github.com/atomicdeploy/pql-testkit/pkg/schema"
)

// maxBodyBytes bounds request bodies posted to the dashboard.
const maxBodyBytes = 4 << 20

type apiSummary struct {
	Name       string `json:"name"`
	FieldCount int    `json:"field_count"`
}

type fieldInfo struct {
	Name string           `json:"name"`
	Type schema.FieldType `json:"type"`
}

// handleListAPIs returns every API in the catalog
func (s *Server) handleListAPIs(w http.ResponseWriter, r *http.Request) {
	catalog := s.Catalog()
	apis := make([]apiSummary, 0, catalog.Len())
	for _, api := range catalog.Items {
		apis = append(apis, apiSummary{Name: api.Name, FieldCount: len(api.Fields)})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(apis),
		"apis":    apis,
	})
}

// handleGetAPI returns the fields of one API with their inferred types
func (s *Server) handleGetAPI(w http.ResponseWriter, r *http.Request) {
	api, err := s.Catalog().Lookup(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}

	fields := make([]fieldInfo, len(api.Fields))
	for i, f := range api.Fields {
		fields[i] = fieldInfo{Name: f, Type: api.TypeOf(f)}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"api":     api.Name,
		"count":   len(fields),
		"fields":  fields,
	})
}

// handleGenerateCases generates test cases for one API. Query parameters:
// seed, limit and category (repeatable or comma separated).
func (s *Server) handleGenerateCases(w http.ResponseWriter, r *http.Request) {
	opts, err := generatorOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	gen := generator.New(s.Catalog(), opts)
	cases, err := gen.GenerateAPI(mux.Vars(r)["name"])
	if errors.Is(err, schema.ErrUnknownAPI) {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"seed":       gen.Seed(),
		"count":      len(cases),
		"test_cases": cases,
	})
}

func generatorOptions(r *http.Request) (generator.Options, error) {
	var opts generator.Options
	q := r.URL.Query()

	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid seed %q", v)
		}
		opts.Seed = seed
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
		opts.Limit = limit
	}

	var names []string
	for _, v := range q["category"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	cats, err := generator.ParseCategories(names)
	if err != nil {
		return opts, err
	}
	opts.Categories = cats
	return opts, nil
}

// queryResponse is what the dashboard shows for one request.
type queryResponse struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"status_code"`
	LatencyMS  int64             `json:"latency_ms"`
	Headers    map[string]string `json:"headers,omitempty"`
	Data       *client.Response  `json:"data,omitempty"`
	Body       string            `json:"body,omitempty"`
	Error      string            `json:"error,omitempty"`
	Request    interface{}       `json:"request"`
	History    *client.Entry     `json:"history_entry,omitempty"`
}

func newQueryResponse(res *client.Result, request interface{}) queryResponse {
	out := queryResponse{
		Success:    res.OK(),
		StatusCode: res.StatusCode,
		LatencyMS:  res.Latency.Milliseconds(),
		Headers:    make(map[string]string, len(res.Headers)),
		Data:       res.Response,
		Request:    request,
	}
	for k := range res.Headers {
		out.Headers[k] = res.Headers.Get(k)
	}
	if res.Response == nil {
		out.Body = string(res.Body)
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
	}
	return out
}

// handleQuery executes a PQL request with the configured credentials
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req pql.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.client.Execute(r.Context(), req)
	entry := s.recordHistory(req.PQL, res, err)
	if err != nil {
		respondJSON(w, http.StatusBadGateway, queryResponse{Error: err.Error(), Request: req, History: &entry})
		return
	}

	out := newQueryResponse(res, req)
	out.History = &entry
	respondJSON(w, http.StatusOK, out)
}

type sendRequest struct {
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// handleSend forwards a raw console request. Posted headers are layered over
// the configured credentials.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Body) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("body is required"))
		return
	}
	if !json.Valid(req.Body) {
		respondError(w, http.StatusBadRequest, errors.New("body is not valid JSON"))
		return
	}

	headers := s.client.DefaultHeaders()
	for k, v := range req.Headers {
		headers[k] = v
	}

	var sent struct {
		PQL string `json:"pql"`
	}
	_ = json.Unmarshal(req.Body, &sent)

	res, err := s.client.Send(r.Context(), headers, req.Body)
	entry := s.recordHistory(sent.PQL, res, err)
	if err != nil {
		respondJSON(w, http.StatusBadGateway, queryResponse{Error: err.Error(), Request: req.Body, History: &entry})
		return
	}

	out := newQueryResponse(res, req.Body)
	out.History = &entry
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) recordHistory(pqlText string, res *client.Result, err error) client.Entry {
	entry := s.history.Record(s.client.Endpoint(), pqlText, res, err)
	s.hub.broadcast(event{Type: eventHistory, Data: s.history.List()})
	return entry
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.history.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(entries),
		"history": entries,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.history.Clear()
	s.hub.broadcast(event{Type: eventHistory, Data: []client.Entry{}})
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type example struct {
	Name    string      `json:"name"`
	Request pql.Request `json:"request"`
}

var examples = []example{
	{"Basic Patient Query", pql.Request{PQL: "SELECT [patients.patient_id] FROM [patients]", Limit: 50}},
	{"All Patient Fields", pql.Request{PQL: "SELECT * FROM [patients]", Limit: 25}},
	{"Count Patients", pql.Request{PQL: "SELECT COUNT([patients.patient_id]) FROM [patients]", Limit: 10}},
	{"Patient with Conditions", pql.Request{PQL: "SELECT [patients.patient_id], [patients.first_name] FROM [patients] WHERE [patients.patient_id] > 1000", Limit: 20}},
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"examples": examples,
	})
}

// handleExportCSV turns posted result items into a CSV download
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items    []map[string]interface{} `json:"items"`
		Filename string                   `json:"filename"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("no items to export"))
		return
	}

	name := req.Filename
	if name == "" || strings.ContainsAny(name, `/\"`) {
		name = "api_response.csv"
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if err := s.exporter.WriteItems(w, req.Items); err != nil {
		s.log.Error().Err(err).Msg("csv export failed")
	}
}

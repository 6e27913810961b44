package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mchmarny/dropscore/pkg/data"
	"github.com/mchmarny/dropscore/pkg/net"
	"github.com/mchmarny/dropscore/pkg/record"
	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/mchmarny/dropscore/pkg/tabular"
)

const (
	msgUnexpected   = "Unexpected server error"
	msgModelFailure = "Model prediction failed"
	msgNoJSON       = "No JSON body provided"
	msgNoCSV        = "No CSV data provided"
	msgNotFound     = "Student not found"

	batchFileName = "predictions.csv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeScoreError maps scoring failures to responses. Inference failures
// carry a short detail; anything else stays generic.
func (s *server) writeScoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, score.ErrModelInference) {
		s.metrics.Failed("model")
		slog.Error("model prediction failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  msgModelFailure,
			"detail": err.Error(),
		})
		return
	}
	s.metrics.Failed("internal")
	slog.Error("scoring failed", "error", err)
	writeError(w, http.StatusInternalServerError, msgUnexpected)
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (record.Raw, bool) {
	rec, err := record.Decode(r.Body)
	if err != nil {
		slog.Debug("invalid record", "error", err)
		msg := "Invalid JSON body"
		if errors.Is(err, record.ErrEmptyRecord) {
			msg = msgNoJSON
		}
		writeError(w, http.StatusBadRequest, msg)
		return nil, false
	}
	return rec, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid student id")
		return 0, false
	}
	return id, true
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}
	return i
}

func queryParamBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}

func (s *server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &net.Health{Status: net.StatusHealthy, ModelRun: s.run})
}

type savedResponse struct {
	*score.Response
	StudentID int64 `json:"student_id"`
}

func (s *server) predictHandler(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.engine.Score(r.Context(), rec)
	s.metrics.Observe("predict", start)
	if err != nil {
		s.writeScoreError(w, err)
		return
	}
	s.metrics.Scored(res)

	resp := score.NewResponse(res)
	if !queryParamBool(r, "save") {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	st := data.NewStudent(rec)
	if err := data.SaveScored(s.db, []*data.Student{st}, []*score.Result{res}, s.run); err != nil {
		slog.Error("error saving prediction", "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	writeJSON(w, http.StatusOK, &savedResponse{Response: resp, StudentID: st.ID})
}

func (s *server) batchHandler(w http.ResponseWriter, r *http.Request) {
	t, err := tabular.Read(r.Body)
	if err != nil {
		slog.Debug("invalid batch", "error", err)
		msg := "Invalid CSV data"
		if errors.Is(err, tabular.ErrNoHeader) {
			msg = msgNoCSV
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	rows := t.Records()
	start := time.Now()
	results, err := s.engine.ScoreBatch(r.Context(), rows, s.workers)
	s.metrics.Observe("batch", start)
	if err != nil {
		s.writeScoreError(w, err)
		return
	}
	s.metrics.Scored(results...)

	if queryParamBool(r, "save") {
		students := make([]*data.Student, len(rows))
		for i, row := range rows {
			students[i] = data.NewStudent(row)
		}
		if err := data.SaveScored(s.db, students, results, s.run); err != nil {
			slog.Error("error saving batch", "error", err)
			writeError(w, http.StatusInternalServerError, msgUnexpected)
			return
		}
	}

	var buf bytes.Buffer
	if err := tabular.Write(&buf, t, results); err != nil {
		slog.Error("error writing batch", "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+batchFileName)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed to write batch response", "error", err)
	}
}

func (s *server) listStudentsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := data.ListStudents(s.db, queryParamInt(r, "limit", 0))
	if err != nil {
		slog.Error("error listing students", "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) createStudentHandler(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	st := data.NewStudent(rec)
	if err := data.SaveStudent(s.db, st); err != nil {
		slog.Error("error saving student", "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *server) student(w http.ResponseWriter, r *http.Request) (*data.Student, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	st, err := data.GetStudent(s.db, id)
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgNotFound)
			return nil, false
		}
		slog.Error("error getting student", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return nil, false
	}
	return st, true
}

func (s *server) getStudentHandler(w http.ResponseWriter, r *http.Request) {
	if st, ok := s.student(w, r); ok {
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *server) deleteStudentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := data.DeleteStudent(s.db, id); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgNotFound)
			return
		}
		slog.Error("error deleting student", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) predictStudentHandler(w http.ResponseWriter, r *http.Request) {
	st, ok := s.student(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.engine.Score(r.Context(), st.Attributes)
	s.metrics.Observe("predict", start)
	if err != nil {
		s.writeScoreError(w, err)
		return
	}
	s.metrics.Scored(res)

	p, err := data.SavePrediction(s.db, st.ID, s.run, res)
	if err != nil {
		slog.Error("error saving prediction", "student", st.ID, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) studentPredictionsHandler(w http.ResponseWriter, r *http.Request) {
	st, ok := s.student(w, r)
	if !ok {
		return
	}
	list, err := data.ListPredictions(s.db, st.ID)
	if err != nil {
		slog.Error("error listing predictions", "student", st.ID, "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) summaryHandler(w http.ResponseWriter, _ *http.Request) {
	sum, err := data.GetSummary(s.db)
	if err != nil {
		slog.Error("error getting summary", "error", err)
		writeError(w, http.StatusInternalServerError, msgUnexpected)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

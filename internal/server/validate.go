package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coffersTech/logvault/internal/metrics"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/valyala/fastjson"
)

var (
	stringFields = []string{
		"level", "message", "service", "source", "environment", "ip",
		"userAgent", "resourceId", "traceId", "spanId", "commit",
	}

	errBodyTooLarge = errors.New("request body too large")
)

func countRejected(reason string) {
	metrics.IngestRejected.WithLabelValues(reason).Inc()
}

// readBody reads the whole request body, capped at MaxBodyBytes.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return body, nil
}

// checkTypes verifies that v is an object whose known fields carry the JSON
// types LogInput expects. Required fields and the level enum are checked after
// decoding by LogInput.Validate.
func checkTypes(v *fastjson.Value) *model.ValidationError {
	if v.Type() != fastjson.TypeObject {
		return &model.ValidationError{Index: -1, Reason: "log must be a JSON object"}
	}

	for _, key := range stringFields {
		f := v.Get(key)
		if f != nil && f.Type() != fastjson.TypeString && f.Type() != fastjson.TypeNull {
			return &model.ValidationError{Index: -1, Field: key, Reason: key + " must be a string"}
		}
	}

	if tags := v.Get("tags"); tags != nil && tags.Type() != fastjson.TypeNull {
		arr, err := tags.Array()
		if err != nil {
			return &model.ValidationError{Index: -1, Field: "tags", Reason: "tags must be an array of strings"}
		}
		for _, t := range arr {
			if t.Type() != fastjson.TypeString {
				return &model.ValidationError{Index: -1, Field: "tags", Reason: "tags must be an array of strings"}
			}
		}
	}

	if d := v.Get("duration"); d != nil && d.Type() != fastjson.TypeNumber && d.Type() != fastjson.TypeNull {
		return &model.ValidationError{Index: -1, Field: "duration", Reason: "duration must be a number"}
	}
	return nil
}

// parseSingle validates and decodes a single log body.
func (s *Server) parseSingle(body []byte) (model.LogInput, error) {
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return model.LogInput{}, &model.ValidationError{Index: -1, Reason: "invalid JSON: " + err.Error()}
	}
	if ve := checkTypes(v); ve != nil {
		return model.LogInput{}, ve
	}

	var in model.LogInput
	if err := json.Unmarshal(body, &in); err != nil {
		return model.LogInput{}, &model.ValidationError{Index: -1, Reason: "invalid JSON: " + err.Error()}
	}
	if err := in.Validate(); err != nil {
		return model.LogInput{}, err
	}
	return in, nil
}

// parseBulk validates and decodes a {"logs": [...]} body. The first invalid
// element fails the whole batch and is reported by index.
func (s *Server) parseBulk(body []byte) ([]model.LogInput, error) {
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, &model.ValidationError{Index: -1, Reason: "invalid JSON: " + err.Error()}
	}
	if v.Type() != fastjson.TypeObject {
		return nil, &model.ValidationError{Index: -1, Reason: "request body must be a JSON object"}
	}

	logs := v.Get("logs")
	if logs == nil || logs.Type() != fastjson.TypeArray {
		return nil, &model.ValidationError{Index: -1, Field: "logs", Reason: "logs must be an array"}
	}
	arr, _ := logs.Array()
	if len(arr) == 0 {
		return nil, &model.ValidationError{Index: -1, Field: "logs", Reason: "logs array cannot be empty"}
	}
	for i, item := range arr {
		if ve := checkTypes(item); ve != nil {
			return nil, ve.AtIndex(i)
		}
	}

	var req struct {
		Logs []model.LogInput `json:"logs"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &model.ValidationError{Index: -1, Reason: "invalid JSON: " + err.Error()}
	}
	for i, in := range req.Logs {
		if err := in.Validate(); err != nil {
			var ve *model.ValidationError
			if errors.As(err, &ve) {
				return nil, ve.AtIndex(i)
			}
			return nil, err
		}
	}
	return req.Logs, nil
}

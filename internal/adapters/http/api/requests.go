package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/grader/internal/app"
	"github.com/okian/grader/internal/domain/layout"
	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/internal/util"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(batchSourceValidation, batchRequest{})
	return v
}

// batchSourceValidation requires exactly one of submissions and prefix.
func batchSourceValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(batchRequest)
	hasPrefix := strings.Trim(req.Prefix, "/ ") != ""
	switch {
	case hasPrefix && len(req.Submissions) > 0:
		sl.ReportError(req.Prefix, "prefix", "Prefix", "excluded_with", "submissions")
	case !hasPrefix && len(req.Submissions) == 0:
		sl.ReportError(req.Submissions, "submissions", "Submissions", "required_without", "prefix")
	}
}

type pageRequest struct {
	Data string `json:"data" validate:"required"`
	MIME string `json:"mime,omitempty" validate:"omitempty,max=64"`
}

type settingsRequest struct {
	Mode        string   `json:"mode,omitempty" validate:"omitempty,oneof=Strict Standard"`
	Subject     string   `json:"subject,omitempty" validate:"omitempty,max=64"`
	Language    string   `json:"language,omitempty" validate:"omitempty,max=64"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Model       string   `json:"model,omitempty" validate:"omitempty,max=128"`
}

func (s settingsRequest) settings() service.Settings {
	return service.Settings{
		Mode:        s.Mode,
		Subject:     s.Subject,
		Language:    s.Language,
		Temperature: s.Temperature,
		Model:       s.Model,
	}
}

// gradeRequest mirrors the OpenAPI schema for POST /grade.
type gradeRequest struct {
	Pages    []pageRequest   `json:"pages" validate:"required,min=1,dive"`
	Rubric   json.RawMessage `json:"rubric" validate:"required"`
	Settings settingsRequest `json:"settings"`
}

type submissionRequest struct {
	Key   string        `json:"key,omitempty" validate:"omitempty,max=128"`
	Pages []pageRequest `json:"pages" validate:"required,min=1,dive"`
}

// batchRequest mirrors the OpenAPI schema for POST /batches.
type batchRequest struct {
	Strategy       string              `json:"strategy,omitempty" validate:"omitempty,oneof=vertical collage"`
	Submissions    []submissionRequest `json:"submissions,omitempty" validate:"omitempty,dive"`
	Prefix         string              `json:"prefix,omitempty" validate:"omitempty,max=512"`
	Rubric         json.RawMessage     `json:"rubric" validate:"required"`
	Settings       settingsRequest     `json:"settings"`
	Plan           string              `json:"plan,omitempty" validate:"omitempty,max=64"`
	IdempotencyKey string              `json:"idempotency_key,omitempty" validate:"omitempty,max=256"`
	LayoutMap      []layout.PageBoxes  `json:"layout_map,omitempty"`
	IgnoreFirst    bool                `json:"ignore_first,omitempty"`
}

type submitResponse struct {
	BatchID   string       `json:"batch_id"`
	Status    model.Status `json:"status"`
	Duplicate bool         `json:"duplicate"`
}

// decodeBody decodes and validates a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator output into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// rubricText accepts the rubric either as a JSON string holding JSON or YAML
// text, or as an inline JSON object.
func rubricText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func decodePages(in []pageRequest) ([]model.Page, error) {
	pages := make([]model.Page, 0, len(in))
	for i, p := range in {
		data, hint, err := util.DecodeBase64MaybeDataURL(p.Data)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("page %d: empty image", i)
		}
		pages = append(pages, model.Page{Data: data, MIME: util.PickMIME(p.MIME, hint, data)})
	}
	return pages, nil
}

func (b batchRequest) submitRequest(r *http.Request) (service.SubmitRequest, error) {
	subs := make([]model.Submission, 0, len(b.Submissions))
	for i, s := range b.Submissions {
		pages, err := decodePages(s.Pages)
		if err != nil {
			return service.SubmitRequest{}, fmt.Errorf("submission %d: %w", i, err)
		}
		subs = append(subs, model.Submission{Key: strings.TrimSpace(s.Key), Pages: pages})
	}
	key := strings.TrimSpace(b.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	return service.SubmitRequest{
		Strategy:       model.Strategy(b.Strategy),
		Submissions:    subs,
		Prefix:         b.Prefix,
		Rubric:         rubricText(b.Rubric),
		Settings:       b.Settings.settings(),
		Plan:           b.Plan,
		IdempotencyKey: key,
		LayoutMap:      b.LayoutMap,
		IgnoreFirst:    b.IgnoreFirst,
	}, nil
}

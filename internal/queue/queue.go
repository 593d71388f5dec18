// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queue carries jobs to codec slots, cancellation requests to every
// worker and results back to the producer. Redis is the production
// transport; Memory serves single-process runs and tests.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// ErrClosed is returned by a closed transport.
var ErrClosed = errors.New("queue closed")

// Delivery is one job taken from a codec queue. It must be settled with
// Ack, Retry or Release.
type Delivery struct {
	Job   *model.Job
	Codec model.Codec
	raw   string
}

// CancelRequest names one job or a batch of jobs to cancel.
type CancelRequest struct {
	ID  string   `json:"id,omitempty"`
	IDs []string `json:"ids,omitempty"`
}

// JobIDs flattens the request.
func (c CancelRequest) JobIDs() []string {
	var out []string
	if c.ID != "" {
		out = append(out, c.ID)
	}
	for _, id := range c.IDs {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Validator checks inbound job payloads.
type Validator struct {
	v *validator.Validate
}

// NewValidator reports field errors by their JSON names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns a single error listing every invalid field.
func (v *Validator) Validate(job *model.Job) error {
	err := v.v.Struct(job)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", f.Namespace(), f.Tag()))
	}
	return fmt.Errorf("invalid job: %s", strings.Join(msgs, ", "))
}

// DecodeJob parses and validates a job payload.
func (v *Validator) DecodeJob(raw []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if err := v.Validate(&job); err != nil {
		return &job, err
	}
	if !job.Data.Codec.Valid() {
		return &job, fmt.Errorf("invalid job: unsupported codec %d", int(job.Data.Codec))
	}
	return &job, nil
}

package core

import (
	"errors"
	"net/http"
)

// ProblemDocument models the canonical error envelope for API responses.
type ProblemDocument struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Problem captures the information returned in an error response.
type Problem struct {
	Status int
	Title  string
	Detail string
}

// NormalizeProblem ensures the provided problem includes canonical defaults.
func NormalizeProblem(problem *Problem) *Problem {
	if problem == nil {
		problem = &Problem{}
	}
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	return problem
}

// ProblemFromError maps domain error kinds to their HTTP representation.
func ProblemFromError(err error) *Problem {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotLoaded):
		status = http.StatusNotFound
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrAlreadyLoaded):
		status = http.StatusBadRequest
	case errors.Is(err, ErrAdapter), errors.Is(err, ErrIntegrity):
		status = http.StatusInternalServerError
	}
	return NormalizeProblem(&Problem{Status: status, Detail: err.Error()})
}

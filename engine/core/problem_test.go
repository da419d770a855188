package core

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemFromError(t *testing.T) {
	t.Run("Should map missing things to 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ProblemFromError(NotFoundf("llm %q", "x")).Status)
		assert.Equal(t, http.StatusNotFound, ProblemFromError(NewNotLoaded("llm", "x")).Status)
	})

	t.Run("Should map caller mistakes to 400", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ProblemFromError(Validationf("bad body")).Status)
		assert.Equal(t, http.StatusBadRequest, ProblemFromError(Unsupportedf("class %q", "Nope")).Status)
		assert.Equal(t, http.StatusBadRequest, ProblemFromError(AlreadyExistsf("id %q", "x")).Status)
		assert.Equal(t, http.StatusBadRequest, ProblemFromError(NewAlreadyLoaded("llm", "x")).Status)
	})

	t.Run("Should map adapter and unknown failures to 500", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError,
			ProblemFromError(AdapterErr("openai", errors.New("boom"))).Status)
		assert.Equal(t, http.StatusInternalServerError,
			ProblemFromError(errors.New("unclassified")).Status)
	})

	t.Run("Should carry the error text as detail", func(t *testing.T) {
		p := ProblemFromError(NotFoundf("chain %q", "ghost"))
		assert.Contains(t, p.Detail, "ghost")
		assert.Equal(t, http.StatusText(http.StatusNotFound), p.Title)
	})
}

func TestNormalizeProblem(t *testing.T) {
	t.Run("Should default nil to a 500 problem", func(t *testing.T) {
		p := NormalizeProblem(nil)
		require.NotNil(t, p)
		assert.Equal(t, http.StatusInternalServerError, p.Status)
		assert.Equal(t, http.StatusText(http.StatusInternalServerError), p.Title)
	})

	t.Run("Should keep an explicit title", func(t *testing.T) {
		p := NormalizeProblem(&Problem{Status: http.StatusBadRequest, Title: "nope"})
		assert.Equal(t, "nope", p.Title)
	})
}

func TestIsNotFound(t *testing.T) {
	t.Run("Should match both missing-config and missing-instance kinds", func(t *testing.T) {
		assert.True(t, IsNotFound(NotFoundf("x")))
		assert.True(t, IsNotFound(NewNotLoaded("llm", "x")))
		assert.False(t, IsNotFound(Validationf("x")))
		assert.False(t, IsNotFound(nil))
	})
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndError(t *testing.T) {
	err := New(CategoryImage, SeverityError, "decode failed")
	assert.Equal(t, "image (error): decode failed", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("truncated file")
	err := Wrap(cause, CategoryFont, SeverityError, "parse font")

	assert.Contains(t, err.Error(), "truncated file")
	require.ErrorIs(t, err, cause)
}

func TestWithContext(t *testing.T) {
	err := New(CategoryRewrite, SeverityWarning, "stale reference").
		WithContext("asset", "img/photo.jpg").
		WithContext("file", "index.html")

	require.NotNil(t, err.Context)
	assert.Equal(t, "img/photo.jpg", err.Context["asset"])
	assert.Equal(t, "index.html", err.Context["file"])
}

func TestCategoryPredicates(t *testing.T) {
	err := New(CategoryConfig, SeverityFatal, "missing source directory")

	assert.True(t, IsCategory(err, CategoryConfig))
	assert.False(t, IsCategory(err, CategoryImage))
	assert.Equal(t, CategoryConfig, GetCategory(err))
	assert.Equal(t, CategoryInternal, GetCategory(fmt.Errorf("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(CategoryConfig, SeverityFatal, "x")))
	assert.False(t, IsFatal(New(CategoryImage, SeverityError, "x")))
	assert.False(t, IsFatal(errors.New("plain")))
}

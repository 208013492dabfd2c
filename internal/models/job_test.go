package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 0, ClampPriority(-5))
	assert.Equal(t, 0, ClampPriority(0))
	assert.Equal(t, 7, ClampPriority(7))
	assert.Equal(t, 10, ClampPriority(10))
	assert.Equal(t, 10, ClampPriority(42))
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
}

func TestParseJobType(t *testing.T) {
	for _, valid := range []string{"navigation", "category", "product"} {
		jobType, ok := ParseJobType(valid)
		assert.True(t, ok)
		assert.Equal(t, JobType(valid), jobType)
	}

	_, ok := ParseJobType("listing")
	assert.False(t, ok)
}

func TestJobRequestValidate(t *testing.T) {
	valid := JobRequest{Type: "product", TargetURL: "https://shop.example.com/p/1", Priority: 3}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  JobRequest
	}{
		{"bad type", JobRequest{Type: "listing", TargetURL: "https://shop.example.com/p/1"}},
		{"relative url", JobRequest{Type: "product", TargetURL: "/p/1"}},
		{"priority too high", JobRequest{Type: "product", TargetURL: "https://shop.example.com/p/1", Priority: 11}},
		{"priority negative", JobRequest{Type: "product", TargetURL: "https://shop.example.com/p/1", Priority: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsValidationError(tt.req.Validate()))
		})
	}
}

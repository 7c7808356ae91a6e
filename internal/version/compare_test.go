package version

import (
	"testing"

	"github.com/rxtech-lab/argo-strategy-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name            string
		engineVersion   string
		requiredVersion string
		expectedCode    errors.ErrorCode
		errorContains   string
	}{
		{name: "exact match", engineVersion: "1.0.0", requiredVersion: "1.0.0"},
		{name: "patch differs", engineVersion: "v1.0.3", requiredVersion: "1.0.0"},
		{name: "engine dev build", engineVersion: "main", requiredVersion: "3.1.0"},
		{name: "model dev build", engineVersion: "1.0.0", requiredVersion: "main"},
		{
			name:            "minor differs",
			engineVersion:   "1.1.0",
			requiredVersion: "1.0.0",
			expectedCode:    errors.ErrCodeVersionMismatch,
			errorContains:   "minor version mismatch",
		},
		{
			name:            "major differs",
			engineVersion:   "2.0.0",
			requiredVersion: "1.0.0",
			expectedCode:    errors.ErrCodeVersionMismatch,
			errorContains:   "major version mismatch",
		},
		{
			name:            "garbage",
			engineVersion:   "1.0.0",
			requiredVersion: "not-a-version",
			expectedCode:    errors.ErrCodeInvalidVersion,
			errorContains:   "invalid required version",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckCompatibility(tc.engineVersion, tc.requiredVersion)
			if tc.errorContains == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
			assert.True(t, errors.HasCode(err, tc.expectedCode))
			assert.True(t, errors.IsConfigurationError(err))
		})
	}
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}

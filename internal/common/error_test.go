package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserMessage(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{name: "Scenario 1: private", err: ErrVideoPrivate, want: "This video is private and cannot be downloaded."},
		{name: "Scenario 2: wrapped", err: fmt.Errorf("run: %w", ErrProcessCancelled), want: "Download cancelled."},
		{name: "Scenario 3: double wrapped", err: fmt.Errorf("%w: %w", ErrFileTooLarge, errors.New("600 MB")), want: "File exceeds maximum allowed size."},
		{name: "Scenario 4: unknown", err: errors.New("disk on fire"), want: genericMessage},
		{name: "Scenario 5: artifact missing", err: ErrArtifactNotFound, want: genericMessage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, UserMessage(tc.err))
		})
	}
}

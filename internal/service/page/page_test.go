package page

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(fileName string) (string, error) {
	args := m.Called(fileName)
	return args.String(0), args.Error(1)
}

func TestGetPage(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	r := &MockRenderer{}
	r.On("Render", "page.md").Return("", errors.New("boom")).Once()
	r.On("Render", "page.md").Return("<p>one</p>", nil).Once()
	r.On("Render", "page.md").Return("<p>two</p>", nil).Once()
	r.On("Render", "page.md").Return("", errors.New("broken edit")).Once()

	s := NewPageService(r, "page.md", log)

	_, err := s.GetPage(ctx)
	require.Error(t, err)

	content, err := s.GetPage(ctx)
	require.NoError(t, err)
	require.Equal(t, "<p>one</p>", content)

	content, err = s.GetPage(ctx)
	require.NoError(t, err)
	require.Equal(t, "<p>one</p>", content)

	require.NoError(t, s.Reload())
	content, _ = s.GetPage(ctx)
	require.Equal(t, "<p>two</p>", content)

	require.Error(t, s.Reload())
	content, _ = s.GetPage(ctx)
	require.Equal(t, "<p>two</p>", content)

	r.AssertExpectations(t)
}

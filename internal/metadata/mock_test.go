package metadata

import (
	"context"

	"github.com/stretchr/testify/mock"
	gapi "google.golang.org/api/gmail/v1"
)

type mockGmailClient struct {
	mock.Mock
}

func (m *mockGmailClient) SearchThreads(ctx context.Context, query string, maxResults int64) ([]*gapi.Thread, error) {
	args := m.Called(ctx, query, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*gapi.Thread), args.Error(1)
}

func (m *mockGmailClient) GetThread(ctx context.Context, threadID string) (*gapi.Thread, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gapi.Thread), args.Error(1)
}

func (m *mockGmailClient) Profile(ctx context.Context) (*gapi.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gapi.Profile), args.Error(1)
}

package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

type mockSearchService struct {
	mock.Mock
}

func (m *mockSearchService) SearchThreads(ctx context.Context, criteria model.SearchCriteria) ([]model.Thread, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Thread), args.Error(1)
}

type mockMetadataService struct {
	mock.Mock
}

func (m *mockMetadataService) ProcessThreads(ctx context.Context, threadIDs []string) (*model.ProcessedMetadata, error) {
	args := m.Called(ctx, threadIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProcessedMetadata), args.Error(1)
}

type mockAnalysisService struct {
	mock.Mock
}

func (m *mockAnalysisService) Analyze(ctx context.Context, meta *model.ProcessedMetadata) (*model.AnalysisResult, error) {
	args := m.Called(ctx, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisResult), args.Error(1)
}

type mockDossierService struct {
	mock.Mock
}

func (m *mockDossierService) MeetingFlow(ctx context.Context, analysis *model.AnalysisResult, meta *model.ProcessedMetadata) (*model.Dossier, error) {
	args := m.Called(ctx, analysis, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dossier), args.Error(1)
}

func (m *mockDossierService) PastSummary(ctx context.Context, analysis *model.AnalysisResult, meta *model.ProcessedMetadata) (*model.Dossier, error) {
	args := m.Called(ctx, analysis, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dossier), args.Error(1)
}

func (m *mockDossierService) ClientDossier(ctx context.Context, clientName, clientDomain, clientContext string) (*model.Dossier, error) {
	args := m.Called(ctx, clientName, clientDomain, clientContext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dossier), args.Error(1)
}

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Status(ctx context.Context) (AuthStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(AuthStatus), args.Error(1)
}

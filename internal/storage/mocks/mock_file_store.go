package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"assignly/internal/model"
	"assignly/internal/storage"
)

type MockFileStore struct {
	mock.Mock
}

var _ storage.FileStore = (*MockFileStore)(nil)

func (m *MockFileStore) CreateContainer(ctx context.Context, label string) (string, error) {
	args := m.Called(ctx, label)
	return args.String(0), args.Error(1)
}

func (m *MockFileStore) Upload(ctx context.Context, containerID, name string, r io.Reader, opt storage.PutObjectOptions) (model.FileRef, error) {
	args := m.Called(ctx, containerID, name, r, opt)
	if f, ok := args.Get(0).(func(context.Context, string, string, io.Reader, storage.PutObjectOptions) model.FileRef); ok {
		return f(ctx, containerID, name, r, opt), args.Error(1)
	}
	return args.Get(0).(model.FileRef), args.Error(1)
}

func (m *MockFileStore) ListContainer(ctx context.Context, containerID string) ([]string, error) {
	args := m.Called(ctx, containerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFileStore) DeleteContainer(ctx context.Context, containerID string) (int, error) {
	args := m.Called(ctx, containerID)
	return args.Int(0), args.Error(1)
}

func (m *MockFileStore) DeleteFile(ctx context.Context, fileID string) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockFileStore) PresignGet(ctx context.Context, fileID string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, fileID, expiry)
	return args.String(0), args.Error(1)
}

package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	search "github.com/sells-group/lead-intel/internal/search"
)

// MockSearcher is a mock type for the Searcher interface.
type MockSearcher struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, query, limit
func (_m *MockSearcher) Search(ctx context.Context, query string, limit int) []search.Result {
	ret := _m.Called(ctx, query, limit)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, int) []search.Result); ok {
		return rf(ctx, query, limit)
	}
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).([]search.Result)
}

// NewMockSearcher creates a new instance of MockSearcher.
func NewMockSearcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSearcher {
	m := &MockSearcher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

// Package mocks provides test doubles for the search package.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	search "github.com/sells-group/lead-intel/internal/search"
)

// MockProvider is a mock type for the Provider interface.
type MockProvider struct {
	mock.Mock
}

// Name provides a mock function with given fields:
func (_m *MockProvider) Name() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Name")
	}

	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.String(0)
}

// Search provides a mock function with given fields: ctx, query, limit
func (_m *MockProvider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	ret := _m.Called(ctx, query, limit)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []search.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) ([]search.Result, error)); ok {
		return rf(ctx, query, limit)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]search.Result)
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, int) error); ok {
		r1 = rf(ctx, query, limit)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockProvider creates a new instance of MockProvider.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

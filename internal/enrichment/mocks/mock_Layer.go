package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	enrichment "github.com/sells-group/lead-intel/internal/enrichment"
	model "github.com/sells-group/lead-intel/internal/model"
)

// MockLayer is a mock type for the Layer interface.
type MockLayer struct {
	mock.Mock
}

// Enrich provides a mock function with given fields: ctx, t
func (_m *MockLayer) Enrich(ctx context.Context, t model.Target) (*enrichment.Output, error) {
	ret := _m.Called(ctx, t)

	if len(ret) == 0 {
		panic("no return value specified for Enrich")
	}

	var r0 *enrichment.Output
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Target) (*enrichment.Output, error)); ok {
		return rf(ctx, t)
	}
	if rf, ok := ret.Get(0).(func(context.Context, model.Target) *enrichment.Output); ok {
		r0 = rf(ctx, t)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*enrichment.Output)
	}

	if rf, ok := ret.Get(1).(func(context.Context, model.Target) error); ok {
		r1 = rf(ctx, t)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Provider provides a mock function with given fields:
func (_m *MockLayer) Provider() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Provider")
	}

	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.Get(0).(string)
}

// NewMockLayer creates a new instance of MockLayer.
func NewMockLayer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLayer {
	m := &MockLayer{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

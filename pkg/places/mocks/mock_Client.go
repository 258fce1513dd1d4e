// Package mocks provides test doubles for the places client.
package mocks

import (
	"context"

	places "github.com/sells-group/placepulse/pkg/places"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// SearchNearby provides a mock function with given fields: ctx, lat, lon, radiusMeters, hint
func (_m *MockClient) SearchNearby(ctx context.Context, lat float64, lon float64, radiusMeters float64, hint string) (*places.Candidate, error) {
	ret := _m.Called(ctx, lat, lon, radiusMeters, hint)

	if len(ret) == 0 {
		panic("no return value specified for SearchNearby")
	}

	var r0 *places.Candidate
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, float64, float64, float64, string) (*places.Candidate, error)); ok {
		return rf(ctx, lat, lon, radiusMeters, hint)
	}
	if rf, ok := ret.Get(0).(func(context.Context, float64, float64, float64, string) *places.Candidate); ok {
		r0 = rf(ctx, lat, lon, radiusMeters, hint)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*places.Candidate)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, float64, float64, float64, string) error); ok {
		r1 = rf(ctx, lat, lon, radiusMeters, hint)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Details provides a mock function with given fields: ctx, id
func (_m *MockClient) Details(ctx context.Context, id string) (*places.Details, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for Details")
	}

	var r0 *places.Details
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*places.Details, error)); ok {
		return rf(ctx, id)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *places.Details); ok {
		r0 = rf(ctx, id)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*places.Details)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, id)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

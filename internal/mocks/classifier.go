package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theblitlabs/parity-ids/internal/execution/training"
)

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Type() training.ModelType {
	args := m.Called()
	return args.Get(0).(training.ModelType)
}

func (m *MockClassifier) Fit(ctx context.Context, features [][]float64, labels []int, numClasses int) error {
	args := m.Called(ctx, features, labels, numClasses)
	return args.Error(0)
}

func (m *MockClassifier) Predict(features [][]float64) ([]int, error) {
	args := m.Called(features)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockClassifier) PredictProba(features [][]float64) ([][]float64, error) {
	args := m.Called(features)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float64), args.Error(1)
}

func (m *MockClassifier) NumFeatures() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockClassifier) NumClasses() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockClassifier) Fitted() bool {
	args := m.Called()
	return args.Bool(0)
}

var _ training.Classifier = (*MockClassifier)(nil)

package mocks

import (
	"context"

	"github.com/brettbedarf/treefs"
	"github.com/stretchr/testify/mock"
)

// MockNode implements treefs.Node for testing across packages.
// Identity comes from the embedded Base; every store call goes through the mock.
type MockNode struct {
	treefs.Base
	mock.Mock
}

// NewMockNode returns a mock named name under parent. A nil parent makes it a root.
func NewMockNode(parent treefs.Node, name string) *MockNode {
	if parent == nil {
		return &MockNode{Base: treefs.NewRootBase(name)}
	}
	return &MockNode{Base: treefs.NewBase(parent, name)}
}

func (m *MockNode) Exists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockNode) IsDir(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockNode) Children(ctx context.Context) ([]treefs.Node, error) {
	args := m.Called(ctx)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context) []treefs.Node); ok {
		return fn(ctx), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]treefs.Node), args.Error(1)
}

func (m *MockNode) Child(name string) treefs.Node {
	args := m.Called(name)
	if args.Get(0) == nil {
		return treefs.Nonexistent(m, name)
	}
	return args.Get(0).(treefs.Node)
}

func (m *MockNode) Read(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockNode) Write(ctx context.Context, content []byte) error {
	args := m.Called(ctx, content)
	return args.Error(0)
}

func (m *MockNode) Delete(ctx context.Context, recurse bool) error {
	args := m.Called(ctx, recurse)
	return args.Error(0)
}

var _ treefs.Node = (*MockNode)(nil)

// MockChecksumNode is a MockNode that also publishes a checksum.
type MockChecksumNode struct {
	MockNode
}

// NewMockChecksumNode returns a checksum publishing mock named name under parent.
func NewMockChecksumNode(parent treefs.Node, name string) *MockChecksumNode {
	m := &MockChecksumNode{}
	if parent == nil {
		m.Base = treefs.NewRootBase(name)
	} else {
		m.Base = treefs.NewBase(parent, name)
	}
	return m
}

func (m *MockChecksumNode) Checksum(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

var _ treefs.Checksummer = (*MockChecksumNode)(nil)

// MockRootProvider implements treefs.RootProvider for testing across packages
type MockRootProvider struct {
	mock.Mock
}

func (m *MockRootProvider) NewRoot(raw []byte) (treefs.Node, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(treefs.Node), args.Error(1)
}

var _ treefs.RootProvider = (*MockRootProvider)(nil)

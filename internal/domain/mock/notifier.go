package mock

import (
	reflect "reflect"

	snowflake "github.com/disgoorg/snowflake/v2"
	gomock "go.uber.org/mock/gomock"
)

// MockNotifier is a mock of Notifier interface.
type MockNotifier struct {
	ctrl     *gomock.Controller
	recorder *MockNotifierMockRecorder
	isgomock struct{}
}

// MockNotifierMockRecorder is the mock recorder for MockNotifier.
type MockNotifierMockRecorder struct {
	mock *MockNotifier
}

// NewMockNotifier creates a new mock instance.
func NewMockNotifier(ctrl *gomock.Controller) *MockNotifier {
	mock := &MockNotifier{ctrl: ctrl}
	mock.recorder = &MockNotifierMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockNotifier) EXPECT() *MockNotifierMockRecorder {
	return m.recorder
}

// Invite mocks base method.
func (m *MockNotifier) Invite(guildID snowflake.ID, message string) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Invite", guildID, message)
}

// Invite indicates an expected call of Invite.
func (mr *MockNotifierMockRecorder) Invite(guildID, message any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Invite", reflect.TypeOf((*MockNotifier)(nil).Invite), guildID, message)
}

// Log mocks base method.
func (m *MockNotifier) Log(guildID snowflake.ID, message string) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Log", guildID, message)
}

// Log indicates an expected call of Log.
func (mr *MockNotifierMockRecorder) Log(guildID, message any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Log", reflect.TypeOf((*MockNotifier)(nil).Log), guildID, message)
}

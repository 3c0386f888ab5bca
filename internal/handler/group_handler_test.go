package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/social-go-api/internal/dto"
	"github.com/noah-isme/social-go-api/internal/handler"
	"github.com/noah-isme/social-go-api/internal/service"
)

type mockGroupService struct {
	service.GroupService

	lastGroup   string
	lastUserID  string
	lastMember  string
	lastCreate  dto.GroupCreateRequest
	leaveErr    error
	removeCalls int
}

func (m *mockGroupService) Create(_ context.Context, adminID string, payload dto.GroupCreateRequest) (dto.GroupResponse, error) {
	m.lastUserID = adminID
	m.lastCreate = payload
	return dto.GroupResponse{ID: "g1", Name: payload.Name, AdminID: adminID, Members: append([]string{adminID}, payload.Members...)}, nil
}

func (m *mockGroupService) RemoveMember(_ context.Context, groupID, adminID, memberID string) (dto.GroupResponse, error) {
	m.removeCalls++
	m.lastGroup = groupID
	m.lastUserID = adminID
	m.lastMember = memberID
	return dto.GroupResponse{ID: groupID, AdminID: adminID}, nil
}

func (m *mockGroupService) AddMember(_ context.Context, groupID, adminID string, payload dto.GroupMemberRequest) (dto.GroupResponse, error) {
	m.lastGroup = groupID
	m.lastUserID = adminID
	m.lastMember = payload.UserID
	return dto.GroupResponse{ID: groupID}, nil
}

func (m *mockGroupService) Leave(_ context.Context, groupID, userID string) error {
	m.lastGroup = groupID
	m.lastUserID = userID
	return m.leaveErr
}

func (m *mockGroupService) SetTyping(_ context.Context, groupID, userID string, _ bool) error {
	m.lastGroup = groupID
	m.lastUserID = userID
	return nil
}

func newGroupApp(svc *mockGroupService, userID string) *fiber.App {
	app := newApp(userID, "member")
	handler.NewGroupHandler(svc, testLogger).Register(app.Group("/groups"))
	return app
}

func TestGroupHandler_Create(t *testing.T) {
	svc := &mockGroupService{}
	app := newGroupApp(svc, "a")

	payload := map[string]interface{}{"name": "Climbers", "members": []string{"b", "c"}}
	status, body := perform(t, app, jsonRequest(t, http.MethodPost, "/groups", payload))
	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, "group created", body.Message)
	require.Equal(t, []string{"b", "c"}, svc.lastCreate.Members)

	var group dto.GroupResponse
	decodeData(t, body, &group)
	require.Equal(t, "a", group.AdminID)
	require.Equal(t, []string{"a", "b", "c"}, group.Members)
}

func TestGroupHandler_MemberRoutes(t *testing.T) {
	svc := &mockGroupService{}
	app := newGroupApp(svc, "a")

	status, _ := perform(t, app, jsonRequest(t, http.MethodPost, "/groups/g1/members", map[string]string{"user_id": "d"}))
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "d", svc.lastMember)

	status, _ = perform(t, app, jsonRequest(t, http.MethodDelete, "/groups/g1/members/b", nil))
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 1, svc.removeCalls)
	require.Equal(t, "g1", svc.lastGroup)
	require.Equal(t, "a", svc.lastUserID)
	require.Equal(t, "b", svc.lastMember)
}

func TestGroupHandler_AdminLeaveIsRejected(t *testing.T) {
	svc := &mockGroupService{leaveErr: fmt.Errorf("%w: admin must delete the group", service.ErrConflict)}
	app := newGroupApp(svc, "a")

	status, body := perform(t, app, jsonRequest(t, http.MethodPost, "/groups/g1/leave", nil))
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Contains(t, body.Message, "admin must delete the group")
}

func TestGroupHandler_Typing(t *testing.T) {
	svc := &mockGroupService{}
	app := newGroupApp(svc, "c")

	status, body := perform(t, app, jsonRequest(t, http.MethodPatch, "/groups/g1/typing", map[string]bool{"typing": true}))
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "c", svc.lastUserID)

	var result map[string]bool
	decodeData(t, body, &result)
	require.True(t, result["typing"])
}

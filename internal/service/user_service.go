package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"waterworks/internal/apperr"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/google/uuid"
)

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string     `json:"username" binding:"required"`
	Email    string     `json:"email" binding:"required,email"`
	RoleID   *uuid.UUID `json:"role_id"`
}

type AssignRoleRequest struct {
	RoleID *uuid.UUID `json:"role_id"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	RoleID    *uuid.UUID `json:"role_id"`
	RoleName  string     `json:"role_name"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

// ProfileResponse is what the signed-in user sees about themselves.
type ProfileResponse struct {
	User        UserResponse       `json:"user"`
	LoginPage   string             `json:"login_page"`
	Permissions []model.Permission `json:"permissions"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	AssignRole(ctx context.Context, id uuid.UUID, roleID *uuid.UUID) (*UserResponse, error)
	// DeleteUser keeps the user's valve log entries and detaches them from the user.
	DeleteUser(ctx context.Context, id uuid.UUID) error
	Profile(ctx context.Context, actor *Actor) (*ProfileResponse, error)
	// ResolveActor loads the principal a token subject refers to.
	ResolveActor(ctx context.Context, id uuid.UUID) (*Actor, error)
}

type userService struct {
	repo        repository.UserRepository
	roleRepo    repository.RoleRepository
	logRepo     repository.ValveLogRepository
	permissions PermissionService
	txManager   repository.TransactionManager
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	roleRepo repository.RoleRepository,
	logRepo repository.ValveLogRepository,
	permissions PermissionService,
	txManager repository.TransactionManager,
) UserService {
	return &userService{
		repo:        repo,
		roleRepo:    roleRepo,
		logRepo:     logRepo,
		permissions: permissions,
		txManager:   txManager,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	res := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		RoleID:    user.RoleID,
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if user.Role != nil {
		res.RoleName = user.Role.Name
	}
	return res
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" {
		return nil, &apperr.ValidationError{Field: "username", Message: "username is required"}
	}
	if !emailRegex.MatchString(email) {
		return nil, &apperr.ValidationError{Field: "email", Message: "invalid email format"}
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, &apperr.ValidationError{Field: "username", Message: "username already exists"}
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, &apperr.ValidationError{Field: "email", Message: "email already exists"}
	}
	if err := s.ensureRole(ctx, req.RoleID); err != nil {
		return nil, err
	}

	user := &model.User{
		Username: username,
		Email:    email,
		RoleID:   req.RoleID,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &apperr.ValidationError{Field: "email", Message: "username or email already exists"}
		}
		return nil, apperr.Storage("create user", err)
	}

	return s.GetUserByID(ctx, user.ID)
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get user", err)
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, apperr.Storage("list users", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, *mapToResponse(&u))
	}

	return responses, total, nil
}

func (s *userService) AssignRole(ctx context.Context, id uuid.UUID, roleID *uuid.UUID) (*UserResponse, error) {
	if err := s.ensureRole(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.repo.SetRole(ctx, id, roleID); err != nil {
		return nil, apperr.Storage("assign role", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *userService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetByID(txCtx, id); err != nil {
			return apperr.Storage("get user", err)
		}
		if err := s.logRepo.DetachUser(txCtx, id); err != nil {
			return apperr.Storage("detach valve logs", err)
		}
		return apperr.Storage("delete user", s.repo.Delete(txCtx, id))
	})
}

func (s *userService) Profile(ctx context.Context, actor *Actor) (*ProfileResponse, error) {
	if actor == nil {
		return nil, apperr.ErrForbidden
	}
	user, err := s.GetUserByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	res := &ProfileResponse{User: *user, Permissions: []model.Permission{}}
	if !actor.HasRole() {
		return res, nil
	}

	perms, err := s.permissions.ListPermissions(ctx, *actor.RoleID)
	if err != nil {
		return nil, err
	}
	res.Permissions = perms
	for _, p := range perms {
		if p.IsLoginPage {
			res.LoginPage = p.Page
			break
		}
	}
	return res, nil
}

func (s *userService) ResolveActor(ctx context.Context, id uuid.UUID) (*Actor, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("resolve actor", err)
	}
	return &Actor{ID: user.ID, Email: user.Email, RoleID: user.RoleID}, nil
}

func (s *userService) ensureRole(ctx context.Context, roleID *uuid.UUID) error {
	if roleID == nil {
		return nil
	}
	_, err := s.roleRepo.FindByID(ctx, *roleID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &apperr.ValidationError{Field: "role_id", Message: "role does not exist"}
	}
	return apperr.Storage("find role", err)
}

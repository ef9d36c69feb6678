package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/Rafhael-Viana/geoproof/auth"
	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/repository"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUserID(ctx context.Context, userID string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, userID string, in repository.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, userID string) error
	Count(ctx context.Context, role *models.Role) (int64, error)
}

type UserService struct {
	users    UserStore
	tokens   *auth.Tokens
	logger   *zap.Logger
	hashCost int
}

func NewUserService(users UserStore, tokens *auth.Tokens, logger *zap.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, logger: logger, hashCost: bcrypt.DefaultCost}
}

type NewUserInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type UpdateUserInput struct {
	Name     *string      `json:"name"`
	Email    *string      `json:"email"`
	Password *string      `json:"password"`
	Role     *models.Role `json:"role"`
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func validateEmail(v string) error {
	if _, err := mail.ParseAddress(v); err != nil || !strings.Contains(v, "@") {
		return invalid("email", "must be a valid email address")
	}
	return nil
}

func (s *UserService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func userStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("user %w", ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: email already registered", ErrConflict)
	default:
		return err
	}
}

// Register is the public sign-up; it always creates a student.
func (s *UserService) Register(ctx context.Context, in NewUserInput) (*models.User, error) {
	in.Role = models.RoleStudent
	return s.create(ctx, in)
}

// Create is the admin path and may create admins.
func (s *UserService) Create(ctx context.Context, in NewUserInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleStudent
	}
	if !in.Role.Valid() {
		return nil, invalid("role", "must be %q or %q", models.RoleStudent, models.RoleAdmin)
	}
	return s.create(ctx, in)
}

func (s *UserService) create(ctx context.Context, in NewUserInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, invalid("", "name, email and password are required")
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		UserID:   uuid.NewString(),
		Name:     in.Name,
		Email:    in.Email,
		Password: hash,
		Role:     in.Role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, userStoreErr(err)
	}

	s.logger.Info("user created", zap.String("user_id", u.UserID), zap.String("role", string(u.Role)))
	return u, nil
}

// Login checks the password and returns a signed token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, invalid("", "email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		return nil, userStoreErr(err)
	}
	return u, nil
}

// Update edits a user. An admin cannot change another admin's role.
func (s *UserService) Update(ctx context.Context, actorID, userID string, in UpdateUserInput) (*models.User, error) {
	target, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var upd repository.UserUpdate
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		name := strings.TrimSpace(*in.Name)
		upd.Name = &name
	}
	if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
		email := normalizeEmail(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		upd.Email = &email
	}
	if in.Role != nil && *in.Role != "" {
		if !in.Role.Valid() {
			return nil, invalid("role", "must be %q or %q", models.RoleStudent, models.RoleAdmin)
		}
		if target.Role == models.RoleAdmin && target.UserID != actorID && *in.Role != target.Role {
			return nil, fmt.Errorf("%w: cannot change another admin's role", ErrForbidden)
		}
		upd.Role = in.Role
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return nil, err
		}
		upd.Password = &hash
	}

	u, err := s.users.Update(ctx, userID, upd)
	if err != nil {
		return nil, userStoreErr(err)
	}
	return u, nil
}

// Delete removes a student account. Admins cannot delete themselves here
// nor other admins.
func (s *UserService) Delete(ctx context.Context, actorID, userID string) (*models.User, error) {
	target, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.UserID == actorID {
		return nil, fmt.Errorf("%w: use the delete-my-account endpoint to remove yourself", ErrForbidden)
	}
	if target.Role == models.RoleAdmin {
		return nil, fmt.Errorf("%w: admin accounts cannot be deleted", ErrForbidden)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return nil, userStoreErr(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("by", actorID))
	return target, nil
}

// DeleteOwn removes the caller after confirming the password.
func (s *UserService) DeleteOwn(ctx context.Context, userID, password string) (*models.User, error) {
	if password == "" {
		return nil, invalid("password", "is required for confirmation")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return nil, userStoreErr(err)
	}
	s.logger.Info("account deleted by owner", zap.String("user_id", userID))
	return u, nil
}

// Stats counts users per role concurrently.
func (s *UserService) Stats(ctx context.Context) (models.UserStats, error) {
	var stats models.UserStats
	student, admin := models.RoleStudent, models.RoleAdmin

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Total, err = s.users.Count(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		stats.Student, err = s.users.Count(gctx, &student)
		return err
	})
	g.Go(func() (err error) {
		stats.Admin, err = s.users.Count(gctx, &admin)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

// SeedAdmin creates the bootstrap admin unless the email already exists.
func (s *UserService) SeedAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if name == "" {
		name = "Administrator"
	}
	_, err = s.create(ctx, NewUserInput{Name: name, Email: email, Password: password, Role: models.RoleAdmin})
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

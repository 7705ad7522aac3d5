package service

import (
	"context"
	"errors"
	"strings"

	"picshare/internal/apperror"
	"picshare/internal/auth"
	"picshare/internal/database"
	"picshare/internal/models"
	"picshare/internal/storage"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Usernames that would collide with fixed routes under /users.
var reservedUsernames = map[string]bool{
	"me":            true,
	"login":         true,
	"logout":        true,
	"register":      true,
	"refresh-token": true,
}

type RegisterInput struct {
	FullName string          `validate:"required"`
	Email    string          `validate:"required,email"`
	Username string          `validate:"required"`
	Password string          `validate:"required,min=8"`
	Avatar   *storage.Upload `validate:"-"`
}

type LoginInput struct {
	Email    string
	Username string
	Password string
}

type LoginResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type UserService struct {
	store  UserStore
	media  storage.MediaStore
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

func NewUserService(store UserStore, media storage.MediaStore, tokens *auth.TokenIssuer, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		media:  media,
		tokens: tokens,
		logger: logger,
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	for _, field := range []string{in.FullName, in.Email, in.Username, in.Password} {
		if strings.TrimSpace(field) == "" {
			return nil, apperror.Validation("All the fields are required")
		}
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.ToLower(strings.TrimSpace(in.Username))

	normalized := in
	normalized.Email = email
	if err := validate.Struct(normalized); err != nil {
		return nil, apperror.Validation("Please provide email and password in valid format")
	}
	if reservedUsernames[username] || strings.ContainsAny(username, "/?#") {
		return nil, apperror.Validation("This username is not available")
	}

	exists, err := s.store.UserExists(ctx, username, email)
	if err != nil {
		return nil, apperror.Upstream("Failed to check existing users", err)
	}
	if exists {
		return nil, apperror.Conflict("User already exists")
	}

	if in.Avatar == nil {
		return nil, apperror.Validation("Avatar is required")
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperror.Internal("Failed to hash password", err)
	}

	avatarURL, err := s.media.Upload(ctx, in.Avatar)
	if err != nil {
		mediaFailures.WithLabelValues("upload").Inc()
		return nil, apperror.Upstream("Some problem occurred while uploading the avatar", err)
	}

	user, err := s.store.CreateUser(ctx, database.CreateUserParams{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Avatar:       avatarURL,
		PasswordHash: passwordHash,
	})
	if err != nil {
		s.discardMedia(avatarURL)
		if errors.Is(err, database.ErrDuplicateUser) {
			return nil, apperror.Conflict("User already exists")
		}
		return nil, apperror.Upstream("Some problem occurred while user registration", err)
	}

	usersRegistered.Inc()
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))

	return user.Public(), nil
}

// discardMedia removes an object whose database row was never written.
func (s *UserService) discardMedia(objectURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), mediaCleanupTimeout)
	defer cancel()
	if err := s.media.Delete(ctx, objectURL); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		mediaFailures.WithLabelValues("delete").Inc()
		s.logger.Warn("failed to discard orphaned media", zap.String("url", objectURL), zap.Error(err))
	}
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if username == "" && email == "" {
		return nil, apperror.Validation("Username or email is required")
	}
	if in.Password == "" {
		return nil, apperror.Validation("Password is required")
	}

	user, err := s.store.GetUserByLogin(ctx, username, email)
	if err != nil {
		return nil, apperror.Upstream("Failed to look up user", err)
	}
	if user == nil {
		loginsTotal.WithLabelValues("unknown_user").Inc()
		return nil, apperror.NotFound("User does not exist")
	}

	if !auth.CheckPasswordHash(in.Password, user.PasswordHash) {
		loginsTotal.WithLabelValues("bad_password").Inc()
		return nil, apperror.Unauthorized("Invalid user credentials", nil)
	}

	result, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	loginsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// issueTokens mints both tokens and stores the refresh token, replacing any
// previous session.
func (s *UserService) issueTokens(ctx context.Context, user *models.User) (*LoginResult, error) {
	accessToken, refreshToken, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, &refreshToken); err != nil {
		return nil, apperror.Upstream("Something went wrong while generating the tokens", err)
	}

	return &LoginResult{User: user.Public(), AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *UserService) mintPair(user *models.User) (string, string, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return "", "", apperror.Internal("Something went wrong while generating the tokens", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return "", "", apperror.Internal("Something went wrong while generating the tokens", err)
	}
	return accessToken, refreshToken, nil
}

// RefreshTokens exchanges the currently stored refresh token for a new pair.
func (s *UserService) RefreshTokens(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, apperror.Unauthorized("Unauthorized request", nil)
	}

	claims, err := s.tokens.Verify(refreshToken, auth.PurposeRefresh)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid refresh token", err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperror.Upstream("Failed to look up user", err)
	}
	if user == nil {
		return nil, apperror.Unauthorized("Invalid refresh token", nil)
	}
	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		return nil, apperror.Unauthorized("Refresh token is expired or used", nil)
	}

	accessToken, nextRefreshToken, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}

	rotated, err := s.store.RotateRefreshToken(ctx, user.ID, refreshToken, nextRefreshToken)
	if err != nil {
		return nil, apperror.Upstream("Something went wrong while generating the tokens", err)
	}
	if !rotated {
		return nil, apperror.Unauthorized("Refresh token is expired or used", nil)
	}

	return &LoginResult{User: user.Public(), AccessToken: accessToken, RefreshToken: nextRefreshToken}, nil
}

func (s *UserService) Logout(ctx context.Context, userID int64) error {
	if err := s.store.SetRefreshToken(ctx, userID, nil); err != nil {
		return apperror.Upstream("Failed to log out", err)
	}
	return nil
}

// Authenticate resolves an access token to its (stripped) user.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.tokens.Verify(accessToken, auth.PurposeAccess)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid access token", err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperror.Upstream("Failed to look up user", err)
	}
	if user == nil {
		return nil, apperror.Unauthorized("Invalid access token", nil)
	}

	return user.Public(), nil
}

// GetProfile returns the user's public fields and all of their images.
func (s *UserService) GetProfile(ctx context.Context, username string) (*models.Profile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, apperror.NotFound("Username is missing")
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperror.Upstream("Failed to look up user", err)
	}
	if user == nil {
		return nil, apperror.NotFound("User does not exist")
	}

	images, err := s.store.ListImagesByOwner(ctx, user.ID)
	if err != nil {
		return nil, apperror.Upstream("Failed to fetch user images", err)
	}

	return &models.Profile{User: user.Public(), Images: images}, nil
}

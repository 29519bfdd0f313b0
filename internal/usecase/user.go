package usecase

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/ai-detector/internal/apperr"
	"github.com/example/ai-detector/internal/blobstore"
	"github.com/example/ai-detector/internal/logging"
	"github.com/example/ai-detector/internal/repository"
)

const maxPasswordBytes = 72

var errInvalidCredentials = apperr.Validation("invalid email or password")

// UserRepository defines the credential store operations used by account flows.
type UserRepository interface {
	Create(ctx context.Context, user *repository.User) error
	FindByID(ctx context.Context, id string) (*repository.User, error)
	FindByEmail(ctx context.Context, email string) (*repository.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	DeleteCascade(ctx context.Context, id string) ([]repository.Detection, error)
}

// HistoryLister lists an owner's detections.
type HistoryLister interface {
	ListByOwner(ctx context.Context, ownerID string) ([]repository.Detection, error)
}

// TokenIssuer mints bearer tokens for an identity.
type TokenIssuer interface {
	Issue(identity string) (string, error)
}

// UserUseCase implements signup, login and account management.
type UserUseCase struct {
	users      UserRepository
	history    HistoryLister
	store      blobstore.Store
	tokens     TokenIssuer
	cache      *resultCache
	logger     *zap.Logger
	bcryptCost int
}

// UserOption customises a UserUseCase.
type UserOption func(*UserUseCase)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) UserOption {
	return func(uc *UserUseCase) {
		uc.bcryptCost = cost
	}
}

// WithUserResultCache lets withdrawal evict the user's cached detections.
func WithUserResultCache(cache Cache) UserOption {
	return func(uc *UserUseCase) {
		if cache != nil {
			uc.cache = newResultCache(cache, defaultCacheTTL, uc.logger)
		}
	}
}

// NewUserUseCase constructs a new use case instance.
func NewUserUseCase(users UserRepository, history HistoryLister, store blobstore.Store, tokens TokenIssuer, logger *zap.Logger, opts ...UserOption) *UserUseCase {
	uc := &UserUseCase{
		users:      users,
		history:    history,
		store:      store,
		tokens:     tokens,
		logger:     logger.Named("user_usecase"),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Signup registers a new account.
func (uc *UserUseCase) Signup(ctx context.Context, email, password, displayName string) (*repository.User, error) {
	email = normalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	switch {
	case email == "":
		return nil, apperr.Validation("email is required")
	case password == "":
		return nil, apperr.Validation("password is required")
	case displayName == "":
		return nil, apperr.Validation("name is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Validation("email is malformed")
	}

	exists, err := uc.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Validation("email in use")
	}

	hash, err := uc.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &repository.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.Validation("email in use")
		}
		return nil, err
	}

	logging.WithOperation(uc.logger, "usecase.signup", user.ID).Info("user registered")
	return user, nil
}

// Login checks the credentials and issues a bearer token for the account.
func (uc *UserUseCase) Login(ctx context.Context, email, password string) (string, error) {
	user, err := uc.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", errInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", errInvalidCredentials
	}

	token, err := uc.tokens.Issue(user.ID)
	if err != nil {
		return "", logging.NewOperationError("usecase.issue_token", user.ID, err)
	}
	return token, nil
}

// Me returns the caller's account.
func (uc *UserUseCase) Me(ctx context.Context, userID string) (*repository.User, error) {
	user, err := uc.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return user, nil
}

// UpdateProfile changes the caller's display name.
func (uc *UserUseCase) UpdateProfile(ctx context.Context, userID, displayName string) (*repository.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := uc.users.UpdateDisplayName(ctx, userID, displayName); err != nil {
		return nil, notFoundOr(err, "user not found")
	}
	return uc.Me(ctx, userID)
}

// UpdatePassword replaces the caller's password after checking the current one.
func (uc *UserUseCase) UpdatePassword(ctx context.Context, userID, current, next string) error {
	if next == "" {
		return apperr.Validation("new password is required")
	}
	if next == current {
		return apperr.Validation("new password must differ from the current one")
	}

	user, err := uc.Me(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return apperr.Validation("current password is incorrect")
	}

	hash, err := uc.hashPassword(next)
	if err != nil {
		return err
	}
	if err := uc.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return notFoundOr(err, "user not found")
	}
	return nil
}

// Withdraw deletes the account, every detection it owns and their blobs.
// Blob deletion is best-effort; row deletion is transactional.
func (uc *UserUseCase) Withdraw(ctx context.Context, userID string) error {
	if _, err := uc.Me(ctx, userID); err != nil {
		return err
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.withdraw", userID)

	owned, err := uc.history.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}
	released := make(map[string]struct{}, len(owned))
	for i := range owned {
		releaseBlobs(ctx, uc.store, opLogger, &owned[i])
		released[owned[i].ID] = struct{}{}
	}

	removed, err := uc.users.DeleteCascade(ctx, userID)
	if err != nil {
		return notFoundOr(err, "user not found")
	}

	ids := make([]string, 0, len(removed))
	for i := range removed {
		ids = append(ids, removed[i].ID)
		// rows created after the listing above
		if _, ok := released[removed[i].ID]; !ok {
			releaseBlobs(ctx, uc.store, opLogger, &removed[i])
		}
	}
	uc.cache.invalidate(ctx, ids...)

	opLogger.Info("user withdrawn", zap.Int("detections", len(removed)))
	return nil
}

func (uc *UserUseCase) hashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", apperr.Validation("password is too long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), uc.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

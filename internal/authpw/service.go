// Package authpw authenticates API clients by id and secret.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"annotate/api/internal/store"
)

// ErrInvalidCredentials is returned for an unknown client or a wrong secret.
// The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid client credentials")

// ClientStore defines the storage interface for API clients
type ClientStore interface {
	GetClient(ctx context.Context, id string) (store.Client, error)
	CreateClient(ctx context.Context, client store.Client) error
}

// Service registers and authenticates API clients
type Service struct {
	store ClientStore
}

// NewService creates a new client auth service
func NewService(store ClientStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains client registration parameters
type RegisterRequest struct {
	ID          string
	Authority   string
	Description string
}

// RegisterResponse carries the generated secret. It is only available at
// registration time; the store keeps the bcrypt hash.
type RegisterResponse struct {
	Client store.Client
	Secret string
}

// Register creates a client with a freshly generated secret.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if req.ID == "" || req.Authority == "" {
		return nil, errors.New("client id and authority are required")
	}

	if _, err := s.store.GetClient(ctx, req.ID); err == nil {
		return nil, fmt.Errorf("client %q already registered", req.ID)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}

	client := store.Client{
		ID:          req.ID,
		SecretHash:  hash,
		Authority:   req.Authority,
		Description: req.Description,
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &RegisterResponse{Client: client, Secret: secret}, nil
}

// Authenticate returns the client if secret matches its stored hash.
func (s *Service) Authenticate(ctx context.Context, clientID, secret string) (store.Client, error) {
	if clientID == "" || secret == "" {
		return store.Client{}, ErrInvalidCredentials
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return store.Client{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
		return store.Client{}, ErrInvalidCredentials
	}

	return client, nil
}

// HashSecret hashes a client secret for storage.
func HashSecret(secret string) (string, error) {
	if len(secret) < 16 {
		return "", errors.New("client secret must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// generateSecret creates a secure random secret
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

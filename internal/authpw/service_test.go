package authpw

import (
	"context"
	"errors"
	"testing"

	"annotate/api/internal/store"
)

// mockClientStore is a mock implementation of ClientStore for testing
type mockClientStore struct {
	clients map[string]store.Client
}

func newMockClientStore() *mockClientStore {
	return &mockClientStore{clients: make(map[string]store.Client)}
}

func (m *mockClientStore) GetClient(ctx context.Context, id string) (store.Client, error) {
	if client, ok := m.clients[id]; ok {
		return client, nil
	}
	return store.Client{}, errors.New("client not found")
}

func (m *mockClientStore) CreateClient(ctx context.Context, client store.Client) error {
	m.clients[client.ID] = client
	return nil
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockClientStore()
	svc := NewService(mockStore)

	t.Run("successful registration", func(t *testing.T) {
		resp, err := svc.Register(ctx, RegisterRequest{ID: "leos", Authority: "EdiT", Description: "LEOS editor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(resp.Secret) != 64 {
			t.Errorf("expected 64 char secret, got %d", len(resp.Secret))
		}
		stored := mockStore.clients["leos"]
		if stored.SecretHash == "" || stored.SecretHash == resp.Secret {
			t.Error("expected secret to be stored hashed")
		}
		if stored.Authority != "EdiT" {
			t.Errorf("expected authority EdiT, got %s", stored.Authority)
		}
	})

	t.Run("duplicate client", func(t *testing.T) {
		if _, err := svc.Register(ctx, RegisterRequest{ID: "leos", Authority: "EdiT"}); err == nil {
			t.Error("expected error for duplicate client")
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		if _, err := svc.Register(ctx, RegisterRequest{ID: "other"}); err == nil {
			t.Error("expected error for missing authority")
		}
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockClientStore()
	svc := NewService(mockStore)

	resp, err := svc.Register(ctx, RegisterRequest{ID: "leos", Authority: "EdiT"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("valid secret", func(t *testing.T) {
		client, err := svc.Authenticate(ctx, "leos", resp.Secret)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.Authority != "EdiT" {
			t.Errorf("expected authority EdiT, got %s", client.Authority)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, "leos", "not-the-secret-at-all"); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, "nobody", resp.Secret); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		if _, err := svc.Authenticate(ctx, "leos", ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestHashSecretRejectsShortSecrets(t *testing.T) {
	if _, err := HashSecret("short"); err == nil {
		t.Error("expected error for short secret")
	}
}

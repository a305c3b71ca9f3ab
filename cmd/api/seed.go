package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hoodgram/internal/auth"
	"hoodgram/internal/profiles"
)

const demoPassword = "hoodgram-demo"

type demoAccount struct {
	email    string
	name     string
	username string
}

// seedLocalAccounts creates confirmed demo accounts for local development:
// one with a finished profile and one that still has to complete it.
func seedLocalAccounts(ctx context.Context, users auth.Repository, hasher auth.PasswordHasher) ([]profiles.Profile, error) {
	now := time.Now().UTC()

	accounts := []demoAccount{
		{email: "jo@hoodgram.local", name: "Jo Neighbour", username: "jo"},
		{email: "new@hoodgram.local"},
	}

	hash, err := hasher.Hash(demoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	seeded := make([]profiles.Profile, 0, len(accounts))
	for i, acct := range accounts {
		createdAt := now.Add(time.Duration(i) * time.Minute)
		user, err := users.CreateUser(ctx, auth.User{
			ID:               uuid.New(),
			Email:            acct.email,
			PasswordHash:     hash,
			Name:             acct.name,
			EmailConfirmedAt: &createdAt,
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
			LastLoginAt:      createdAt,
		})
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", acct.email, err)
		}

		profile := profiles.Profile{
			UserID:    user.ID,
			Email:     user.Email,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if acct.name != "" {
			name := acct.name
			profile.Name = &name
		}
		if acct.username != "" {
			username := acct.username
			profile.Username = &username
		}
		seeded = append(seeded, profile)
	}

	return seeded, nil
}

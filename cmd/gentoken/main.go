// Command gentoken mints a stored access token for an existing user so a
// local server can be exercised without going through /auth/authenticate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/config"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/storage/postgres"
)

func main() {
	email := flag.String("email", "", "email of an existing user")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Error: -email is required")
		os.Exit(2)
	}
	if err := run(*email, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(email, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessExpiry, cfg.Auth.RefreshExpiry, cfg.Auth.JWTIssuer)

	token, err := mintToken(ctx, repo.Users(), repo.Tokens(), jwtManager, clockwork.NewRealClock(), email)
	if err != nil {
		return err
	}

	fmt.Println("Access token:")
	fmt.Println(token)
	fmt.Println("\nTest with:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' %s/api/marathons\n", token, cfg.Server.BaseURL)
	return nil
}

// mintToken issues an access token for the user and stores it. Other live
// tokens of the user stay valid.
func mintToken(ctx context.Context, userRepo users.UserRepository, tokenRepo users.TokenRepository, jwtManager *auth.JWTManager, clock clockwork.Clock, email string) (string, error) {
	email = users.NormalizeEmail(email)
	user, err := userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find user %s: %w", email, err)
	}

	value, err := jwtManager.Generate(user.Email, string(user.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	if _, err := tokenRepo.Save(ctx, users.Token{
		Value:     value,
		Type:      users.TokenTypeBearer,
		UserID:    user.ID,
		ExpiresAt: clock.Now().Add(jwtManager.AccessExpiry()),
	}); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return value, nil
}

package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/jedilnik/internal/store"
)

// ensureSiteAdmin makes sure the configured site administrator can log in.
// A missing account is created with a generated password, which is
// returned so it can be shown once. An existing account yields "".
func ensureSiteAdmin(ctx context.Context, database *sql.DB, email string) (string, error) {
	user, err := store.GetUserByEmail(ctx, database, email)
	if err != nil {
		return "", err
	}

	previous, err := store.GetSetting(ctx, database, store.SettingSiteAdmin)
	if err != nil {
		return "", err
	}
	if previous != "" && !strings.EqualFold(previous, email) {
		slog.Warn("site administrator changed", "previous", previous, "current", email)
	}
	if err := store.SetSetting(ctx, database, store.SettingSiteAdmin, email); err != nil {
		return "", err
	}

	if user != nil {
		return "", nil
	}

	password, err := generatePassword(16)
	if err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	if _, err := store.CreateUser(ctx, database, email, string(hash)); err != nil {
		return "", fmt.Errorf("creating site administrator: %w", err)
	}
	return password, nil
}

// printAdminCredentials shows the generated site administrator login.
func printAdminCredentials(w io.Writer, email, password string) {
	fmt.Fprintln(w, "Site administrator account created:")
	fmt.Fprintf(w, "  Email:    %s\n", email)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save this password, it cannot be recovered.")
	fmt.Fprintln(w, "It can be changed after logging in.")
	fmt.Fprintln(w)
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

package authpw

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"trove/api/internal/store"
)

func newTestService() *Service {
	svc := NewService(store.NewMemoryStore())
	svc.cost = bcrypt.MinCost
	return svc
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: " Avery@Example.com ", Password: "correct horse", DisplayName: "Avery"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.Email != "avery@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "correct horse" || user.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}

	got, err := svc.SignIn(ctx, "AVERY@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("SignIn() user = %q, want %q", got.ID, user.ID)
	}
}

func TestSignUpRejectsDuplicatesAndBadInput(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "long enough", DisplayName: "A"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "long enough", DisplayName: "B"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate SignUp() error = %v, want ErrEmailTaken", err)
	}

	cases := []SignUpRequest{
		{Email: "", Password: "long enough", DisplayName: "A"},
		{Email: "not-an-email", Password: "long enough", DisplayName: "A"},
		{Email: "b@example.com", Password: "short", DisplayName: "A"},
		{Email: "c@example.com", Password: "long enough", DisplayName: "  "},
	}
	for _, req := range cases {
		if _, err := svc.SignUp(ctx, req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("SignUp(%+v) error = %v, want ErrInvalidInput", req, err)
		}
	}
}

func TestSignInFailuresAreIndistinguishable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@example.com", Password: "long enough", DisplayName: "A"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if _, err := svc.SignIn(ctx, "a@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "long enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v", err)
	}
}

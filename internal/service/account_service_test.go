package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront-backend/internal/config"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/effect"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/security"
	"storefront-backend/internal/token"
)

type captureDispatcher struct {
	mu      sync.Mutex
	effects []effect.Effect
	failErr error
}

func (d *captureDispatcher) Submit(ctx context.Context, e effect.Effect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return d.failErr
	}
	d.effects = append(d.effects, e)
	return nil
}

func (d *captureDispatcher) byKind(kind effect.Kind) []effect.Effect {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []effect.Effect
	for _, e := range d.effects {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type accountFixture struct {
	db         *gorm.DB
	svc        *AccountService
	users      repository.UserRepository
	wallets    repository.WalletRepository
	dispatcher *captureDispatcher
	cfg        *config.Config
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	err = db.AutoMigrate(
		&domain.User{}, &domain.Wallet{}, &domain.WalletTransaction{},
		&domain.Product{}, &domain.Order{}, &domain.OrderItem{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTAccessTTL:      15 * time.Minute,
		WalletBonusAmount: 0.99,
		VerifyTokenTTL:    72 * time.Hour,
		ResetTokenTTL:     2 * time.Hour,
	}
	dispatcher := &captureDispatcher{}
	users := repository.NewUserRepository(db)
	wallets := repository.NewWalletRepository(db)
	codec := token.NewCodec(strings.Repeat("s", 32), cfg.VerifyTokenTTL, cfg.ResetTokenTTL)
	jwtMgr := security.NewJWTManager(strings.Repeat("j", 32), "storefront-backend", "storefront-backend-api")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &accountFixture{
		db:         db,
		svc:        NewAccountService(cfg, users, wallets, codec, dispatcher, jwtMgr, log),
		users:      users,
		wallets:    wallets,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

func (fx *accountFixture) register(t *testing.T, email, username, password string) *domain.User {
	t.Helper()
	user, err := fx.svc.Register(context.Background(), email, username, password)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

// verificationLink returns the uid/token pair from the most recent
// verification effect for the given user.
func (fx *accountFixture) verificationLink(t *testing.T, userID uint) (string, string) {
	t.Helper()
	effects := fx.dispatcher.byKind(effect.KindSendVerificationEmail)
	for i := len(effects) - 1; i >= 0; i-- {
		if effects[i].UserID == userID {
			return effects[i].Payload["uid"], effects[i].Payload["token"]
		}
	}
	t.Fatal("no verification effect dispatched")
	return "", ""
}

func (fx *accountFixture) resetLink(t *testing.T, userID uint) (string, string) {
	t.Helper()
	effects := fx.dispatcher.byKind(effect.KindSendResetEmail)
	for i := len(effects) - 1; i >= 0; i-- {
		if effects[i].UserID == userID {
			return effects[i].Payload["uid"], effects[i].Payload["token"]
		}
	}
	t.Fatal("no reset effect dispatched")
	return "", ""
}

func TestRegisterMatrix(t *testing.T) {
	t.Run("invalid email", func(t *testing.T) {
		fx := newAccountFixture(t)
		_, err := fx.svc.Register(context.Background(), "not-an-email", "alice", "Passw0rd!")
		if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), "invalid email") {
			t.Fatalf("expected invalid email error, got %v", err)
		}
	})

	t.Run("invalid username", func(t *testing.T) {
		fx := newAccountFixture(t)
		_, err := fx.svc.Register(context.Background(), "alice@x.com", "a!", "Passw0rd!")
		if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), "username") {
			t.Fatalf("expected username error, got %v", err)
		}
	})

	t.Run("weak password", func(t *testing.T) {
		fx := newAccountFixture(t)
		for _, pw := range []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere!"} {
			if _, err := fx.svc.Register(context.Background(), "alice@x.com", "alice", pw); !errors.Is(err, ErrWeakPassword) {
				t.Fatalf("password %q: expected ErrWeakPassword, got %v", pw, err)
			}
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		fx := newAccountFixture(t)
		fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		_, err := fx.svc.Register(context.Background(), "alice@x.com", "alice2", "Passw0rd!")
		if !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		fx := newAccountFixture(t)
		fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		_, err := fx.svc.Register(context.Background(), "alice2@x.com", "alice", "Passw0rd!")
		if !errors.Is(err, ErrUsernameTaken) {
			t.Fatalf("expected ErrUsernameTaken, got %v", err)
		}
	})

	t.Run("success creates pending account with wallet and verification effect", func(t *testing.T) {
		fx := newAccountFixture(t)
		user := fx.register(t, "Alice@X.com", "alice", "Passw0rd!")

		if user.Email != "alice@x.com" {
			t.Fatalf("expected normalized email, got %q", user.Email)
		}
		fresh, err := fx.users.FindByID(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if fresh.IsActive {
			t.Fatal("new account must be pending")
		}
		if _, err := fx.wallets.FindByUserID(context.Background(), user.ID); err != nil {
			t.Fatalf("expected wallet to exist: %v", err)
		}

		effects := fx.dispatcher.byKind(effect.KindSendVerificationEmail)
		if len(effects) != 1 {
			t.Fatalf("expected one verification effect, got %d", len(effects))
		}
		payload := effects[0].Payload
		if payload["uid"] == "" || payload["token"] == "" || payload["email"] != "alice@x.com" {
			t.Fatalf("verification payload incomplete: %v", payload)
		}
	})

	t.Run("dispatch failure does not fail registration", func(t *testing.T) {
		fx := newAccountFixture(t)
		fx.dispatcher.failErr = errors.New("queue down")
		user, err := fx.svc.Register(context.Background(), "alice@x.com", "alice", "Passw0rd!")
		if err != nil {
			t.Fatalf("register should survive dispatcher outage: %v", err)
		}
		if _, err := fx.users.FindByID(context.Background(), user.ID); err != nil {
			t.Fatalf("user should be persisted: %v", err)
		}
	})
}

func TestVerifyEmailHappyPathAndReplay(t *testing.T) {
	fx := newAccountFixture(t)
	ctx := context.Background()
	user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
	uid, proof := fx.verificationLink(t, user.ID)

	if err := fx.svc.VerifyEmail(ctx, uid, proof); err != nil {
		t.Fatalf("verify: %v", err)
	}

	fresh, err := fx.users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !fresh.IsActive {
		t.Fatal("expected account to be active after verification")
	}

	bonuses := fx.dispatcher.byKind(effect.KindCreditWalletBonus)
	if len(bonuses) != 1 {
		t.Fatalf("expected exactly one bonus effect, got %d", len(bonuses))
	}
	if bonuses[0].UserID != user.ID || bonuses[0].Amount != 0.99 {
		t.Fatalf("unexpected bonus effect: %+v", bonuses[0])
	}

	// Replaying the consumed proof must fail deterministically: activation
	// changed the fingerprint the proof was bound to.
	for i := 0; i < 3; i++ {
		if err := fx.svc.VerifyEmail(ctx, uid, proof); !errors.Is(err, ErrInvalidLink) {
			t.Fatalf("replay %d: expected ErrInvalidLink, got %v", i, err)
		}
	}
	if got := len(fx.dispatcher.byKind(effect.KindCreditWalletBonus)); got != 1 {
		t.Fatalf("replay must not dispatch more bonuses, got %d", got)
	}
}

func TestVerifyEmailRejectionMatrix(t *testing.T) {
	fx := newAccountFixture(t)
	ctx := context.Background()
	user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
	uid, proof := fx.verificationLink(t, user.ID)

	cases := []struct {
		name    string
		carrier string
		proof   string
	}{
		{"empty carrier", "", proof},
		{"garbage carrier", "%%%%", proof},
		{"unknown user", token.EncodeUID(9999), proof},
		{"tampered proof", uid, proof + "_corrupted"},
		{"empty proof", uid, ""},
		{"carrier for another user", token.EncodeUID(user.ID + 1), proof},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := fx.svc.VerifyEmail(ctx, tc.carrier, tc.proof); !errors.Is(err, ErrInvalidLink) {
				t.Fatalf("expected ErrInvalidLink, got %v", err)
			}
		})
	}

	if got := len(fx.dispatcher.byKind(effect.KindCreditWalletBonus)); got != 0 {
		t.Fatalf("rejected verifications must not dispatch effects, got %d", got)
	}

	// Proof issued for the reset purpose must not verify an email even
	// though the carrier decodes fine.
	if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	resetUID, resetProof := fx.resetLink(t, user.ID)
	if err := fx.svc.VerifyEmail(ctx, resetUID, resetProof); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("cross-purpose proof: expected ErrInvalidLink, got %v", err)
	}
}

func TestVerifyEmailConcurrentSingleActivation(t *testing.T) {
	fx := newAccountFixture(t)
	user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
	uid, proof := fx.verificationLink(t, user.ID)

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- fx.svc.VerifyEmail(context.Background(), uid, proof)
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidLink):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", successes)
	}
	if got := len(fx.dispatcher.byKind(effect.KindCreditWalletBonus)); got != 1 {
		t.Fatalf("expected exactly one bonus effect, got %d", got)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	t.Run("unknown email is revealed", func(t *testing.T) {
		fx := newAccountFixture(t)
		err := fx.svc.RequestPasswordReset(context.Background(), "nobody@x.com")
		if !errors.Is(err, ErrUnknownEmail) {
			t.Fatalf("expected ErrUnknownEmail, got %v", err)
		}
	})

	t.Run("known email dispatches reset effect without state change", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		before, _ := fx.users.FindByID(ctx, user.ID)

		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset: %v", err)
		}

		effects := fx.dispatcher.byKind(effect.KindSendResetEmail)
		if len(effects) != 1 {
			t.Fatalf("expected one reset effect, got %d", len(effects))
		}
		if effects[0].Payload["uid"] == "" || effects[0].Payload["token"] == "" {
			t.Fatalf("reset payload incomplete: %v", effects[0].Payload)
		}

		after, _ := fx.users.FindByID(ctx, user.ID)
		if after.PasswordHash != before.PasswordHash || after.IsActive != before.IsActive {
			t.Fatal("reset request must not mutate identity state")
		}
	})
}

func TestConfirmPasswordReset(t *testing.T) {
	t.Run("happy path and self-invalidation", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		uid, verifyProof := fx.verificationLink(t, user.ID)
		if err := fx.svc.VerifyEmail(ctx, uid, verifyProof); err != nil {
			t.Fatalf("verify: %v", err)
		}

		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset: %v", err)
		}
		resetUID, p1 := fx.resetLink(t, user.ID)

		if err := fx.svc.ConfirmPasswordReset(ctx, resetUID, p1, "NewPass1!"); err != nil {
			t.Fatalf("confirm reset: %v", err)
		}
		if _, _, err := fx.svc.Login(ctx, "alice@x.com", "NewPass1!"); err != nil {
			t.Fatalf("login with new password: %v", err)
		}
		if _, _, err := fx.svc.Login(ctx, "alice@x.com", "Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("old password should be dead, got %v", err)
		}

		// Replaying the consumed proof fails: the hash it fingerprinted is gone.
		if err := fx.svc.ConfirmPasswordReset(ctx, resetUID, p1, "Another1!"); !errors.Is(err, ErrInvalidLink) {
			t.Fatalf("replay: expected ErrInvalidLink, got %v", err)
		}
	})

	t.Run("confirm invalidates every other outstanding reset proof", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")

		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset 1: %v", err)
		}
		uid, p1 := fx.resetLink(t, user.ID)
		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset 2: %v", err)
		}
		_, p2 := fx.resetLink(t, user.ID)

		if err := fx.svc.ConfirmPasswordReset(ctx, uid, p2, "NewPass1!"); err != nil {
			t.Fatalf("confirm with p2: %v", err)
		}
		if err := fx.svc.ConfirmPasswordReset(ctx, uid, p1, "Other1Aa!"); !errors.Is(err, ErrInvalidLink) {
			t.Fatalf("p1 should be stale after p2 was consumed, got %v", err)
		}
	})

	t.Run("weak replacement password is rejected without consuming the proof", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")

		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset: %v", err)
		}
		uid, p1 := fx.resetLink(t, user.ID)

		if err := fx.svc.ConfirmPasswordReset(ctx, uid, p1, "weak"); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("expected ErrWeakPassword, got %v", err)
		}
		// The proof is still bound to unchanged state and remains usable.
		if err := fx.svc.ConfirmPasswordReset(ctx, uid, p1, "NewPass1!"); err != nil {
			t.Fatalf("confirm after weak attempt: %v", err)
		}
	})

	t.Run("concurrent confirms have exactly one winner", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset: %v", err)
		}
		uid, p1 := fx.resetLink(t, user.ID)

		const racers = 6
		results := make(chan error, racers)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				results <- fx.svc.ConfirmPasswordReset(context.Background(), uid, p1, fmt.Sprintf("NewPass%d!", n))
			}(i)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInvalidLink):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected exactly one confirm winner, got %d", wins)
		}
	})
}

func TestChangePassword(t *testing.T) {
	activeUser := func(t *testing.T, fx *accountFixture) *domain.User {
		t.Helper()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		uid, proof := fx.verificationLink(t, user.ID)
		if err := fx.svc.VerifyEmail(context.Background(), uid, proof); err != nil {
			t.Fatalf("verify: %v", err)
		}
		return user
	}

	t.Run("wrong current password", func(t *testing.T) {
		fx := newAccountFixture(t)
		user := activeUser(t, fx)
		err := fx.svc.ChangePassword(context.Background(), user.ID, "Wrong0ne!", "NewPass1!")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("unchanged password rejected", func(t *testing.T) {
		fx := newAccountFixture(t)
		user := activeUser(t, fx)
		err := fx.svc.ChangePassword(context.Background(), user.ID, "Passw0rd!", "Passw0rd!")
		if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), "must differ") {
			t.Fatalf("expected must-differ error, got %v", err)
		}
	})

	t.Run("success rotates hash and kills outstanding reset proofs", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := activeUser(t, fx)

		if err := fx.svc.RequestPasswordReset(ctx, "alice@x.com"); err != nil {
			t.Fatalf("request reset: %v", err)
		}
		uid, staleProof := fx.resetLink(t, user.ID)

		if err := fx.svc.ChangePassword(ctx, user.ID, "Passw0rd!", "NewPass1!"); err != nil {
			t.Fatalf("change password: %v", err)
		}
		if _, _, err := fx.svc.Login(ctx, "alice@x.com", "NewPass1!"); err != nil {
			t.Fatalf("login with new password: %v", err)
		}
		if err := fx.svc.ConfirmPasswordReset(ctx, uid, staleProof, "Hijack3d!"); !errors.Is(err, ErrInvalidLink) {
			t.Fatalf("reset proof should be stale after password change, got %v", err)
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		fx := newAccountFixture(t)
		_, _, err := fx.svc.Login(context.Background(), "nobody@x.com", "Passw0rd!")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("pending account cannot log in", func(t *testing.T) {
		fx := newAccountFixture(t)
		fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		_, _, err := fx.svc.Login(context.Background(), "alice@x.com", "Passw0rd!")
		if !errors.Is(err, ErrInactiveAccount) {
			t.Fatalf("expected ErrInactiveAccount, got %v", err)
		}
	})

	t.Run("active account receives access token", func(t *testing.T) {
		fx := newAccountFixture(t)
		ctx := context.Background()
		user := fx.register(t, "alice@x.com", "alice", "Passw0rd!")
		uid, proof := fx.verificationLink(t, user.ID)
		if err := fx.svc.VerifyEmail(ctx, uid, proof); err != nil {
			t.Fatalf("verify: %v", err)
		}

		access, got, err := fx.svc.Login(ctx, "alice@x.com", "Passw0rd!")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if access == "" || got.ID != user.ID {
			t.Fatalf("unexpected login result: token=%q user=%+v", access, got)
		}
	})
}

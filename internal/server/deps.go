package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adminkit/apiserver/config"
	"github.com/adminkit/apiserver/internal/codec"
	"github.com/adminkit/apiserver/internal/db"
	"github.com/adminkit/apiserver/internal/events"
	"github.com/adminkit/apiserver/internal/mail"
	"github.com/adminkit/apiserver/internal/mq"
	"github.com/adminkit/apiserver/internal/services"
	"github.com/adminkit/apiserver/internal/storage"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Deps holds the connections and services shared by the server, the
// worker and the seeder.
type Deps struct {
	Config config.Config
	Logger *slog.Logger

	DB      *sql.DB
	Redis   *redis.Client
	Broker  mq.Backend
	Storage storage.ObjectStorage

	Store         services.Store
	Hasher        *services.PasswordHasher
	Revoked       *store.RevokedTokenRepository
	Sessions      *services.SessionService
	Csrf          *services.CsrfService
	Verification  *services.VerificationService
	Auth          *services.AuthService
	Users         *services.UserService
	Roles         *services.RoleService
	Permissions   *services.PermissionService
	Requests      *services.IncomingRequestService
	Translations  *services.TranslationService
	Events        *events.Bus
	Mailer        mail.Sender
	MailDelivery  mail.Sender
}

// Open validates cfg, connects to every configured backend and builds
// the services. Optional backends that are not configured are skipped.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Deps{Config: cfg, Logger: logger}
	if err := d.connect(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.build(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) connect(ctx context.Context) error {
	cfg := d.Config

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	d.DB = conn

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		d.Redis = client
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return fmt.Errorf("open mq: %w", err)
	}
	d.Broker = broker

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	d.Storage = objects
	return nil
}

func (d *Deps) build() error {
	cfg := d.Config

	csrfCodec, err := codec.New(cfg.AppKey, codec.PurposeCSRF)
	if err != nil {
		return err
	}
	verifyCodec, err := codec.New(cfg.AppKey, codec.PurposeEmailVerification)
	if err != nil {
		return err
	}
	resetCodec, err := codec.New(cfg.AppKey, codec.PurposePasswordReset)
	if err != nil {
		return err
	}

	d.Store = services.NewSQLStore(d.DB)
	d.Hasher = services.NewPasswordHasher(bcrypt.DefaultCost)
	d.Revoked = store.NewRevokedTokenRepository(d.DB)

	var revocations services.RevocationStore = d.Revoked
	if d.Redis != nil {
		revocations = services.NewRedisRevocations(d.Redis)
	}

	var publisher events.Publisher
	if d.Broker != nil {
		publisher = d.Broker
	}
	d.Events = events.NewBus(publisher, d.Logger)

	smtp := mail.NewSMTPSender(cfg.Mail, d.Logger)
	d.MailDelivery = mail.NewLogSender(d.Logger)
	if smtp.Configured() {
		d.MailDelivery = smtp
	}
	d.Mailer = d.MailDelivery
	if d.Broker != nil {
		d.Mailer = mail.NewQueueSender(d.Broker)
	}

	var photos services.ObjectStore
	if d.Storage != nil {
		photos = d.Storage
	}

	d.Sessions = services.NewSessionService(d.Store, revocations, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	d.Csrf = services.NewCsrfService(d.Store, csrfCodec, cfg.CSRF.TTL)
	d.Verification = services.NewVerificationService(
		d.Store, verifyCodec, resetCodec, d.Mailer, d.Events, d.Hasher, d.Logger,
		services.VerificationConfig{
			BaseURL:      cfg.BaseURL,
			VerifyWindow: cfg.Auth.VerificationHorizon,
			ResetWindow:  cfg.Auth.ResetHorizon,
		},
	)
	d.Auth = services.NewAuthService(d.Store, d.Sessions, d.Verification, d.Hasher, d.Logger, services.AuthOptions{
		Photos:          photos,
		Events:          d.Events,
		RequireVerified: cfg.Auth.RequireVerified,
	})
	d.Users = services.NewUserService(d.Store, d.Hasher)
	d.Roles = services.NewRoleService(d.Store)
	d.Permissions = services.NewPermissionService(d.Store)
	d.Requests = services.NewIncomingRequestService(d.Store)
	d.Translations = services.NewTranslationService(cfg.LangDir)
	return nil
}

// MailWorker drains the mail channel into the SMTP or log sender.
// It is nil without a broker.
func (d *Deps) MailWorker() *mail.Worker {
	if d.Broker == nil {
		return nil
	}
	return mail.NewWorker(d.Broker, d.MailDelivery, d.Logger)
}

// Close releases every connection Open made.
func (d *Deps) Close() error {
	var errs []error
	if d.Broker != nil {
		errs = append(errs, d.Broker.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}

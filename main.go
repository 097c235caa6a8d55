package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"LIBRA-backend/internal/catalog"
	"LIBRA-backend/internal/lending"
	"LIBRA-backend/internal/members"
	"LIBRA-backend/internal/platform/apidoc"
	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/config"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/httpx"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	load := func() (*config.Config, error) { return config.Load(cfgPath) }

	root := &cobra.Command{
		Use:          "libra",
		Short:        "Library lending service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "path to config.yaml")

	root.AddCommand(
		serveCmd(load),
		migrateCmd(load),
		seedCmd(load),
		memberCmd(load),
	)
	return root
}

type loader func() (*config.Config, error)

// ===== serve =====

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log.Printf("[INFO] mode:%s", cfg.Mode)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           newRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       2 * time.Minute,
			}
			return run(ctx, srv, cfg)
		},
	}
}

func newRouter(a *app) *gin.Engine {
	if a.cfg.Mode == config.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), httpx.RequestID())
	_ = r.SetTrustedProxies(nil)

	if a.cfg.Mode == config.ModeDev {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     a.cfg.CORS.AllowOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "Location", "X-Request-ID"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	apidoc.RegisterRoutes(r)

	api := r.Group("/api")
	authed := api.Group("", auth.RequireAuth(a.tokens.Secret()))
	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))

	catalog.RegisterRoutes(authed, admin, a.books)
	members.RegisterRoutes(api, authed, admin, a.members, a.tokens, a.ledger)
	lending.RegisterRoutes(authed, admin, a.lending)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apperr.Body(apperr.CodeNotFound, "no such route"))
	})
	return r
}

func run(ctx context.Context, srv *http.Server, cfg *config.Config) error {
	errc := make(chan error, 1)
	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			certFile := filepath.Join("config", "tls", cfg.Mode, cfg.Certificate.Cert)
			keyFile := filepath.Join("config", "tls", cfg.Mode, cfg.Certificate.Key)
			log.Printf("[INFO] listening on https://%s", srv.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[INFO] listening on http://%s", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Println("[INFO] shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// ===== migrate / seed =====

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DB.Driver == config.DriverMemory {
				return fmt.Errorf("migrate needs a SQL driver, config uses %q", cfg.DB.Driver)
			}
			conn, err := db.Connect(cfg.DB)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn, cfg.DB.Driver); err != nil {
				return err
			}
			log.Printf("[INFO] schema applied (%s)", cfg.DB.Driver)
			return nil
		},
	}
}

func seedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo catalog, accounts and loans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DB.Driver == config.DriverMemory {
				return fmt.Errorf("the memory driver seeds itself on serve")
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.seed(cmd.Context())
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "already seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d books, %d members, %d loans\n", res.Books, res.Members, res.Loans)
			return nil
		},
	}
}

// ===== member add =====

func memberCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage members"}

	var name, email, phone, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a member (password is prompted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DB.Driver == config.DriverMemory {
				return fmt.Errorf("member add needs a SQL driver")
			}
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.members.Create(cmd.Context(), members.NewMember{
				Name: name, Email: email, Phone: phone, Role: role, Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created member %d (%s, %s)\n", m.MemberID, m.Email, m.Role)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&email, "email", "", "login email")
	add.Flags().StringVar(&phone, "phone", "", "phone number")
	add.Flags().StringVar(&role, "role", members.RoleUser, "admin or user")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}

// readPassword はエコーなしで読む。端末でなければ1行読む
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.OutOrStdout(), prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KafClaw/KafClaw/internal/a2a/collab"
	"github.com/KafClaw/KafClaw/internal/a2a/convstore"
	"github.com/KafClaw/KafClaw/internal/a2a/credentials"
	"github.com/KafClaw/KafClaw/internal/a2a/logstore"
	"github.com/KafClaw/KafClaw/internal/a2a/notify"
	"github.com/KafClaw/KafClaw/internal/a2a/ratelimit"
	a2aserver "github.com/KafClaw/KafClaw/internal/a2a/server"
	"github.com/KafClaw/KafClaw/internal/a2a/watchdog"
	"github.com/KafClaw/KafClaw/internal/config"
	"github.com/KafClaw/KafClaw/internal/secrets"
	"github.com/fatih/color"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

// a2aCmd groups every agent-to-agent calling runtime subcommand under
// `kafclaw a2a`, following this binary's one-subsystem-per-file Cobra
// layout (root.go, a2a.go).
var a2aCmd = &cobra.Command{
	Use:   "a2a",
	Short: "Agent-to-agent calling runtime: serve, manage tokens, build invites",
}

func init() {
	a2aCmd.AddCommand(a2aServeCmd)
	a2aCmd.AddCommand(a2aTokenCmd)
	a2aCmd.AddCommand(a2aInviteCmd)
	a2aCmd.AddCommand(a2aAdminCmd)

	a2aAdminCmd.AddCommand(a2aAdminSetTokenCmd)

	a2aTokenCmd.AddCommand(a2aTokenCreateCmd)
	a2aTokenCmd.AddCommand(a2aTokenListCmd)
	a2aTokenCmd.AddCommand(a2aTokenRevokeCmd)

	a2aInviteCmd.AddCommand(a2aInviteCreateCmd)
	a2aInviteCmd.AddCommand(a2aInviteQRCmd)

	a2aServeCmd.Flags().IntVar(&a2aServePort, "port", 0, "listen port (overrides config/env; 0 = auto)")

	a2aTokenCreateCmd.Flags().StringVar(&a2aTokenName, "name", "", "human label for the token")
	a2aTokenCreateCmd.Flags().StringVar(&a2aTokenOwnerFlag, "owner", "", "owning agent/human")
	a2aTokenCreateCmd.Flags().StringVar(&a2aTokenTier, "tier", string(credentials.TierFriends), "public|friends|family|custom")
	a2aTokenCreateCmd.Flags().StringVar(&a2aTokenDisclosure, "disclosure", string(credentials.DisclosureMinimal), "none|minimal|public")
	a2aTokenCreateCmd.Flags().StringVar(&a2aTokenExpires, "expires", "never", "<n>h, <n>d, or never")
	a2aTokenCreateCmd.Flags().IntVar(&a2aTokenMaxCalls, "max-calls", 1000, "calls allowed before exhaustion")
	a2aTokenCreateCmd.Flags().BoolVar(&a2aTokenNotify, "notify", false, "notify the owner on calls using this token")
}

var (
	a2aServePort int

	a2aTokenName       string
	a2aTokenOwnerFlag  string
	a2aTokenTier       string
	a2aTokenDisclosure string
	a2aTokenExpires    string
	a2aTokenMaxCalls   int
	a2aTokenNotify     bool
)

var a2aServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent-to-agent call lifecycle HTTP service",
	Run:   runA2AServe,
}

var a2aTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage caller credentials",
}

var a2aTokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new token",
	Run:   runA2ATokenCreate,
}

var a2aTokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued tokens",
	Run:   runA2ATokenList,
}

var a2aTokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token-id>",
	Short: "Revoke a token by id",
	Args:  cobra.ExactArgs(1),
	Run:   runA2ATokenRevoke,
}

var a2aInviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Build and render a2a:// invite URLs",
}

var a2aInviteCreateCmd = &cobra.Command{
	Use:   "create <host> <plaintext-token>",
	Short: "Print the a2a:// invite URL for a host and token",
	Args:  cobra.ExactArgs(2),
	Run:   runA2AInviteCreate,
}

var a2aInviteQRCmd = &cobra.Command{
	Use:   "qr <invite-url>",
	Short: "Render an invite URL as a terminal QR code",
	Args:  cobra.ExactArgs(1),
	Run:   runA2AInviteQR,
}

var a2aAdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage dashboard admin access",
}

var a2aAdminSetTokenCmd = &cobra.Command{
	Use:   "set-token <token>",
	Short: "Encrypt and store the x-admin-token value in a2a-config.json",
	Args:  cobra.ExactArgs(1),
	Run:   runA2AAdminSetToken,
}

// sealAdminToken encrypts plain with the master key resolved by
// internal/secrets so a2a-config.json never carries the admin token in
// the clear.
func sealAdminToken(plain string) (string, error) {
	blob, err := secrets.EncryptBlob([]byte(plain))
	if err != nil {
		return "", fmt.Errorf("encrypt admin token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// unsealAdminToken reverses sealAdminToken. A value that isn't a
// base64-wrapped blob (an older plaintext config, or one hand-edited)
// is returned unchanged rather than rejected.
func unsealAdminToken(stored string) string {
	if stored == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return stored
	}
	plain, err := secrets.DecryptBlob(raw)
	if err != nil {
		return stored
	}
	if string(plain) == string(raw) {
		// DecryptBlob passed raw through: stored was plaintext that
		// merely happened to be valid base64.
		return stored
	}
	return string(plain)
}

func runA2AAdminSetToken(cmd *cobra.Command, args []string) {
	printHeader("🔐 KafClaw A2A Admin Token")

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	sealed, err := sealAdminToken(args[0])
	if err != nil {
		fmt.Printf("Seal error: %v\n", err)
		os.Exit(1)
	}
	cfg.Server.AdminToken = sealed
	if err := config.Save(cfg); err != nil {
		fmt.Printf("Save error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Admin token stored (encrypted) in a2a-config.json.")
}

// openStores wires the credential store, conversation store, and
// shared logger identically for every subcommand that touches durable
// state, so `serve` and the `token` helpers never drift.
func openStores(cfg *config.Config) (*credentials.Store, *convstore.Store, *logstore.Logger, error) {
	credPath, err := config.CredentialPath()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve credential path: %w", err)
	}
	credStore, err := credentials.Open(credPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open credential store: %w", err)
	}

	dbPath, err := config.ConversationDBPath()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve conversation db path: %w", err)
	}
	convStore, err := convstore.Open(dbPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open conversation store: %w", err)
	}

	logStore := logstore.NewFromDB(convStore.DB())
	log := logstore.New(logStore, nil, "a2a")
	return credStore, convStore, log, nil
}

// configTierProvider adapts internal/config's on-disk tier defaults to
// credentials.TierDefaultsProvider, keeping the credentials package
// free of any dependency on internal/config (config -> credentials is
// the only direction that may exist).
type configTierProvider struct {
	tiers map[string]config.TierSettings
}

func (p configTierProvider) TierSettings(tier credentials.Tier) (credentials.TierSettings, bool) {
	t, ok := p.tiers[string(tier)]
	if !ok {
		return credentials.TierSettings{}, false
	}
	return credentials.TierSettings{Topics: t.Topics, Goals: t.Goals, Capabilities: t.Capabilities}, true
}

func runA2AServe(cmd *cobra.Command, args []string) {
	printHeader("📡 KafClaw A2A Serve")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	credStore, convStore, log, err := openStores(cfg)
	if err != nil {
		fmt.Printf("Storage init error: %v\n", err)
		os.Exit(1)
	}
	defer convStore.Close()

	var notifier *notify.Dispatcher
	if cfg.Notify.SlackBotToken != "" && cfg.Notify.SlackChannelID != "" {
		notifier = notify.NewDispatcher(
			notify.NewSlackNotifier(cfg.Notify.SlackBotToken, cfg.Notify.SlackChannelID, nil),
			func(event notify.Event, err error) {
				log.Error("owner_notify_failed", err.Error(), "notify_failed", "check slack bot token/channel id")
			},
		)
	} else {
		notifier = notify.NewDispatcher(notify.NoOp{}, nil)
	}

	wd := watchdog.New(convStore, notifier, watchdog.Options{
		Interval:    cfg.Collab.WatchdogEvery,
		IdleTimeout: cfg.Collab.IdleTimeout,
		MaxDuration: cfg.Collab.MaxDuration,
	})
	wd.Start()
	defer wd.Stop()

	srv := a2aserver.New(a2aserver.Config{
		Credentials:   credStore,
		RateLimits:    ratelimit.Limits{PerMinute: cfg.RateLimit.PerMinute, PerHour: cfg.RateLimit.PerHour, PerDay: cfg.RateLimit.PerDay},
		Limiter:       ratelimit.New(),
		Conversations: convStore,
		Watchdog:      wd,
		Notifier:      notifier,
		Log:           log,
		ReplyProducer: EchoReplyProducer{},
		TierProvider:  configTierProvider{tiers: cfg.Tiers},
		OwnerContext:  cfg.Owner.Context,
		CollabOptions: collab.Options{CacheCapacity: cfg.Collab.MaxSessions, CacheTTL: cfg.Collab.StateTTL},
		AdminToken:    unsealAdminToken(cfg.Server.AdminToken),
		Version:       version,
	})

	ln, port, err := resolveListener(cfg, a2aServePort)
	if err != nil {
		fmt.Printf("Listen error: %v\n", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{Handler: srv.Mux()}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		fmt.Println("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("A2A server listening on :%d\n", port)
	if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		fmt.Printf("A2A server error: %v\n", err)
		os.Exit(1)
	}
}

// resolveListener binds explicitPort (from --port) if set, else
// cfg.Server.Port (already resolved from PORT/a2a-config.json), falling
// back through config.ListenPortFallbacks if that port is unavailable,
// per spec §6.
func resolveListener(cfg *config.Config, explicitPort int) (net.Listener, int, error) {
	if explicitPort > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", explicitPort))
		if err != nil {
			return nil, 0, fmt.Errorf("listen on explicit port %d: %w", explicitPort, err)
		}
		return ln, explicitPort, nil
	}
	if cfg.Server.Port > 0 {
		if ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port)); err == nil {
			return ln, cfg.Server.Port, nil
		}
	}
	for _, p := range config.ListenPortFallbacks {
		if ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p)); err == nil {
			return ln, p, nil
		}
	}
	return nil, 0, fmt.Errorf("no fallback port available, tried %v", config.ListenPortFallbacks)
}

// EchoReplyProducer is a minimal stand-in for the real reply producer
// (the LLM/agent runtime adapter), which spec §1 places out of core
// scope. It acknowledges the inbound message so `kafclaw a2a serve`
// is runnable standalone; production deployments wire a real
// a2aserver.ReplyProducer in its place.
type EchoReplyProducer struct{}

// Produce implements a2aserver.ReplyProducer.
func (EchoReplyProducer) Produce(ctx context.Context, req a2aserver.ReplyRequest) (string, error) {
	return fmt.Sprintf("acknowledged: %s", req.Message), nil
}

func runA2ATokenCreate(cmd *cobra.Command, args []string) {
	printHeader("🔑 KafClaw A2A Token Create")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	credStore, _, _, err := openStores(cfg)
	if err != nil {
		fmt.Printf("Storage init error: %v\n", err)
		os.Exit(1)
	}

	tok, plaintext, err := credStore.CreateToken(credentials.CreateTokenOptions{
		Name:       a2aTokenName,
		Owner:      a2aTokenOwnerFlag,
		Expires:    a2aTokenExpires,
		Tier:       credentials.Tier(a2aTokenTier),
		Disclosure: credentials.Disclosure(a2aTokenDisclosure),
		Notify:     a2aTokenNotify,
		MaxCalls:   a2aTokenMaxCalls,
	}, configTierProvider{tiers: cfg.Tiers})
	if err != nil {
		fmt.Printf("Create token error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token ID:   %s\n", tok.ID)
	fmt.Printf("Tier:       %s\n", tok.Tier)
	fmt.Printf("Max calls:  %d\n", tok.MaxCalls)
	fmt.Println(color.YellowString("Token (shown once, store it securely):"))
	fmt.Println(plaintext)
}

func runA2ATokenList(cmd *cobra.Command, args []string) {
	printHeader("🔑 KafClaw A2A Tokens")

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	credStore, _, _, err := openStores(cfg)
	if err != nil {
		fmt.Printf("Storage init error: %v\n", err)
		os.Exit(1)
	}

	for _, tok := range credStore.ListTokens() {
		status := "active"
		if tok.Revoked {
			status = "revoked"
		}
		fmt.Printf("%-20s %-10s %-8s %s calls=%d/%d\n", tok.ID, tok.Name, tok.Tier, status, tok.CallsMade, tok.MaxCalls)
	}
}

func runA2ATokenRevoke(cmd *cobra.Command, args []string) {
	printHeader("🔑 KafClaw A2A Token Revoke")

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	credStore, _, _, err := openStores(cfg)
	if err != nil {
		fmt.Printf("Storage init error: %v\n", err)
		os.Exit(1)
	}

	if err := credStore.RevokeToken(args[0]); err != nil {
		fmt.Printf("Revoke error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Token %s revoked.\n", args[0])
}

func runA2AInviteCreate(cmd *cobra.Command, args []string) {
	printHeader("✉️  KafClaw A2A Invite")
	host, plaintext := args[0], args[1]
	fmt.Println(credentials.BuildInviteURL(host, plaintext))
}

func runA2AInviteQR(cmd *cobra.Command, args []string) {
	printHeader("✉️  KafClaw A2A Invite QR")
	q, err := qrcode.New(args[0], qrcode.Medium)
	if err != nil {
		fmt.Printf("QR render error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(q.ToSmallString(false))
}

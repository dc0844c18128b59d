package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"robline/internal/app"
	"robline/internal/catalog"
	"robline/internal/config"
	"robline/internal/db"
	"robline/internal/domain"
	"robline/internal/engine/auth"
	"robline/internal/logging"
	"robline/internal/query"
	"robline/internal/repo"
	"robline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Robline CLI",
	Long: `Robline tracks component robbing requests: taking a serviceable part off a donor
aircraft to fit it to a recipient aircraft, and normalizing both afterwards.
- Request: one robbing, identified as CR-<year>-<sequence>, with its status history.
- Status: Initiated -> (Awaiting FTAM Approval) -> Pending SDS -> Pending AR ->
  Pending Removal from Donor -> Removed from Donor -> Normalization Planned -> Normalized.
  FTAM can reject a request that waits for approval.
- Role: every transition belongs to a role (CAMO Planning, FTAM, CAMO Technical Services,
  AMO 145, Material Store, Admin). Pass yours with --actor-role.
- Documents: SDS, acceptance report, CAAM Form 1, S-label and evidence files are stored
  once and referenced by handle.
- Event log: every accepted change, view with 'rl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ROBLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-name", "", "acting user name")
	rootCmd.PersistentFlags().String("actor-role", "", "acting role ("+strings.Join(config.Roles(), ", ")+")")
	rootCmd.PersistentFlags().String("actor-department", "", "acting department (defaults to the role)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (defaults to warn, or the configured level for serve)")
	for _, name := range []string{"workspace", "json", "actor-name", "actor-role", "actor-department", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Count requests per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				counts, err := a.Engine.StatusCounts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Status", "Requests"})
				total := 0
				for _, s := range catalog.AllStatuses() {
					tw.AppendRow(table.Row{s, counts[s]})
					total += counts[s]
				}
				tw.AppendFooter(table.Row{"Total", total})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show statuses, their transitions and the roles allowed to take them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				out := map[domain.Status][]catalog.Transition{}
				for _, s := range catalog.AllStatuses() {
					out[s] = catalog.TransitionsFrom(s)
				}
				return printJSON(out)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Status", "Description", "Next", "Roles", "Action"})
			for _, s := range catalog.AllStatuses() {
				transitions := catalog.TransitionsFrom(s)
				if len(transitions) == 0 {
					tw.AppendRow(table.Row{s, catalog.DescriptionOf(s), "-", "-", "-"})
					continue
				}
				for _, t := range transitions {
					tw.AppendRow(table.Row{s, catalog.DescriptionOf(s), t.Next, joinRoles(t.Roles), t.Label})
				}
			}
			tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}, {Number: 2, AutoMerge: true}})
			tw.Render()
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var (
		n         int
		requestID string
		after     int64
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show events in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), "", func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Events(ctx, repo.EventFilter{RequestID: requestID, AfterID: after, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Request", "Actor", "Role", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.RequestID, e.ActorName, e.ActorRole, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&requestID, "request", "", "request id filter")
	cmd.Flags().Int64Var(&after, "after", 0, "only events after this id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg.Log.Level, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				authCfg := server.AuthConfig{
					Resolver: auth.Resolver{
						JWTSecret: viper.GetString("jwt-secret"),
						APIKeys:   cfg.APIKeys(),
					},
					AllowActorHeaders: cfg.Server.AllowActorHeaders,
					Log:               a.Log,
				}
				if authCfg.Resolver.JWTSecret == "" && len(authCfg.Resolver.APIKeys) == 0 && !authCfg.AllowActorHeaders {
					return fmt.Errorf("ROBLINE_JWT_SECRET or configured api keys are required")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg, Metrics: a.Metrics})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Infow("serving robline api", "addr", addr, "base_path", basePath)
				fmt.Printf("Serving Robline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens for the HTTP API",
	}
	tok.AddCommand(tokenIssueCmd())
	return tok
}

func tokenIssueCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token for --actor-name/--actor-role with ROBLINE_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(viper.GetString("jwt-secret"), actor, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_in": ttl.Seconds()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "API keys for the HTTP API",
	}
	key.AddCommand(&cobra.Command{
		Use:   "hash <key>",
		Short: "Print the hash to put in auth.api_keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(auth.HashAPIKey(args[0]))
			return nil
		},
	})
	return key
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "robline.yml in the workspace selects the store, document storage, API keys and notification targets. Missing sections keep their defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate robline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default robline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return config.LoadOptional(viper.GetString("workspace"))
}

// withApp opens the workspace, runs fn and closes everything again. level
// overrides the quiet default used by one-shot commands.
func withApp(ctx context.Context, level string, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if flag := viper.GetString("log-level"); flag != "" {
		level = flag
	}
	if level == "" {
		level = "warn"
	}
	log, err := logging.New(logging.Config{Level: level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, log, app.Options{Workspace: workspace})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func currentActor() (domain.Actor, error) {
	name := viper.GetString("actor-name")
	if name == "" {
		name = os.Getenv("USER")
	}
	if viper.GetString("actor-role") == "" {
		return domain.Actor{}, fmt.Errorf("--actor-role is required (one of %s)", strings.Join(config.Roles(), ", "))
	}
	return auth.Identity(name, viper.GetString("actor-role"), viper.GetString("actor-department"))
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func joinRoles(roles []domain.Role) string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printGroups(groups []query.Group) {
	for _, g := range groups {
		fmt.Printf("%s (%d)\n", g.Label, len(g.Requests))
		printRequests(g.Requests)
		fmt.Println()
	}
}

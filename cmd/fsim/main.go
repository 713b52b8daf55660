package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fulfillsim/internal/config"
	"fulfillsim/internal/db"
	"fulfillsim/internal/domain"
	"fulfillsim/internal/engine"
	"fulfillsim/internal/migrate"
	"fulfillsim/internal/provision"
	"fulfillsim/internal/repo"
	"fulfillsim/internal/server"
	"fulfillsim/internal/shopify"
	"fulfillsim/internal/statemachine"
)

var rootCmd = &cobra.Command{
	Use:   "fsim",
	Short: "Fulfillsim CLI",
	Long: `Fulfillsim mirrors a shop's fulfillment orders and drives their lifecycle.
It keeps a local composite-state snapshot per fulfillment order, reconciles it
against the platform on every webhook or manual sync, and exposes the legal
transitions (real API calls plus mock external-actor moves) for simulation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FULFILLSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(transitionCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(provisionCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				handler, err := server.New(server.Config{
					Engine:        e,
					BasePath:      basePath,
					WebhookSecret: e.Config.Webhook.Secret,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving Fulfillsim API on http://%s%s (webhooks at /webhooks/fulfillment_orders/{topic})\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <fulfillment-order-id>",
		Short: "Reconcile one fulfillment order against the platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id := shopify.ToGid("FulfillmentOrder", args[0])
				res, err := e.SyncState(ctx, id, "manual/sync", viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s (changed=%v)\n", res.Snapshot.FulfillmentOrderID, res.Snapshot.State.Summary(), res.Changed)
				return nil
			})
		},
	}
	return cmd
}

func ordersCmd() *cobra.Command {
	orders := &cobra.Command{Use: "orders", Short: "Inspect mirrored orders"}
	orders.AddCommand(ordersListCmd())
	orders.AddCommand(ordersShowCmd())
	return orders
}

func ordersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirrored orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				orders, err := r.ListOrders(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orders)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Customer", "Currency", "Processed At"})
				for _, o := range orders {
					customer := strings.TrimSpace(o.CustomerFirstName + " " + o.CustomerLastName)
					tw.AppendRow(table.Row{o.ID, o.Name, customer, o.CurrencyCode, o.ProcessedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ordersShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an order with its fulfillment orders and states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id := shopify.ToGid("Order", args[0])
				order, err := r.GetOrder(ctx, id)
				if err != nil {
					return err
				}
				fos, err := r.ListFulfillmentOrdersByOrder(ctx, order.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"order": order, "fulfillment_orders": fos})
				}
				fmt.Printf("%s %s (%s)\n", order.ID, order.Name, order.CurrencyCode)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Fulfillment Order", "Status", "Request", "State", "Last Sync"})
				for _, fo := range fos {
					summary, lastSync := "", ""
					snapshot, err := r.GetSnapshot(ctx, order.ID, fo.ID)
					if err == nil {
						summary = snapshot.State.Summary()
						lastSync = snapshot.LastSyncAt
					} else if !errors.Is(err, repo.ErrNotFound) {
						return err
					}
					tw.AppendRow(table.Row{fo.ID, fo.Status, fo.RequestStatus, summary, lastSync})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func transitionCmd() *cobra.Command {
	tr := &cobra.Command{Use: "transition", Short: "Inspect and run lifecycle transitions"}
	tr.AddCommand(transitionListCmd())
	tr.AddCommand(transitionRunCmd())
	return tr
}

func transitionListCmd() *cobra.Command {
	var forID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the transition catalog (or what a fulfillment order can do)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				defs := statemachine.Catalog()
				if forID != "" {
					id := shopify.ToGid("FulfillmentOrder", forID)
					fo, err := r.GetFulfillmentOrder(ctx, id)
					if err != nil {
						return err
					}
					snapshot, err := r.GetSnapshot(ctx, fo.OrderID, fo.ID)
					if err != nil {
						return err
					}
					defs = statemachine.AvailableTransitions(snapshot.State)
				}
				if viper.GetBool("json") {
					type entry struct {
						ID          string `json:"id"`
						Label       string `json:"label"`
						Description string `json:"description,omitempty"`
						Kind        string `json:"kind"`
					}
					out := make([]entry, 0, len(defs))
					for _, def := range defs {
						out = append(out, entry{ID: string(def.ID), Label: def.Label, Description: def.Description, Kind: string(def.Kind)})
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Label"})
				for _, def := range defs {
					tw.AppendRow(table.Row{string(def.ID), string(def.Kind), def.Label})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&forID, "fulfillment-order", "", "filter to transitions available for this fulfillment order")
	return cmd
}

func transitionRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <transition-id> <fulfillment-order-id>",
		Short: "Execute a transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id := shopify.ToGid("FulfillmentOrder", args[1])
				res, err := e.ExecuteTransition(ctx, statemachine.TransitionID(args[0]), id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s -> %s\n", args[0], previousSummary(res), res.Snapshot.State.Summary())
				return nil
			})
		},
	}
	return cmd
}

func previousSummary(res engine.SyncResult) string {
	if res.Previous == nil {
		return "(none)"
	}
	return res.Previous.Summary()
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Transition log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var limit int
	var orderID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent transition log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var (
					logs []domain.TransitionLog
					err  error
				)
				if orderID != "" {
					logs, err = r.ListTransitionLogs(ctx, shopify.ToGid("Order", orderID))
				} else {
					logs, err = r.TailTransitionLogs(ctx, limit)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Kind", "Action", "Actor", "Message"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.CreatedAt, l.Kind, l.Action, l.Actor, l.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	cmd.Flags().StringVar(&orderID, "order", "", "filter by order id")
	return cmd
}

func provisionCmd() *cobra.Command {
	var first int
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Seed the local mirror from recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if first == 0 {
					first = e.Config.OrdersFirst()
				}
				res, err := provision.Run(ctx, e, e.GraphQL, first)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Provisioned %d fulfillment orders (%d skipped)\n", len(res.Synced), len(res.Failed))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&first, "first", 0, "how many recent orders to scan (default from config)")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cartctl drives the cart synchronization engine from the command line:
// it shares the same local store, gateway and reconciliation logic the
// app shell uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cartsync/config"
	"cartsync/engine"
	"cartsync/gateway"
	"cartsync/models"
	"cartsync/store"
)

var (
	verbose bool
	session string

	logger *zap.Logger
	eng    *engine.Engine
	st     *store.CartStore
)

var rootCmd = &cobra.Command{
	Use:   "cartctl",
	Short: "cartctl - cart synchronization client",
	Long: `cartctl manages a shopping cart across local guest storage and the
authoritative cart service, with the same reconciliation rules the app
uses: guest carts merge into the server cart on login, mutations apply
optimistically, and rapid quantity changes coalesce.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		config.LoadConfig()
		kv := store.OpenKV(cmd.Context(), config.AppConfig.RedisURL,
			config.AppConfig.RedisAddr, config.AppConfig.RedisPassword, logger)
		st = store.NewCartStore(kv, "session:"+session, logger)
		gw := gateway.NewClient(config.AppConfig.CartAPIBaseURL, st, logger)

		eng = engine.New(engine.Config{
			ThrottleDelay: config.AppConfig.ThrottleDelay,
			CacheTTL:      config.AppConfig.CacheTTL,
			EggPolicy:     engine.EggOverridePolicy(config.AppConfig.EggPolicy),
		}, st, gw,
			engine.WithLogger(logger),
			engine.WithNotifier(func(level, message string) {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
			}),
		)
		return eng.Mount(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store a bearer credential and reconcile the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.Login(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Logged in. Cart has %d item(s).\n", eng.Count())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the session and return to the guest cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.Logout(cmd.Context())
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		items := eng.Items()
		if len(items) == 0 {
			fmt.Println("Cart is empty.")
			return nil
		}
		for _, it := range items {
			label := ""
			if it.ProductDetails != nil && it.ProductDetails.VariantLabel != "" {
				label = " [" + it.ProductDetails.VariantLabel + "]"
			}
			egg := ""
			if it.ProductDetails != nil && it.ProductDetails.HasEgg != nil {
				if *it.ProductDetails.HasEgg {
					egg = " (contains egg)"
				} else {
					egg = " (eggless)"
				}
			}
			fmt.Printf("%-20s%s x%d  %.2f%s\n", it.Name, label, it.Quantity, it.Price*float64(it.Quantity), egg)
		}
		fmt.Printf("Total: %.2f (%d items)\n", eng.Total(), eng.Count())
		return nil
	},
}

var (
	addProductJSON string
	addVariant     int
	addQuantity    int
)

var addCmd = &cobra.Command{
	Use:   "add [product-id] [name] [price]",
	Short: "Add a product to the cart",
	Long: `Adds a product by id, name and price, or from a full product JSON
document via --product-json (which may carry variants and dietary
metadata).`,
	Args: cobra.RangeArgs(0, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p models.Product
		if addProductJSON != "" {
			raw, err := os.ReadFile(addProductJSON)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("invalid product document: %w", err)
			}
		} else {
			if len(args) < 3 {
				return fmt.Errorf("either --product-json or id, name and price are required")
			}
			price, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid price: %w", err)
			}
			p = models.Product{ID: args[0], Name: args[1], Price: price}
		}

		var variant *int
		if cmd.Flags().Changed("variant") {
			variant = &addVariant
		}
		if err := eng.AddToCart(cmd.Context(), &p, addQuantity, variant); err != nil {
			return err
		}
		fmt.Printf("Added. Cart has %d item(s).\n", eng.Count())
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [product-id] [quantity]",
	Short: "Change the quantity of a cart item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantity, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity: %w", err)
		}
		if err := eng.UpdateQuantity(cmd.Context(), args[0], quantity); err != nil {
			return err
		}
		// Give the coalesced dispatch time to fire before exiting.
		time.Sleep(config.AppConfig.ThrottleDelay + 50*time.Millisecond)
		fmt.Printf("Updated. Cart has %d item(s).\n", eng.Count())
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [product-id]",
	Short: "Remove an item from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := eng.RemoveFromCart(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed. Cart has %d item(s).\n", eng.Count())
		return nil
	},
}

var clearReason string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eng.ClearCart(cmd.Context(), clearReason)
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the cart item count",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(eng.Count())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&session, "session", "default", "session namespace in the local store")

	addCmd.Flags().StringVar(&addProductJSON, "product-json", "", "path to a product JSON document")
	addCmd.Flags().IntVar(&addVariant, "variant", 0, "variant index to select")
	addCmd.Flags().IntVar(&addQuantity, "qty", 1, "quantity to add")
	clearCmd.Flags().StringVar(&clearReason, "reason", "", "clear reason (e.g. checkout)")

	rootCmd.AddCommand(loginCmd, logoutCmd, showCmd, addCmd, updateCmd, removeCmd, clearCmd, countCmd)
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

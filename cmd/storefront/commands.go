package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront/pkg/kv"
	"github.com/dmitrymomot/storefront/svc/session"
	"github.com/dmitrymomot/storefront/svc/wp"
)

func newRootCmd() *cobra.Command {
	var (
		o      overrides
		asJSON bool
		a      *app
	)

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "WooCommerce store client",
		Long:          "Log in to a WordPress/WooCommerce store and manage the cart from the terminal.\nSession state is kept between runs in the configured store (KV_DRIVER, KV_DIR).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(o)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&o.envFiles, "env-file", nil, "load environment from these files")
	flags.StringVar(&o.baseURL, "base-url", "", "store URL (overrides WP_BASE_URL)")
	flags.StringVar(&o.stateDir, "state-dir", "", "directory for persisted session state (forces the file store)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&asJSON, "json", false, "print JSON instead of text")

	get := func() *app { return a }
	out := func(cmd *cobra.Command) printer { return printer{w: cmd.OutOrStdout(), json: asJSON} }

	root.AddCommand(
		newLoginCmd(get, out),
		newWhoamiCmd(get, out),
		newValidateCmd(get, out),
		newRefreshCmd(get, out),
		newLogoutCmd(get, out),
		newCartCmd(get, out),
		newStatusCmd(get, out),
	)
	return root
}

type (
	appFunc     func() *app
	printerFunc func(*cobra.Command) printer
)

func newLoginCmd(get appFunc, out printerFunc) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a WordPress username and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			sess, err := a.session.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			return out(cmd).session(sess, a.cart.Cart())
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username or email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newWhoamiCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			u, err := a.session.GetUserInfo(cmd.Context())
			if err != nil {
				return err
			}
			return out(cmd).user(a.session.Session().Identity(), u)
		},
	}
}

func newValidateCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the stored token with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := get().restore(cmd.Context())
			if err != nil {
				return err
			}
			return out(cmd).status("valid", ok)
		},
	}
}

func newRefreshCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored token for a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			return out(cmd).status("refreshed", a.session.RefreshToken(cmd.Context()))
		},
	}
}

func newLogoutCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			get().session.Logout(cmd.Context())
			return out(cmd).status("logged_out", true)
		},
	}
}

func newStatusCmd(get appFunc, out printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the state store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			err := kv.Healthcheck(a.store)(cmd.Context())
			if perr := out(cmd).status("store_ready", err == nil); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newCartCmd(get appFunc, out printerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if err := a.requireLogin(cmd.Context()); err != nil {
				return err
			}
			return out(cmd).cart(a.cart.FetchCart(cmd.Context()))
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <product-id> [quantity]",
			Short: "Add a product to the cart",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				product, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid product id %q", args[0])
				}
				qty := 1
				if len(args) == 2 {
					if qty, err = strconv.Atoi(args[1]); err != nil {
						return fmt.Errorf("invalid quantity %q", args[1])
					}
				}
				a := get()
				if err := a.requireLogin(cmd.Context()); err != nil {
					return err
				}
				c, err := a.cart.AddItem(cmd.Context(), product, qty)
				if err != nil {
					return err
				}
				return out(cmd).cart(c)
			},
		},
		&cobra.Command{
			Use:   "update <item-key> <quantity>",
			Short: "Change the quantity of a cart line",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				a := get()
				if err := a.requireLogin(cmd.Context()); err != nil {
					return err
				}
				c, err := a.cart.UpdateItem(cmd.Context(), args[0], qty)
				if err != nil {
					return err
				}
				return out(cmd).cart(c)
			},
		},
		&cobra.Command{
			Use:   "remove <item-key>",
			Short: "Remove a line from the cart",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := get()
				if err := a.requireLogin(cmd.Context()); err != nil {
					return err
				}
				c, err := a.cart.RemoveItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return out(cmd).cart(c)
			},
		},
	)
	return cmd
}

type printer struct {
	w    io.Writer
	json bool
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) status(key string, ok bool) error {
	if p.json {
		return p.encode(map[string]bool{key: ok})
	}
	_, err := fmt.Fprintf(p.w, "%s: %t\n", key, ok)
	return err
}

func (p printer) session(s session.Session, c wp.Cart) error {
	id := s.Identity()
	if p.json {
		return p.encode(map[string]any{"user": id, "items_count": c.ItemsCount})
	}
	_, err := fmt.Fprintf(p.w, "Logged in as %s (%s). Cart: %d item(s).\n", id.DisplayName, id.Email, c.ItemsCount)
	return err
}

func (p printer) user(id wp.Identity, u *wp.User) error {
	if p.json {
		return p.encode(map[string]any{"user": id, "profile": u})
	}
	if _, err := fmt.Fprintf(p.w, "%s <%s> @%s\n", id.DisplayName, id.Email, id.Nicename); err != nil {
		return err
	}
	if u != nil && u.Link != "" {
		_, err := fmt.Fprintln(p.w, u.Link)
		return err
	}
	return nil
}

func (p printer) cart(c wp.Cart) error {
	if p.json {
		return p.encode(c)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPRODUCT\tQTY\tTOTAL")
	for _, it := range c.Items {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", it.Key, it.ProductID, it.Quantity, it.LineTotal())
	}
	fmt.Fprintf(tw, "\t\t%d\t%s %s\n", c.ItemsCount, c.Totals.TotalPrice, c.Totals.CurrencyCode)
	return tw.Flush()
}

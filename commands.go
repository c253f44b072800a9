// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ffutop/co2e-gateway/internal/config"
	"github.com/ffutop/co2e-gateway/internal/httpcache"
	"github.com/ffutop/co2e-gateway/internal/resolver"
	"github.com/ffutop/co2e-gateway/internal/seed"
	"github.com/ffutop/co2e-gateway/internal/session"
	"github.com/ffutop/co2e-gateway/internal/store"
	"github.com/ffutop/co2e-gateway/internal/store/model"
	"github.com/ffutop/co2e-gateway/transport"
	"github.com/ffutop/co2e-gateway/transport/cpn"
	"github.com/ffutop/co2e-gateway/transport/line"
	"github.com/ffutop/co2e-gateway/transport/serial"
	"github.com/ffutop/co2e-gateway/transport/tcp"
)

// cli carries the configuration shared by every command.
type cli struct {
	configFile string
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "co2e-gateway",
		Short:        "Resolve simulator emission requests into CO2e values",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(c.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			setupLogger(cfg.Log, cmd.ErrOrStderr())
			c.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configFile, "config", "c", "", "Configuration file path.")
	pf.String("log.level", "info", "Log verbosity level (debug, info, warn, error).")
	pf.String("log.file", "", "Log file name ('-' for logging to STDERR only).")
	pf.String("store.type", "xml", "Configuration store backend (xml, mmap, sqlite, memory).")
	pf.String("store.path", "requests.xml", "Configuration store file or sqlite DSN.")
	pf.String("cache.type", "sqlite", "Response cache backend (memory, sqlite, redis).")
	pf.String("cache.path", "request_cache.sqlite", "Response cache sqlite file.")
	pf.Bool("upstream.offline", false, "Resolve ids without a default to 0 instead of calling the estimate API.")

	root.AddCommand(
		c.newServeCommand(),
		c.newResolveCommand(),
		c.newStoreCommand(),
		c.newCacheCommand(),
	)
	return root
}

// app is the resolution stack built from configuration.
type app struct {
	store     *store.Store
	cache     httpcache.Storage
	transport *httpcache.Transport
	engine    *resolver.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	cache, err := httpcache.Open(cfg.Cache)
	if err != nil {
		st.Close()
		return nil, err
	}

	tr := httpcache.NewTransport(cache, nil)
	client := &http.Client{Transport: tr, Timeout: cfg.Upstream.Timeout}
	engine := resolver.New(st, resolver.NewHTTPCaller(client, cfg.Upstream.APIKey), resolver.Options{
		Offline:      cfg.Upstream.Offline,
		ExpectedUnit: cfg.Upstream.ExpectedUnit,
	})
	return &app{
		store:     st,
		cache:     cache,
		transport: tr,
		engine:    engine,
	}, nil
}

func (a *app) Close() {
	hits, misses := a.transport.Stats()
	slog.Debug("Response cache statistics", "hits", hits, "misses", misses)
	if err := a.cache.Close(); err != nil {
		slog.Warn("Failed to close response cache", "err", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close configuration store", "err", err)
	}
}

func newUpstream(cfg config.ServerConfig) (transport.Upstream, error) {
	switch cfg.Type {
	case "tcp":
		return tcp.NewServer(cfg.Address, cfg.Once), nil
	case "serial":
		return serial.NewServer(cfg.Serial, cfg.Once), nil
	}
	return nil, fmt.Errorf("unknown server type %q", cfg.Type)
}

func newFramerFunc(framing string) (transport.NewFramerFunc, error) {
	switch framing {
	case "line":
		return func(rw io.ReadWriter) transport.Framer { return line.NewFramer(rw) }, nil
	case "cpn":
		return func(rw io.ReadWriter) transport.Framer { return cpn.NewFramer(rw) }, nil
	}
	return nil, fmt.Errorf("unknown server framing %q", framing)
}

func (c *cli) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve simulator sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.String("server.type", "tcp", "Simulator connection type (tcp, serial).")
	f.StringP("server.address", "A", "0.0.0.0:9999", "TCP address to listen on.")
	f.String("server.framing", "line", "Message framing (line, cpn).")
	f.Bool("server.once", false, "Exit after the first session ends.")
	f.StringP("server.serial.device", "p", "/tmp/pts1", "Serial port device name.")
	f.IntP("server.serial.baud_rate", "s", 19200, "Serial port speed.")
	return cmd
}

// serve runs sessions until ctx is done, or until the first session ends
// when the server runs once.
func (c *cli) serve(ctx context.Context) error {
	newFramer, err := newFramerFunc(c.cfg.Server.Framing)
	if err != nil {
		return err
	}
	upstream, err := newUpstream(c.cfg.Server)
	if err != nil {
		return err
	}
	a, err := newApp(c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("Starting CO2e Gateway...", "server", c.cfg.Server.Type, "framing", c.cfg.Server.Framing, "offline", c.cfg.Upstream.Offline)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return upstream.Start(ctx, session.Handler(a.engine, newFramer))
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down...")
		return upstream.Close()
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Goodbye.")
	return nil
}

func (c *cli) newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <quantity>",
		Short: "Resolve one request id and quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			a, err := newApp(c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			value, err := a.engine.Resolve(cmd.Context(), args[0], quantity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.FormatFloat(value))
			return nil
		},
	}
}

// withStore opens the configured store for the duration of fn.
func (c *cli) withStore(fn func(st *store.Store) error) error {
	st, err := store.Open(c.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func (c *cli) newStoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Edit the request configuration store",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every template and default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(func(st *store.Store) error {
				return st.Clear()
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored ids, templates first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(func(st *store.Store) error {
				doc, err := st.Snapshot()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KIND\tID\tDETAIL")
				for _, t := range doc.Templates {
					fmt.Fprintf(w, "%s\t%s\t%s (%s)\n", store.KindTemplate, t.ID, t.Endpoint, t.QuantityField)
				}
				for _, d := range doc.Defaults {
					fmt.Fprintf(w, "%s\t%s\t%s\n", store.KindDefault, d.ID, strconv.FormatFloat(d.Factor, 'g', -1, 64))
				}
				return w.Flush()
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the entries stored under an id as seed YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *store.Store) error {
				s, err := entriesFor(st, args[0])
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(s); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove the template and default stored under an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *store.Store) error {
				return st.Delete(args[0])
			})
		},
	}

	addDefaultCmd := &cobra.Command{
		Use:   "add-default <id> <factor>",
		Short: "Add or replace a default multiplier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			factor, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid factor %q", args[1])
			}
			return c.withStore(func(st *store.Store) error {
				return st.UpsertDefault(args[0], factor)
			})
		},
	}

	var (
		quantityField string
		endpoint      string
		params        map[string]string
		selector      map[string]string
	)
	addTemplateCmd := &cobra.Command{
		Use:   "add-template <id>",
		Short: "Add or replace a request template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *store.Store) error {
				return st.PutTemplate(model.RequestTemplate{
					ID:             args[0],
					Endpoint:       endpoint,
					QuantityField:  quantityField,
					Parameters:     params,
					FactorSelector: selector,
				})
			})
		},
	}
	f := addTemplateCmd.Flags()
	f.StringVarP(&quantityField, "quantity-field", "q", "", "Parameter that carries the quantity.")
	f.StringVar(&endpoint, "endpoint", "", "Estimate endpoint (defaults to store.endpoint).")
	f.StringToStringVar(&params, "param", nil, "Call parameter as name=value, repeatable.")
	f.StringToStringVar(&selector, "factor", nil, "Emission factor selector as name=value, repeatable.")
	addTemplateCmd.MarkFlagRequired("quantity-field")

	var clearFirst bool
	importCmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import templates and defaults from a seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			return c.withStore(func(st *store.Store) error {
				return seed.Apply(st, s, clearFirst)
			})
		},
	}
	importCmd.Flags().BoolVar(&clearFirst, "clear", false, "Clear the store before importing.")

	cmd.AddCommand(clearCmd, listCmd, showCmd, deleteCmd, addDefaultCmd, addTemplateCmd, importCmd)
	return cmd
}

// entriesFor collects everything stored under id.
func entriesFor(st *store.Store, id string) (*seed.Seed, error) {
	s := &seed.Seed{}
	t, err := st.GetTemplate(id)
	switch {
	case err == nil:
		s.Templates = append(s.Templates, seed.Template{
			ID:             t.ID,
			Endpoint:       t.Endpoint,
			QuantityField:  t.QuantityField,
			Parameters:     t.Parameters,
			EmissionFactor: t.FactorSelector,
		})
	case !store.IsNotFound(err):
		return nil, err
	}
	f, err := st.GetDefault(id)
	switch {
	case err == nil:
		s.Defaults = append(s.Defaults, seed.Default{ID: id, Factor: f})
	case !store.IsNotFound(err):
		return nil, err
	}
	if len(s.Templates)+len(s.Defaults) == 0 {
		return nil, store.NotFoundError{ID: id}
	}
	return s, nil
}

func (c *cli) newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the estimate response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := httpcache.Open(c.cfg.Cache)
			if err != nil {
				return err
			}
			defer cache.Close()
			if err := cache.Purge(cmd.Context()); err != nil {
				return err
			}
			slog.Info("Response cache purged", "type", c.cfg.Cache.Type)
			return nil
		},
	})
	return cmd
}

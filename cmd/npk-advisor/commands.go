package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/iwvelando/npk-advisor/internal/advisor"
	"github.com/iwvelando/npk-advisor/internal/config"
	"github.com/iwvelando/npk-advisor/internal/fields"
	"github.com/iwvelando/npk-advisor/internal/jobs"
	"github.com/iwvelando/npk-advisor/internal/metrics"
	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/internal/optimizer"
	"github.com/iwvelando/npk-advisor/internal/server"
	"github.com/iwvelando/npk-advisor/internal/weather"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/output"
	"github.com/iwvelando/npk-advisor/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "npk-advisor",
		Short:         "Budget-constrained, risk-aware fertilizer recommendations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newOptimizeCommand(opts),
		newServeCommand(opts),
		newFieldsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// loadConfiguration reads the config file. A missing file at the default
// location yields the built-in defaults; a missing explicit file is an error.
func loadConfiguration(path string, explicit bool) (*config.Configuration, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.LoadConfiguration("")
		}
	}
	return config.LoadConfiguration(path)
}

func (o *globalOptions) setup(cmd *cobra.Command) (*config.Configuration, *zap.Logger, error) {
	explicit := false
	if f := cmd.Flag("config"); f != nil {
		explicit = f.Changed
	}
	conf, err := loadConfiguration(o.configPath, explicit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration at %s: %w", o.configPath, err)
	}

	logger, err := initializeLogger(conf.Logging, o.logLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}
	if err := conf.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, logger, nil
}

type services struct {
	advisor *advisor.Advisor
	catalog *fields.Catalog
	metrics *metrics.Metrics
}

// buildServices wires the optimizer, catalog, weather client and advisor.
// Without requireCatalog a missing catalog only disables field lookups.
func buildServices(conf *config.Configuration, logger *zap.Logger, requireCatalog bool) (*services, error) {
	m := metrics.New()
	opt, err := optimizer.NewFromConfig(logger, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize optimizer: %w", err)
	}

	var catalog *fields.Catalog
	if path := conf.Fields.Catalog; path != "" {
		catalog, err = fields.LoadCatalog(path)
		if err != nil {
			if requireCatalog {
				return nil, err
			}
			logger.Warn("field catalog unavailable, only feature-based recommendations will work",
				zap.String("op", "main"),
				zap.String("catalog", path),
				zap.Error(err),
			)
			catalog = nil
		}
	} else if requireCatalog {
		return nil, fmt.Errorf("no field catalog configured")
	}

	var featurizer advisor.Featurizer
	if catalog != nil {
		var source fields.WeatherSource
		if conf.Weather.Enabled {
			client, err := weather.NewClient(logger, conf.Weather)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize weather client: %w", err)
			}
			source = client
		}
		featurizer = fields.NewFeaturizer(logger, catalog, source)
	}

	adv, err := advisor.New(logger, featurizer, opt, m, conf.Solver.Timeout)
	if err != nil {
		return nil, err
	}
	return &services{advisor: adv, catalog: catalog, metrics: m}, nil
}

// parseFeatures turns key=value pairs into model features.
func parseFeatures(pairs []string) (model.Features, error) {
	features := make(model.Features, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("feature %q must be in key=value form", pair)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("feature %q must have a finite numeric value", key)
		}
		features[key] = value
	}
	return features, nil
}

func newOptimizeCommand(opts *globalOptions) *cobra.Command {
	var (
		budgets      []float64
		fieldID      string
		crop         string
		featurePairs []string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Recommend an NPK plan for one or more budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			format := outputFormat
			if format == "" {
				format = conf.Output.Format
			}
			if format == "" {
				format = constants.OutputFormatPretty
			}
			if err := validation.ValidateOutputFormat(format); err != nil {
				return err
			}

			if fieldID != "" && len(featurePairs) > 0 {
				return fmt.Errorf("--feature cannot be combined with --field")
			}
			features, err := parseFeatures(featurePairs)
			if err != nil {
				return err
			}
			for _, b := range budgets {
				if err := validation.ValidateBudget(b); err != nil {
					return err
				}
			}

			svc, err := buildServices(conf, logger, fieldID != "")
			if err != nil {
				return err
			}

			recs := make([]advisor.Recommendation, 0, len(budgets))
			for _, budget := range budgets {
				var rec advisor.Recommendation
				if fieldID != "" {
					rec, err = svc.advisor.Recommend(cmd.Context(), advisor.Request{FieldID: fieldID, Crop: crop, Budget: budget})
				} else {
					rec, err = svc.advisor.RecommendFeatures(cmd.Context(), budget, features)
					rec.Crop = crop
				}
				if err != nil {
					return err
				}
				recs = append(recs, rec)
			}
			return output.Write(cmd.OutOrStdout(), format, recs)
		},
	}

	cmd.Flags().Float64SliceVar(&budgets, "budget", nil, "budget in rupees per hectare (repeatable)")
	cmd.Flags().StringVar(&fieldID, "field", "", "field id from the catalog")
	cmd.Flags().StringVar(&crop, "crop", "", "crop grown this season")
	cmd.Flags().StringArrayVar(&featurePairs, "feature", nil, "feature override as key=value (repeatable), e.g. soil_n=25")
	cmd.Flags().StringVarP(&outputFormat, "output-format", "o", "", "type of output override: pretty, csv, json")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		address          string
		maxRequestSize   string
		serverConfigPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recommendation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}

			srvConf, err := server.LoadConfig(serverConfigPath)
			if err != nil {
				return err
			}
			if srvConf.Logging != (config.LoggingConfig{}) {
				if logger, err = initializeLogger(srvConf.Logging, opts.logLevel); err != nil {
					return fmt.Errorf("failed to initialize logger: %w", err)
				}
			}
			defer func() {
				_ = logger.Sync()
			}()
			if err := srvConf.ApplyOverrides(address, maxRequestSize); err != nil {
				return err
			}

			svc, err := buildServices(conf, logger, false)
			if err != nil {
				return err
			}
			var mgr *jobs.Manager
			if !srvConf.DisableJobs {
				mgr, err = jobs.NewManager(logger, svc.advisor, svc.metrics, jobs.Options{
					Workers:   conf.Jobs.Workers,
					QueueSize: conf.Jobs.QueueSize,
					Retention: conf.Jobs.Retention,
					Timeout:   conf.Jobs.Timeout,
				})
				if err != nil {
					return err
				}
				defer mgr.Close()
			}

			handler := server.NewHandler(logger, server.Dependencies{
				Advisor: svc.advisor,
				Jobs:    mgr,
				Catalog: svc.catalog,
				Metrics: svc.metrics,
			}, srvConf.RequestSizeBytes(), version)

			httpServer := srvConf.HTTPServer(handler)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening",
					zap.String("op", "main"),
					zap.String("address", srvConf.Address),
					zap.Int("fields", svc.catalog.Len()),
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down",
				zap.String("op", "main"),
				zap.Duration("grace", srvConf.ShutdownGrace()),
			)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), srvConf.ShutdownGrace())
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address override")
	cmd.Flags().StringVar(&maxRequestSize, "max-request-size", "", "request body limit override, e.g. 64K")
	cmd.Flags().StringVar(&serverConfigPath, "server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	return cmd
}

func newFieldsCommand(opts *globalOptions) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the fields in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			path := conf.Fields.Catalog
			if catalogPath != "" {
				path = catalogPath
			}
			catalog, err := fields.LoadCatalog(path)
			if err != nil {
				return err
			}
			return output.FieldsTable(cmd.OutOrStdout(), catalog.List())
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "field catalog override")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

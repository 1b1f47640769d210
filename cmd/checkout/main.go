package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hostelpay/internal/checkout"
	"hostelpay/internal/config"
	"hostelpay/internal/payment"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

type options struct {
	configPath string
	backendURL string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "checkout",
		Short:        "Pay for a hostel booking by card or mobile money",
		Version:      Version,
		SilenceUsage: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "config file with the checkout section")
	root.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "booking API base URL (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log flow transitions")

	root.AddCommand(cardCmd(opts))
	root.AddCommand(mobileCmd(opts))
	root.AddCommand(verifyCmd(opts))
	return root
}

// session is what every command needs to talk to the booking API.
type session struct {
	cfg     config.CheckoutConfig
	client  *checkout.BackendClient
	console *console
	logger  *zerolog.Logger
}

func (o *options) session(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadCheckout(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
	}

	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()

	return &session{
		cfg:     cfg,
		client:  checkout.NewBackendClient(cfg.BackendURL, cfg.Timeout),
		console: newConsole(cmd.InOrStdin(), cmd.OutOrStdout()),
		logger:  &logger,
	}, nil
}

func cardCmd(opts *options) *cobra.Command {
	form := &bookingForm{}
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Pay by card through the gateway checkout",
		Long: `Pay by card through the gateway checkout.

Examples:
  checkout card --hostel h1 --room r1 --check-in 2026-09-01 --check-out 2026-12-20 \
    --total 2200 --type partial --name "Ama Mensah" --email ama@example.com --phone 0241234567
  checkout card --booking 7f7c0e6e-4f0a-4d59-9d0e-3c1f0f2b9a11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.session(cmd)
			if err != nil {
				return err
			}
			flow := checkout.NewCardFlow(s.client, s.console, s.console, s.console, s.logger)
			flow.Observe(func(from, to checkout.CardState) {
				s.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("card flow")
			})

			var res *checkout.CardResult
			if form.bookingID != "" {
				intent, ierr := balanceIntent(cmd.Context(), s.client, form.bookingID)
				if ierr != nil {
					return ierr
				}
				res, err = flow.SubmitIntent(cmd.Context(), intent)
			} else {
				in, ferr := form.input()
				if ferr != nil {
					return ferr
				}
				res, err = flow.Submit(cmd.Context(), in)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	form.bind(cmd)
	return cmd
}

func mobileCmd(opts *options) *cobra.Command {
	form := &bookingForm{}
	var wallet payment.MobileInput
	cmd := &cobra.Command{
		Use:   "mobile",
		Short: "Pay with a mobile money prompt and confirm it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.session(cmd)
			if err != nil {
				return err
			}
			flow := checkout.NewMobileFlow(s.client, s.console, nil, s.cfg.VerifyDelay, s.logger)
			flow.Observe(func(from, to checkout.MobileState) {
				s.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("mobile flow")
			})

			var res *checkout.MobileResult
			if form.bookingID != "" {
				intent, ierr := balanceIntent(cmd.Context(), s.client, form.bookingID)
				if ierr != nil {
					return ierr
				}
				if !payment.ValidNetwork(wallet.Network) || strings.TrimSpace(wallet.PhoneNumber) == "" {
					return &payment.ValidationError{Fields: []string{"network", "phoneNumber"}}
				}
				intent.MobilePayment = &payment.MobilePayment{
					Network:     wallet.Network,
					PhoneNumber: strings.TrimSpace(wallet.PhoneNumber),
				}
				res, err = flow.SubmitIntent(cmd.Context(), intent)
			} else {
				in, ferr := form.input()
				if ferr != nil {
					return ferr
				}
				res, err = flow.Submit(cmd.Context(), in, wallet)
			}

			var pending *checkout.VerificationInconclusive
			if errors.As(err, &pending) {
				fmt.Fprintf(cmd.OutOrStdout(), "Check later with: checkout verify %s\n", pending.Reference)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	form.bind(cmd)
	cmd.Flags().StringVar(&wallet.Network, "network", "", "mobile money network (mtn, vodafone, airteltigo)")
	cmd.Flags().StringVar(&wallet.PhoneNumber, "wallet", "", "mobile money wallet number")
	return cmd
}

func verifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [reference]",
		Short: "Check the status of a payment once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.session(cmd)
			if err != nil {
				return err
			}
			resp, err := s.client.VerifyPayment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func balanceIntent(ctx context.Context, client *checkout.BackendClient, bookingID string) (payment.Intent, error) {
	booking, err := client.GetBooking(ctx, bookingID)
	if err != nil {
		return payment.Intent{}, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	return payment.BalanceIntent(booking)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

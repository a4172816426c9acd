// Command webhook-sim sends signed payment provider webhooks to a local
// payment-service.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	var baseURL string
	rootCmd := &cobra.Command{
		Use:          "webhook-sim",
		Short:        "Send signed Mercado Pago and Stripe webhooks",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", getenv("BASE_URL", "http://localhost:8082"), "payment-service base url")

	rootCmd.AddCommand(mercadoPagoCmd(&baseURL))
	rootCmd.AddCommand(stripeCmd(&baseURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func mercadoPagoCmd(baseURL *string) *cobra.Command {
	var o mercadoPagoOptions
	cmd := &cobra.Command{
		Use:     "mercadopago",
		Aliases: []string{"mp"},
		Short:   "Send a Mercado Pago payment notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.BaseURL = *baseURL
			o.Now = time.Now()
			req, err := mercadoPagoRequest(o)
			if err != nil {
				return err
			}
			return send(cmd.OutOrStdout(), req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.Secret, "secret", getenv("MERCADOPAGO_WEBHOOK_SECRET", ""), "webhook signing secret")
	f.StringVar(&o.DataID, "data-id", "", "Mercado Pago payment id (data.id)")
	f.StringVar(&o.RequestID, "request-id", "", "x-request-id value (random when empty)")
	f.StringVar(&o.Type, "type", "payment", "notification type")
	f.StringVar(&o.Action, "action", "payment.updated", "notification action")
	f.BoolVar(&o.Tamper, "tamper", false, "send an invalid signature")
	_ = cmd.MarkFlagRequired("data-id")
	return cmd
}

func stripeCmd(baseURL *string) *cobra.Command {
	var o stripeOptions
	cmd := &cobra.Command{
		Use:   "stripe",
		Short: "Send a Stripe checkout session event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.BaseURL = *baseURL
			o.Now = time.Now().UTC()
			req, err := stripeRequest(o)
			if err != nil {
				return err
			}
			return send(cmd.OutOrStdout(), req)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.Secret, "secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	f.StringVar(&o.Type, "type", "checkout.session.completed", "stripe event type")
	f.StringVar(&o.SessionID, "session-id", "", "checkout session id")
	f.StringVar(&o.PaymentID, "payment-id", "", "payment id (client_reference_id)")
	return cmd
}

func send(out io.Writer, req *http.Request) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	fmt.Fprintf(out, "status=%d body=%s\n", resp.StatusCode, body)
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

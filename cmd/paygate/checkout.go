package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/garrettladley/paygate/internal/service/checkout"
	"github.com/garrettladley/paygate/internal/xhttp"
	go_json "github.com/goccy/go-json"
)

func checkoutCmd() *cobra.Command {
	var (
		url      string
		orderID  string
		currency string
		items    []string
	)

	cmd := &cobra.Command{
		Use:     "checkout",
		Short:   "Create a hosted payment session",
		Example: `  paygate checkout --order ord_1 --currency usd --item "Book:19.99:2"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(items) == 0 {
				return errors.New("at least one --item is required")
			}

			base, err := resolveURL(url)
			if err != nil {
				return err
			}

			req := checkout.Request{OrderID: orderID, Currency: currency}
			for _, s := range items {
				item, err := parseItem(s)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
			}

			body, err := go_json.Marshal(req)
			if err != nil {
				return fmt.Errorf("failed to encode request: %w", err)
			}

			httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/payments/create-payment-session", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			httpReq.Header.Set(xhttp.ContentType, xhttp.ApplicationJSON)

			return doAndPrint(cmd, httpReq)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "gateway base URL (default $PAYGATE_URL)")
	cmd.Flags().StringVar(&orderID, "order", "", "order id")
	cmd.Flags().StringVar(&currency, "currency", "usd", "ISO 4217 currency code")
	cmd.Flags().StringArrayVar(&items, "item", nil, "line item as name:price:quantity, repeatable")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

package main

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ontohub/internal/platform/database"
	"ontohub/internal/platform/models"
	"ontohub/internal/platform/repositories"
)

func (c *commandContext) withDB(fn func(*sql.DB) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func newWebhooksCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "List registered webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *sql.DB) error {
				items, total, err := repositories.NewWebhookRepository(db).List(cmd.Context(), limit, 0)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(items))
				for _, w := range items {
					rows = append(rows, []string{w.ID, w.Name, w.EventType, orDash(w.OntologyFilter), w.TargetURL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Event", "Filter", "Target"}, rows))
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d webhooks\n", len(items), total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum rows to show")
	return cmd
}

func newDeliveriesCommand(ctx *commandContext) *cobra.Command {
	var code string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "deliveries <webhook-id>",
		Short: "Show the delivery log of a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(db *sql.DB) error {
				filter := models.DeliveryFilter{
					OntologyCode: code,
					Status:       models.DeliveryStatus(strings.ToUpper(status)),
					Limit:        limit,
				}
				items, total, err := repositories.NewDeliveryRepository(db).ListByWebhook(cmd.Context(), args[0], filter)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(items))
				for _, d := range items {
					response := "-"
					if d.ResponseStatus != nil {
						response = strconv.Itoa(*d.ResponseStatus)
					}
					rows = append(rows, []string{
						d.CreatedAt.Local().Format(time.DateTime),
						d.EventType,
						d.OntologyCode,
						string(d.Status),
						response,
						orDash(d.ErrorMessage),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"When", "Event", "Code", "Status", "HTTP", "Error"}, rows, 5))
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d deliveries\n", len(items), total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Only deliveries for this ontology code")
	cmd.Flags().StringVar(&status, "status", "", "Only SUCCESS or FAILURE deliveries")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show")
	return cmd
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

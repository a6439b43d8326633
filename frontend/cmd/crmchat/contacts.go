package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavoo-crm/crmchat/frontend/internal/render"
	"github.com/wavoo-crm/crmchat/shared/api"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

var contactsQuery api.ContactsQuery

var contactsCmd = &cobra.Command{
	Use:   "contacts [search]",
	Short: "List contacts, optionally filtered by name or phone",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, _, err := requireSession(cmd)
		if err != nil {
			return err
		}
		contacts, err := deps.API.ListContacts(ctx, contactsQuery)
		if err != nil {
			return fmt.Errorf("failed to list contacts: %s", internal_errors.Message(err))
		}
		if len(args) == 1 {
			contacts = filterContacts(contacts, args[0])
		}

		out := cmd.OutOrStdout()
		if len(contacts) == 0 {
			fmt.Fprintln(out, "No contacts")
			return nil
		}
		now := time.Now()
		for _, c := range contacts {
			fmt.Fprintln(out, render.Contact(c, now))
		}
		return nil
	},
}

func init() {
	contactsCmd.Flags().IntVarP(&contactsQuery.Limit, "limit", "n", 0, "maximum number of contacts")
	contactsCmd.Flags().StringVar(&contactsQuery.SortBy, "sort", "last_seen", "sort field: last_seen, name or createdAt")
	contactsCmd.Flags().StringVar(&contactsQuery.Order, "order", "desc", "sort order: asc or desc")
}

func filterContacts(contacts []domain.Contact, search string) []domain.Contact {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return contacts
	}
	var out []domain.Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Name), search) || strings.Contains(c.Phone, search) {
			out = append(out, c)
		}
	}
	return out
}

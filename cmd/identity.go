package cmd

import (
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pitr/gemini-ios-sub000/internal/identity"
)

var (
	identityHost string
	identityName string
	identityDays int
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage client certificates",
	Long: `Create, list and select the client certificates presented to capsules.
At most one identity per host is active; the active one is sent with every
request to that host.`,
}

var identityCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Generate a new identity for a host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(store *identity.Store) error {
			days := identityDays
			if days == 0 {
				days = cfg.Identity.ValidityDays
			}
			id, err := store.Create(identityHost, identityName, days)
			if err != nil {
				return err
			}
			pterm.Success.Printf("Created identity %d for %s (%s)\n", id.ID, id.Host, id.Name)
			pterm.Info.Printf("Fingerprint %s\n", id.Fingerprint)
			pterm.Info.Printf("Run 'gemini identity activate %d' to present it\n", id.ID)
			return nil
		})
	},
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(func(store *identity.Store) error {
			ids, err := store.List(identityHost)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				pterm.Info.Println("No identities")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(identityTable(ids)).Render()
		})
	},
}

var identityActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make an identity the active one for its host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.ParseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(store *identity.Store) error {
			if err := store.Activate(id); err != nil {
				return err
			}
			pterm.Success.Printf("Activated identity %d\n", id)
			return nil
		})
	},
}

var identityDeactivateCmd = &cobra.Command{
	Use:   "deactivate <host>",
	Short: "Stop presenting any identity to a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *identity.Store) error {
			if err := store.Deactivate(args[0]); err != nil {
				return err
			}
			pterm.Success.Printf("No identity is active for %s\n", identity.NormalizeHost(args[0]))
			return nil
		})
	},
}

var identityDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.ParseID(args[0])
		if err != nil {
			return err
		}
		return withStore(func(store *identity.Store) error {
			if err := store.Delete(id); err != nil {
				return err
			}
			pterm.Success.Printf("Deleted identity %d\n", id)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityCreateCmd, identityListCmd, identityActivateCmd, identityDeactivateCmd, identityDeleteCmd)

	identityCreateCmd.Flags().StringVar(&identityHost, "host", "", "host the identity is for (required)")
	identityCreateCmd.Flags().StringVar(&identityName, "name", "", "display name and certificate common name (default: host)")
	identityCreateCmd.Flags().IntVar(&identityDays, "days", 0, "certificate validity in days (default: identity.validity_days)")
	_ = identityCreateCmd.MarkFlagRequired("host")

	identityListCmd.Flags().StringVar(&identityHost, "host", "", "only list identities for this host")
}

func withStore(fn func(*identity.Store) error) error {
	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(store)
}

// maxNameWidth bounds the Name column in terminal cells.
const maxNameWidth = 24

func identityTable(ids []*identity.Identity) pterm.TableData {
	data := pterm.TableData{{"ID", "Host", "Name", "Active", "Fingerprint", "Created", "Last Used"}}
	for _, id := range ids {
		active := ""
		if id.Active {
			active = "yes"
		}
		lastUsed := "never"
		if id.LastUsedAt != nil {
			lastUsed = id.LastUsedAt.Format(time.DateTime)
		}
		data = append(data, []string{
			fmt.Sprintf("%d", id.ID),
			id.Host,
			runewidth.Truncate(id.Name, maxNameWidth, "…"),
			active,
			shortFingerprint(id.Fingerprint),
			id.CreatedAt.Format(time.DateTime),
			lastUsed,
		})
	}
	return data
}

// shortFingerprint keeps the first and last four bytes of a colon separated
// fingerprint.
func shortFingerprint(fp string) string {
	const keep = 4*3 - 1
	if len(fp) <= 2*keep+3 {
		return fp
	}
	return fp[:keep] + "..." + fp[len(fp)-keep:]
}

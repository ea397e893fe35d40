package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"annotate/api/internal/annotation"
	"annotate/api/internal/authpw"
	"annotate/api/internal/rbac"
	"annotate/api/internal/store"
)

var (
	migrateDown      bool
	reindexBatchSize int
	clientAuthority  string
	clientDesc       string
	groupDisplayName string
	groupPolicy      string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if migrateDown {
			if err := store.Rollback(cmd.Context(), db); err != nil {
				return err
			}
			cmd.Println("rolled back one migration")
			return nil
		}
		if err := store.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		cmd.Println("migrations applied")
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Copy every annotation from Postgres into Meilisearch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.Meili.URL) == "" {
			return errors.New("meili.url is required for reindex")
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		dataStore := store.NewPostgresStore(db)
		searchService, closeSearch := openSearch(cfg, dataStore)
		defer closeSearch()

		total, err := searchService.Reindex(cmd.Context(), dataStore, reindexBatchSize)
		if err != nil {
			return err
		}
		cmd.Printf("indexed %d annotations\n", total)
		return nil
	},
}

// importRecord is one annotation in an import file. user is either
// "acct:login@authority" or "login@authority".
type importRecord struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
	URI        string    `json:"uri"`
	Group      string    `json:"group"`
	User       string    `json:"user"`
	Shared     bool      `json:"shared"`
	References []string  `json:"references"`
	Deleted    bool      `json:"deleted"`
	Text       string    `json:"text"`
	Tags       []string  `json:"tags"`
}

func parseUser(raw string) (annotation.UserRef, error) {
	login, authority, ok := strings.Cut(strings.TrimPrefix(raw, "acct:"), "@")
	if !ok || login == "" || authority == "" {
		return annotation.UserRef{}, fmt.Errorf("invalid user %q", raw)
	}
	return annotation.UserRef{Login: login, Authority: authority}, nil
}

func (r importRecord) toAnnotation() (annotation.Annotation, error) {
	if r.ID == "" || r.URI == "" {
		return annotation.Annotation{}, errors.New("id and uri are required")
	}
	owner, err := parseUser(r.User)
	if err != nil {
		return annotation.Annotation{}, err
	}
	if r.Group == "" {
		r.Group = store.WorldGroup
	}
	if r.Updated.IsZero() {
		r.Updated = r.Created
	}
	return annotation.Annotation{
		ID:      r.ID,
		Created: r.Created.UTC(),
		Updated: r.Updated.UTC(),
		Scope: annotation.Scope{
			DocumentURI: r.URI,
			Group:       r.Group,
			Authority:   owner.Authority,
		},
		Owner:      owner,
		Shared:     r.Shared,
		References: r.References,
		Deleted:    r.Deleted,
		Text:       r.Text,
		Tags:       r.Tags,
	}, nil
}

func readImportFile(path string) ([]annotation.Annotation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []importRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	items := make([]annotation.Annotation, 0, len(records))
	for i, record := range records {
		item, err := record.toAnnotation()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Load annotations from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		dataStore := store.NewPostgresStore(db)
		if err := dataStore.UpsertAnnotations(cmd.Context(), items); err != nil {
			return err
		}
		searchService, closeSearch := openSearch(cfg, dataStore)
		defer closeSearch()
		if searchService.Configured() {
			indexed, removed, err := searchService.Sync(cmd.Context(), items)
			if err != nil {
				return err
			}
			cmd.Printf("search index: %d indexed, %d removed\n", indexed, removed)
		}
		cmd.Printf("imported %d annotations\n", len(items))
		return nil
	},
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage API clients",
}

var clientCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Register a client and print its secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		resp, err := authpw.NewService(store.NewPostgresStore(db)).Register(cmd.Context(), authpw.RegisterRequest{
			ID:          args[0],
			Authority:   clientAuthority,
			Description: clientDesc,
		})
		if err != nil {
			return err
		}
		cmd.Printf("client:    %s\n", resp.Client.ID)
		cmd.Printf("authority: %s\n", resp.Client.Authority)
		cmd.Printf("secret:    %s\n", resp.Secret)
		cmd.Println("The secret is not stored and cannot be shown again.")
		return nil
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage annotation groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		group := store.Group{
			Name:        args[0],
			DisplayName: groupDisplayName,
			ReadPolicy:  string(rbac.Normalize(groupPolicy)),
		}
		if err := store.NewPostgresStore(db).CreateGroup(cmd.Context(), group); err != nil {
			return err
		}
		cmd.Printf("created group %s (read policy %s)\n", group.Name, group.ReadPolicy)
		return nil
	},
}

var groupAddMemberCmd = &cobra.Command{
	Use:   "add-member <group> <login@authority>",
	Short: "Add a user to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := parseUser(args[1])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		member := store.GroupMember{Group: args[0], Login: user.Login, Authority: user.Authority}
		if err := store.NewPostgresStore(db).AddGroupMember(cmd.Context(), member); err != nil {
			return err
		}
		cmd.Printf("added %s to %s\n", user, args[0])
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back the most recent migration")
	reindexCmd.Flags().IntVar(&reindexBatchSize, "batch-size", 500, "annotations per Meilisearch batch")
	clientCreateCmd.Flags().StringVar(&clientAuthority, "authority", "", "authority the client issues tokens for")
	clientCreateCmd.Flags().StringVar(&clientDesc, "description", "", "free-form description")
	_ = clientCreateCmd.MarkFlagRequired("authority")
	groupCreateCmd.Flags().StringVar(&groupDisplayName, "display-name", "", "human readable name")
	groupCreateCmd.Flags().StringVar(&groupPolicy, "read-policy", string(rbac.PolicyMembers), "open or members")

	clientCmd.AddCommand(clientCreateCmd)
	groupCmd.AddCommand(groupCreateCmd, groupAddMemberCmd)
	rootCmd.AddCommand(migrateCmd, reindexCmd, importCmd, clientCmd, groupCmd)
}

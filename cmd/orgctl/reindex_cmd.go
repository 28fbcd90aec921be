package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/search"
	"orgchart/api/internal/store"
)

type reindexOutput struct {
	Command string `json:"command"`
	Indexed int    `json:"indexed"`
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every person in the people table to Meilisearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.MeiliURL == "" {
				return errors.New("MEILI_URL is not set")
			}

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			people := store.NewPostgresStore(db)

			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
			defer meili.Close()

			svc := search.NewService(meili, people, log)
			n, err := svc.ReindexAll(cmd.Context(), search.PeopleSourceFunc(func(ctx context.Context) ([]directory.Person, error) {
				records, err := people.LoadAllPeople(ctx)
				if err != nil {
					return nil, err
				}
				return peopleOf(records), nil
			}))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reindexOutput{Command: "reindex", Indexed: n})
		},
	}
}
